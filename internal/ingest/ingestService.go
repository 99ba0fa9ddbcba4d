package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kvallam/MedVaultAPI/internal/capability/blobStore"
	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/metrics"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

// Scheduler hands an uploaded record to the background pipeline. Implemented
// by the orchestrator; processing never runs inline in the upload request.
type Scheduler interface {
	ScheduleProcessing(ctx context.Context, recordId string, traceId string) error
}

// Service validates uploads, persists the document bytes and record metadata,
// and schedules background processing.
type Service struct {
	records   recordModel.RecordStore
	audit     recordModel.AuditStore
	blobs     blobStore.Gateway
	scheduler Scheduler
	logger    *logger_i.Logger
}

func NewService(records recordModel.RecordStore, audit recordModel.AuditStore,
	blobs blobStore.Gateway, scheduler Scheduler) *Service {
	return &Service{
		records:   records,
		audit:     audit,
		blobs:     blobs,
		scheduler: scheduler,
		logger:    logger_i.NewLogger("ingest"),
	}
}

// Ingest accepts one document for a patient. The returned record is in status
// uploaded; scheduled reports whether background processing was enqueued. A
// scheduling failure is not an upload failure: the record is kept and can be
// re-triggered later.
func (s *Service) Ingest(ctx context.Context, caller recordModel.Caller, patientId string,
	title string, data []byte, mimeType string) (recordModel.Record, bool, error) {

	loggr := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY))

	if len(data) == 0 {
		return recordModel.Record{}, false, faults.Validation("empty document")
	}
	if patientId == "" {
		return recordModel.Record{}, false, faults.Validation("missing patient id")
	}
	if title == "" {
		return recordModel.Record{}, false, faults.Validation("missing title")
	}
	if !config.AllowedMimeTypes[mimeType] {
		return recordModel.Record{}, false, fmt.Errorf("mime type %q: %w", mimeType, faults.ErrUnsupportedMedia)
	}

	exists, err := s.records.PatientExists(ctx, patientId)
	if err != nil {
		return recordModel.Record{}, false, err
	}
	if !exists {
		return recordModel.Record{}, false, faults.NotFound("patient", patientId)
	}

	if err := s.authorizeUpload(ctx, caller, patientId); err != nil {
		return recordModel.Record{}, false, err
	}

	record := recordModel.Record{
		Id:         uuid.NewString(),
		PatientId:  patientId,
		UploadedBy: caller.UserId,
		Title:      title,
		MimeType:   mimeType,
		Status:     recordModel.StatusUploaded,
	}
	if err := s.records.CreateRecord(ctx, record); err != nil {
		return recordModel.Record{}, false, err
	}

	storageCtx, cancel := context.WithTimeout(ctx, config.StorageCallTimeout)
	ref, err := s.blobs.Put(storageCtx, data, mimeType)
	cancel()
	if err != nil {
		loggr.Error("blob store rejected upload", "recordId", record.Id, "error", err)
		if markErr := s.records.MarkFailed(ctx, record.Id, 0); markErr != nil {
			loggr.Error("could not mark record failed", "recordId", record.Id, "error", markErr)
		}
		return recordModel.Record{}, false, faults.Unavailable("blob storage", err)
	}

	if err := s.records.SetStorageRef(ctx, record.Id, ref); err != nil {
		return recordModel.Record{}, false, err
	}
	record.StorageRef = ref

	s.writeAudit(ctx, caller.UserId, recordModel.ActionUploadRecord, record.Id)
	metrics.IncrementRecordsIngested()

	traceId, _ := ctx.Value(config.TRACE_ID_KEY).(string)
	scheduled := true
	if err := s.scheduler.ScheduleProcessing(ctx, record.Id, traceId); err != nil {
		loggr.Warn("could not schedule processing, record stays uploaded",
			"recordId", record.Id, "error", err)
		scheduled = false
	}

	loggr.Info("record ingested", "recordId", record.Id, "patientId", patientId,
		"scheduled", scheduled)
	return record, scheduled, nil
}

// authorizeUpload lets a patient upload only to their own profile. Doctors,
// managers and admins may upload for any patient.
func (s *Service) authorizeUpload(ctx context.Context, caller recordModel.Caller, patientId string) error {
	switch caller.Role {
	case recordModel.RolePatient:
		patient, err := s.records.PatientByUser(ctx, caller.UserId)
		if err != nil || patient.Id != patientId {
			s.writeAudit(ctx, caller.UserId, recordModel.ActionAccessDenied, patientId)
			metrics.IncrementAccessDenied()
			return fmt.Errorf("patient %s cannot upload for %s: %w",
				caller.UserId, patientId, faults.ErrAccessDenied)
		}
		return nil
	case recordModel.RoleDoctor, recordModel.RoleManager, recordModel.RoleAdmin:
		return nil
	default:
		return faults.Validation("unknown role %q", string(caller.Role))
	}
}

func (s *Service) writeAudit(ctx context.Context, userId string, action string, resourceId string) {
	err := s.audit.AppendAudit(ctx, recordModel.AuditEntry{
		Id:         uuid.NewString(),
		UserId:     userId,
		Action:     action,
		Resource:   "record",
		ResourceId: resourceId,
	})
	if err != nil {
		s.logger.Error("could not append audit entry", "action", action, "error", err)
	}
}
