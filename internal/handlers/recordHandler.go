package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kvallam/MedVaultAPI/internal/adapter"
	"github.com/kvallam/MedVaultAPI/internal/api"
	"github.com/kvallam/MedVaultAPI/internal/capability/blobStore"
	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/ingest"
	"github.com/kvallam/MedVaultAPI/internal/metrics"
	"github.com/kvallam/MedVaultAPI/internal/orchestrator"
	"github.com/kvallam/MedVaultAPI/internal/rag/vectorStore"
	"github.com/kvallam/MedVaultAPI/internal/retrieval"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

// Handler exposes the pipeline over HTTP. It holds the stage services plus the
// few stores the endpoints touch directly; everything is injected from main.
type Handler struct {
	ingest    *ingest.Service
	retrieval *retrieval.Service
	orch      *orchestrator.Orchestrator
	records   recordModel.RecordStore
	access    recordModel.AccessStore
	audit     recordModel.AuditStore
	blobs     *blobStore.DiskStore
	chunks    vectorStore.ChunkStore
	logger    *logger_i.Logger
}

func NewHandler(ingestSvc *ingest.Service, retrievalSvc *retrieval.Service,
	orch *orchestrator.Orchestrator, records recordModel.RecordStore,
	access recordModel.AccessStore, audit recordModel.AuditStore,
	blobs *blobStore.DiskStore, chunks vectorStore.ChunkStore) *Handler {

	return &Handler{
		ingest:    ingestSvc,
		retrieval: retrievalSvc,
		orch:      orch,
		records:   records,
		access:    access,
		audit:     audit,
		blobs:     blobs,
		chunks:    chunks,
		logger:    logger_i.NewLogger("handlers"),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// UploadRecord godoc
// @Summary      Upload a medical record document
// @Description  Receives a file via multipart/form-data, stores it, and queues background processing.
// @Tags         Records
// @Accept       multipart/form-data
// @Produce      json
// @Param        patient_id  formData  string  true  "Patient the record belongs to"
// @Param        title       formData  string  true  "Display title of the record"
// @Param        document    formData  file    true  "The document to upload"
// @Success      202  {object}  api.UploadResponse  "Record accepted, processing scheduled"
// @Failure      400  {object}  api.ErrorResponse   "Missing fields or file too large"
// @Failure      403  {object}  api.ErrorResponse   "Caller may not upload for this patient"
// @Failure      415  {object}  api.ErrorResponse   "Unsupported document type"
// @Router       /records/upload [post]
func (h *Handler) UploadRecord(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(config.MaxUploadBytes); err != nil {
		h.writeErrorCode(w, r, http.StatusBadRequest, "file too large or bad request")
		return
	}
	patientId := r.FormValue("patient_id")
	title := r.FormValue("title")

	fileReader, fileMetadata, err := r.FormFile("document")
	if err != nil {
		h.writeErrorCode(w, r, http.StatusBadRequest, "could not retrieve file")
		return
	}
	defer fileReader.Close()

	data, err := io.ReadAll(io.LimitReader(fileReader, config.MaxUploadBytes+1))
	if err != nil {
		h.writeErrorCode(w, r, http.StatusBadRequest, "could not read file")
		return
	}
	if len(data) > config.MaxUploadBytes {
		h.writeErrorCode(w, r, http.StatusBadRequest, "file too large")
		return
	}

	mimeType := fileMetadata.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	record, scheduled, err := h.ingest.Ingest(r.Context(), caller, patientId, title, data, mimeType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJsonResponse(w, http.StatusAccepted, adapter.ToUploadResponse(record, scheduled))
}

// RecordURL godoc
// @Summary      Get a download URL for a record
// @Description  Returns a signed, expiring URL for the record's stored document. Scope-checked and audited.
// @Tags         Records
// @Produce      json
// @Param        id   path      string  true  "Record ID"
// @Success      200  {object}  api.RecordURLResponse
// @Failure      403  {object}  api.ErrorResponse  "Record outside the caller's scope"
// @Failure      404  {object}  api.ErrorResponse  "Record unknown"
// @Router       /records/{id}/url [get]
func (h *Handler) RecordURL(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	recordId := chi.URLParam(r, "id")

	allowed, err := retrieval.CanAccess(r.Context(), caller, h.access, recordId)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !allowed {
		h.writeAudit(r.Context(), caller.UserId, recordModel.ActionAccessDenied, recordId)
		metrics.IncrementAccessDenied()
		h.writeError(w, r, faults.ErrAccessDenied)
		return
	}

	record, err := h.records.GetRecord(r.Context(), recordId)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if record.StorageRef == "" {
		h.writeError(w, r, faults.NotFound("stored document for record", recordId))
		return
	}

	url, err := h.blobs.SignedURL(record.StorageRef, config.SignedURLTTL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeAudit(r.Context(), caller.UserId, recordModel.ActionRecordURL, recordId)

	h.writeJsonResponse(w, http.StatusOK, api.RecordURLResponse{
		RecordId:  recordId,
		URL:       url,
		ExpiresIn: int(config.SignedURLTTL.Seconds()),
	})
}

// DeleteRecord godoc
// @Summary      Delete a record
// @Description  Removes the record, its stored document, and its chunks. Managers and admins only.
// @Tags         Records
// @Produce      json
// @Param        id   path  string  true  "Record ID"
// @Success      204  "Record deleted"
// @Failure      403  {object}  api.ErrorResponse  "Caller may not delete records"
// @Failure      404  {object}  api.ErrorResponse  "Record unknown"
// @Router       /records/{id} [delete]
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	recordId := chi.URLParam(r, "id")

	if !caller.CanDeleteRecords() {
		h.writeAudit(r.Context(), caller.UserId, recordModel.ActionAccessDenied, recordId)
		metrics.IncrementAccessDenied()
		h.writeError(w, r, faults.ErrAccessDenied)
		return
	}

	record, err := h.records.GetRecord(r.Context(), recordId)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Chunks first, then the blob, then the metadata row. A failure partway
	// leaves the record visible and the delete retryable.
	if err := h.chunks.DeleteRecord(r.Context(), recordId); err != nil {
		h.writeError(w, r, err)
		return
	}
	if record.StorageRef != "" {
		if err := h.blobs.Delete(record.StorageRef); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if err := h.records.DeleteRecord(r.Context(), recordId); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeAudit(r.Context(), caller.UserId, recordModel.ActionDeleteRecord, recordId)

	w.WriteHeader(http.StatusNoContent)
}

// ServeFile delivers a stored blob. The route sits outside the auth chain: the
// HMAC signature issued by RecordURL is the authorization.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	sig := r.URL.Query().Get("sig")
	exp, err := strconv.ParseInt(r.URL.Query().Get("exp"), 10, 64)
	if err != nil || sig == "" {
		h.writeErrorCode(w, r, http.StatusBadRequest, "malformed download link")
		return
	}

	if !h.blobs.Verify(ref, exp, sig) {
		h.writeErrorCode(w, r, http.StatusForbidden, "link expired or invalid")
		return
	}

	data, err := h.blobs.Get(r.Context(), ref)
	if err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			h.writeErrorCode(w, r, http.StatusNotFound, "file not found")
			return
		}
		h.writeError(w, r, err)
		return
	}
	contentType, err := h.blobs.ContentType(ref)
	if err != nil {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		h.logger.Error("could not write file response", "ref", ref, "error", err)
	}
}

func (h *Handler) writeAudit(ctx context.Context, userId string, action string, recordId string) {
	err := h.audit.AppendAudit(ctx, recordModel.AuditEntry{
		Id:         uuid.NewString(),
		UserId:     userId,
		Action:     action,
		Resource:   "record",
		ResourceId: recordId,
	})
	if err != nil {
		h.logger.Error("could not append audit entry", "action", action, "error", err)
	}
}
