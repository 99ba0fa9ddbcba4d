package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/domain/taskModel"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

// Event names the pipeline triggers the orchestrator understands.
type Event string

const (
	// EventUploadCompleted schedules first-time processing of a new record.
	EventUploadCompleted Event = "upload_completed"
	// EventReprocess re-runs processing for an existing record, resetting its
	// retry budget.
	EventReprocess Event = "reprocess"
)

// Stage is a registered pipeline stage. Health is advisory: a degraded stage
// is reported, never fatal to the process.
type Stage interface {
	Name() string
	Health(ctx context.Context) error
}

// StageFunc adapts a name and probe function into a Stage.
type StageFunc struct {
	StageName string
	Probe     func(ctx context.Context) error
}

func (s StageFunc) Name() string                     { return s.StageName }
func (s StageFunc) Health(ctx context.Context) error { return s.Probe(ctx) }

// StageHealth is one stage's health snapshot.
type StageHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Orchestrator connects the stages without any of them knowing each other:
// it owns the task queue, translates events into tasks, and reports stage
// health. All collaborators are injected; there is exactly one orchestrator
// per process and it is built in main.
type Orchestrator struct {
	queue   taskModel.Queue
	records recordModel.RecordStore
	audit   recordModel.AuditStore

	mu     sync.RWMutex
	stages []Stage

	logger *logger_i.Logger
}

func New(queue taskModel.Queue, records recordModel.RecordStore, audit recordModel.AuditStore) *Orchestrator {
	return &Orchestrator{
		queue:   queue,
		records: records,
		audit:   audit,
		logger:  logger_i.NewLogger("orchestrator"),
	}
}

func (o *Orchestrator) Register(stage Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
	o.logger.Info("stage registered", "stage", stage.Name())
}

// Status probes every registered stage. Probes get a short deadline so one
// hung dependency cannot stall the status endpoint.
func (o *Orchestrator) Status(ctx context.Context) []StageHealth {
	o.mu.RLock()
	stages := append([]Stage(nil), o.stages...)
	o.mu.RUnlock()

	statuses := make([]StageHealth, 0, len(stages))
	for _, stage := range stages {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := stage.Health(probeCtx)
		cancel()

		status := StageHealth{Name: stage.Name(), Healthy: err == nil}
		if err != nil {
			status.Detail = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// QueueDepth reports the number of queued processing tasks.
func (o *Orchestrator) QueueDepth() int {
	return o.queue.Depth()
}

// ScheduleProcessing implements the ingestion stage's scheduler: it enqueues
// the first processing attempt for a freshly uploaded record.
func (o *Orchestrator) ScheduleProcessing(ctx context.Context, recordId string, traceId string) error {
	return o.Dispatch(ctx, EventUploadCompleted, recordId, traceId)
}

// Dispatch turns an event into a queued task. Publishing failures surface to
// the caller; nothing is ever processed inline.
func (o *Orchestrator) Dispatch(ctx context.Context, event Event, recordId string, traceId string) error {
	switch event {
	case EventUploadCompleted:
		return o.queue.Publish(ctx, taskModel.ProcessTask{
			RecordId: recordId,
			Attempt:  1,
			TraceId:  traceId,
		})

	case EventReprocess:
		if _, err := o.records.GetRecord(ctx, recordId); err != nil {
			return err
		}
		if err := o.records.ResetRetries(ctx, recordId); err != nil {
			return err
		}
		if err := o.queue.Publish(ctx, taskModel.ProcessTask{
			RecordId: recordId,
			Attempt:  1,
			TraceId:  traceId,
		}); err != nil {
			return err
		}
		o.writeAudit(ctx, recordModel.ActionReprocessRecord, recordId)
		return nil

	default:
		return faults.Validation("unknown event %q", string(event))
	}
}

func (o *Orchestrator) writeAudit(ctx context.Context, action string, recordId string) {
	err := o.audit.AppendAudit(ctx, recordModel.AuditEntry{
		Id:         uuid.NewString(),
		UserId:     "system",
		Action:     action,
		Resource:   "record",
		ResourceId: recordId,
	})
	if err != nil {
		o.logger.Error("could not append audit entry", "action", action, "error", err)
	}
}
