package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/domain/taskModel"
	"github.com/kvallam/MedVaultAPI/internal/metrics"
	"github.com/kvallam/MedVaultAPI/internal/retry"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

// Processor runs one processing attempt. Implemented by the insight stage.
type Processor interface {
	Process(ctx context.Context, task taskModel.ProcessTask) error
}

// Pool consumes processing tasks from the queue with a fixed set of workers.
// Failed retryable attempts are republished with backoff; exhausted tasks are
// audited and dropped.
type Pool struct {
	queue     taskModel.Queue
	processor Processor
	policy    retry.Policy
	audit     recordModel.AuditStore

	mu      sync.Mutex
	stopped bool

	stop   chan struct{}
	wg     sync.WaitGroup
	timers sync.WaitGroup
	logger *logger_i.Logger
}

func NewPool(queue taskModel.Queue, processor Processor, policy retry.Policy,
	audit recordModel.AuditStore) *Pool {
	return &Pool{
		queue:     queue,
		processor: processor,
		policy:    policy,
		audit:     audit,
		stop:      make(chan struct{}),
		logger:    logger_i.NewLogger("worker_pool"),
	}
}

// Start launches count workers.
func (p *Pool) Start(count int) {
	for i := 0; i < count; i++ {
		p.wg.Add(1)
		metrics.IncrementActiveWorkers()
		go p.worker()
	}
	p.logger.Info("worker pool started", "workers", count)
}

// Stop signals the workers and waits for in-flight tasks and pending retry
// timers to finish. The stopped flag is flipped under the mutex before the
// wait so no retry can register after the wait has started.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	close(p.stop)
	p.timers.Wait()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker() {
	defer func() {
		metrics.DecrementActiveWorkers()
		p.wg.Done()
	}()

	for {
		select {
		case task, ok := <-p.queue.Tasks():
			if !ok {
				return
			}
			metrics.DecrementTasksInQueue()
			p.execute(task)

		case <-p.stop:
			return
		}
	}
}

func (p *Pool) execute(task taskModel.ProcessTask) {
	loggr := p.logger.With("traceId", task.TraceId, "recordId", task.RecordId,
		"attempt", task.Attempt)

	if !task.NotBefore.IsZero() {
		if wait := time.Until(task.NotBefore); wait > 0 {
			select {
			case <-time.After(wait):
			case <-p.stop:
				return
			}
		}
	}

	ctxTrace := context.WithValue(context.Background(), config.TRACE_ID_KEY, task.TraceId)
	ctx, cancel := context.WithTimeout(ctxTrace, config.ProcessTaskTimeout)
	defer cancel()

	err := p.processor.Process(ctx, task)
	switch {
	case err == nil:
		loggr.Debug("task completed")

	case errors.Is(err, faults.ErrAlreadyProcessing):
		loggr.Info("task skipped, lease held elsewhere")

	case errors.Is(err, faults.ErrCapabilityUnavailable):
		p.scheduleRetry(task, loggr)

	default:
		// Validation and not-found failures are terminal; retrying cannot
		// change the outcome.
		loggr.Error("task failed terminally", "error", err)
	}
}

// scheduleRetry republishes the task for the next attempt after the policy
// delay, or audits exhaustion when the budget is spent.
func (p *Pool) scheduleRetry(task taskModel.ProcessTask, loggr *logger_i.Logger) {
	if !p.policy.Allows(task.Attempt) {
		loggr.Error("retry budget exhausted", "attempts", task.Attempt)
		p.writeAudit(task.RecordId)
		return
	}

	next := taskModel.ProcessTask{
		RecordId: task.RecordId,
		Attempt:  task.Attempt + 1,
		TraceId:  task.TraceId,
	}
	delay := p.policy.Delay(next.Attempt)
	next.NotBefore = time.Now().Add(delay)

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		loggr.Info("pool stopping, retry dropped", "nextAttempt", next.Attempt)
		return
	}
	p.timers.Add(1)
	p.mu.Unlock()

	loggr.Info("scheduling retry", "nextAttempt", next.Attempt, "delay", delay)
	go func() {
		defer p.timers.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			publishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := p.queue.Publish(publishCtx, next); err != nil {
				loggr.Error("could not republish retry", "error", err)
			}
		case <-p.stop:
		}
	}()
}

func (p *Pool) writeAudit(recordId string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.audit.AppendAudit(ctx, recordModel.AuditEntry{
		Id:         uuid.NewString(),
		UserId:     "system",
		Action:     recordModel.ActionRetryExhausted,
		Resource:   "record",
		ResourceId: recordId,
	})
	if err != nil {
		p.logger.Error("could not append audit entry", "error", err)
	}
}
