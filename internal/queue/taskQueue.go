package queue

import (
	"context"
	"sync"

	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/taskModel"
	"github.com/kvallam/MedVaultAPI/internal/metrics"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

// ChannelQueue is the in-process task queue. A saturated or closed queue is a
// capability failure surfaced to the publisher - processing is never run
// inline as a fallback.
type ChannelQueue struct {
	tasks  chan taskModel.ProcessTask
	mu     sync.RWMutex
	closed bool
	logger *logger_i.Logger
}

func NewChannelQueue(buffer int) *ChannelQueue {
	return &ChannelQueue{
		tasks:  make(chan taskModel.ProcessTask, buffer),
		logger: logger_i.NewLogger("TaskQueue"),
	}
}

func (q *ChannelQueue) Publish(ctx context.Context, task taskModel.ProcessTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return faults.Unavailable("task queue", context.Canceled)
	}

	select {
	case q.tasks <- task:
		metrics.IncrementTasksInQueue()
		q.logger.Debug("task published", "recordId", task.RecordId, "attempt", task.Attempt)
		return nil
	case <-ctx.Done():
		return faults.Unavailable("task queue", ctx.Err())
	default:
		q.logger.Error("task queue saturated", "recordId", task.RecordId)
		return faults.Unavailable("task queue", ErrSaturated)
	}
}

func (q *ChannelQueue) Tasks() <-chan taskModel.ProcessTask {
	return q.tasks
}

func (q *ChannelQueue) Depth() int {
	return len(q.tasks)
}

// Close stops accepting publishes and closes the task channel so consumers
// drain and exit.
func (q *ChannelQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}
