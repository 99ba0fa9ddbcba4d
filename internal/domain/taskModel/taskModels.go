package taskModel

import (
	"context"
	"time"
)

// ProcessTask asks the insight stage to process one record. Attempt counts
// from 1 so the retry policy can compute the next delay directly.
type ProcessTask struct {
	RecordId  string    `json:"record_id"`
	Attempt   int       `json:"attempt"`
	TraceId   string    `json:"trace_id"`
	NotBefore time.Time `json:"not_before,omitempty"`
}

// Queue decouples ingestion from insight execution timing. The only
// implementation today is an in-process buffered channel; the interface keeps
// an external broker swappable without touching the stages.
type Queue interface {
	Publish(ctx context.Context, task ProcessTask) error
	Tasks() <-chan ProcessTask
	Depth() int
	Close()
}

// Lease is a time-bounded exclusive claim on processing one record. Acquire
// returns ok=false while another holder is live; the TTL is the only recovery
// path for a stuck task.
type Lease interface {
	Acquire(ctx context.Context, recordId string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, recordId string, token string) error
}
