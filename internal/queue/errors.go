package queue

import "errors"

// ErrSaturated indicates the buffered channel is full; the publisher sees it
// wrapped in faults.ErrCapabilityUnavailable.
var ErrSaturated = errors.New("queue buffer full")
