package retry

import "time"

// Policy is the explicit attempt-count → delay function for insight stage
// retries. It is independent of how tasks are queued so the bound stays
// testable without workers or redis.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Allows reports whether another attempt may be scheduled after the given
// attempt number (1-based) failed.
func (p Policy) Allows(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Delay returns the backoff before the given attempt (1-based): BaseDelay
// doubled per prior attempt, capped at MaxDelay. Attempt 1 runs immediately.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := p.BaseDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
