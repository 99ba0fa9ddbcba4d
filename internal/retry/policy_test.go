package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyAllows(t *testing.T) {
	p := Policy{MaxAttempts: 3}

	assert.True(t, p.Allows(1))
	assert.True(t, p.Allows(2))
	assert.False(t, p.Allows(3), "third failed attempt exhausts a budget of 3")
	assert.False(t, p.Allows(4))
}

func TestPolicyDelayDoublesAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: 5 * time.Second, MaxDelay: time.Minute}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 0},
		{2, 5 * time.Second},
		{3, 10 * time.Second},
		{4, 20 * time.Second},
		{5, 40 * time.Second},
		{6, time.Minute},
		{7, time.Minute},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, p.Delay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestPolicyDelayZeroAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}
	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, time.Duration(0), p.Delay(-1))
}
