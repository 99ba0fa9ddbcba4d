package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/taskModel"
)

func TestPublishAndConsume(t *testing.T) {
	q := NewChannelQueue(2)
	defer q.Close()

	require.NoError(t, q.Publish(context.Background(), taskModel.ProcessTask{RecordId: "rec-1", Attempt: 1}))
	assert.Equal(t, 1, q.Depth())

	task := <-q.Tasks()
	assert.Equal(t, "rec-1", task.RecordId)
	assert.Equal(t, 0, q.Depth())
}

func TestPublishSaturatedQueueFailsFast(t *testing.T) {
	q := NewChannelQueue(1)
	defer q.Close()

	require.NoError(t, q.Publish(context.Background(), taskModel.ProcessTask{RecordId: "rec-1"}))

	err := q.Publish(context.Background(), taskModel.ProcessTask{RecordId: "rec-2"})
	assert.True(t, errors.Is(err, faults.ErrCapabilityUnavailable),
		"saturation is a capability failure, never an inline fallback")
	assert.True(t, errors.Is(err, ErrSaturated))
}

func TestPublishAfterClose(t *testing.T) {
	q := NewChannelQueue(1)
	q.Close()

	err := q.Publish(context.Background(), taskModel.ProcessTask{RecordId: "rec-1"})
	assert.True(t, errors.Is(err, faults.ErrCapabilityUnavailable))

	// Close is idempotent.
	q.Close()
}

func TestCloseDrainsConsumers(t *testing.T) {
	q := NewChannelQueue(2)
	require.NoError(t, q.Publish(context.Background(), taskModel.ProcessTask{RecordId: "rec-1"}))
	q.Close()

	task, ok := <-q.Tasks()
	assert.True(t, ok)
	assert.Equal(t, "rec-1", task.RecordId)

	_, ok = <-q.Tasks()
	assert.False(t, ok, "channel closes after the buffer drains")
}
