package insight

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/domain/taskModel"
	"github.com/kvallam/MedVaultAPI/internal/pipeline_test"
	"github.com/kvallam/MedVaultAPI/internal/rag/embedding/mock"
	"github.com/kvallam/MedVaultAPI/internal/rag/vectorStore/memoryStore"
)

type insightFixture struct {
	svc       *Service
	records   *pipeline_test.MockRecordStore
	audit     *pipeline_test.MockAuditStore
	blobs     *pipeline_test.MockBlobStore
	extractor *pipeline_test.MockExtractor
	embedder  *mock.Embedder
	chunks    *memoryStore.Store
	lease     *pipeline_test.MockLease
}

func newInsightFixture(t *testing.T) *insightFixture {
	t.Helper()

	f := &insightFixture{
		records:   pipeline_test.NewMockRecordStore(),
		audit:     &pipeline_test.MockAuditStore{},
		blobs:     pipeline_test.NewMockBlobStore(),
		extractor: &pipeline_test.MockExtractor{},
		embedder:  mock.NewEmbedder(),
		chunks:    memoryStore.NewStore(),
		lease:     pipeline_test.NewMockLease(),
	}

	svc, err := NewService(f.records, f.audit, f.blobs, f.extractor,
		f.embedder, f.chunks, f.lease)
	require.NoError(t, err)
	t.Cleanup(svc.Release)

	f.svc = svc
	return f
}

func (f *insightFixture) seedRecord(t *testing.T, recordId string, body string) {
	t.Helper()
	ref, err := f.blobs.Put(context.Background(), []byte(body), "text/plain")
	require.NoError(t, err)
	f.records.Seed(recordModel.Record{
		Id:         recordId,
		PatientId:  "patient-1",
		Title:      "discharge summary",
		MimeType:   "text/plain",
		StorageRef: ref,
		Status:     recordModel.StatusUploaded,
	})
}

func TestProcessHappyPath(t *testing.T) {
	f := newInsightFixture(t)
	f.seedRecord(t, "rec-1", "patient presents with elevated blood pressure")

	err := f.svc.Process(context.Background(), taskModel.ProcessTask{RecordId: "rec-1", Attempt: 1})
	require.NoError(t, err)

	record, ok := f.records.Stored("rec-1")
	require.True(t, ok)
	assert.Equal(t, recordModel.StatusProcessed, record.Status)
	assert.False(t, record.NoContent)
	assert.Equal(t, record.ChunkCount, f.chunks.ChunkCount("rec-1"))
	assert.Greater(t, record.ChunkCount, 0)
	assert.Contains(t, f.audit.Actions(), recordModel.ActionProcessRecord)
}

func TestProcessIsIdempotent(t *testing.T) {
	f := newInsightFixture(t)
	f.seedRecord(t, "rec-1", "a long note about medication adherence and follow up visits")

	require.NoError(t, f.svc.Process(context.Background(), taskModel.ProcessTask{RecordId: "rec-1", Attempt: 1}))
	firstCount := f.chunks.ChunkCount("rec-1")

	// Redelivery after the lease lapsed must not duplicate chunks.
	require.NoError(t, f.svc.Process(context.Background(), taskModel.ProcessTask{RecordId: "rec-1", Attempt: 1}))
	assert.Equal(t, firstCount, f.chunks.ChunkCount("rec-1"))
}

func TestProcessEmptyExtraction(t *testing.T) {
	f := newInsightFixture(t)
	f.seedRecord(t, "rec-1", "   \n\t  ")

	err := f.svc.Process(context.Background(), taskModel.ProcessTask{RecordId: "rec-1", Attempt: 1})
	require.NoError(t, err)

	record, ok := f.records.Stored("rec-1")
	require.True(t, ok)
	assert.Equal(t, recordModel.StatusProcessed, record.Status)
	assert.True(t, record.NoContent)
	assert.Equal(t, 0, record.ChunkCount)
	assert.Equal(t, 0, f.chunks.ChunkCount("rec-1"))
}

func TestProcessEmptyExtractionClearsStaleChunks(t *testing.T) {
	f := newInsightFixture(t)
	f.seedRecord(t, "rec-1", "real content the first time around")
	require.NoError(t, f.svc.Process(context.Background(), taskModel.ProcessTask{RecordId: "rec-1", Attempt: 1}))
	require.Greater(t, f.chunks.ChunkCount("rec-1"), 0)

	// The re-extracted document is now empty; old chunks must not linger.
	f.extractor.OnExtract = func(ctx context.Context, data []byte, mimeType string) (string, error) {
		return "", nil
	}
	require.NoError(t, f.svc.Process(context.Background(), taskModel.ProcessTask{RecordId: "rec-1", Attempt: 2}))
	assert.Equal(t, 0, f.chunks.ChunkCount("rec-1"))
}

func TestProcessLeaseHeldElsewhere(t *testing.T) {
	f := newInsightFixture(t)
	f.seedRecord(t, "rec-1", "content")

	_, ok, err := f.lease.Acquire(context.Background(), "rec-1", 0)
	require.NoError(t, err)
	require.True(t, ok)

	err = f.svc.Process(context.Background(), taskModel.ProcessTask{RecordId: "rec-1", Attempt: 1})
	assert.True(t, errors.Is(err, faults.ErrAlreadyProcessing))

	record, _ := f.records.Stored("rec-1")
	assert.Equal(t, recordModel.StatusUploaded, record.Status, "skipped task must not touch the record")
}

func TestProcessEmbeddingFailureMarksFailed(t *testing.T) {
	f := newInsightFixture(t)
	f.seedRecord(t, "rec-1", "content that would need embedding")
	f.embedder.EmbedChunksFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, faults.Unavailable("embedding provider", errors.New("quota"))
	}

	err := f.svc.Process(context.Background(), taskModel.ProcessTask{RecordId: "rec-1", Attempt: 2})
	assert.True(t, errors.Is(err, faults.ErrCapabilityUnavailable))

	record, _ := f.records.Stored("rec-1")
	assert.Equal(t, recordModel.StatusFailed, record.Status)
	assert.Equal(t, 2, record.RetryCount)
	assert.Equal(t, 0, f.chunks.ChunkCount("rec-1"))
}

func TestProcessExtractionFailure(t *testing.T) {
	f := newInsightFixture(t)
	f.seedRecord(t, "rec-1", "bytes")
	f.extractor.OnExtract = func(ctx context.Context, data []byte, mimeType string) (string, error) {
		return "", faults.Unavailable("recognizer", errors.New("offline"))
	}

	err := f.svc.Process(context.Background(), taskModel.ProcessTask{RecordId: "rec-1", Attempt: 1})
	assert.True(t, errors.Is(err, faults.ErrCapabilityUnavailable))

	record, _ := f.records.Stored("rec-1")
	assert.Equal(t, recordModel.StatusFailed, record.Status)
}

func TestProcessMissingRecord(t *testing.T) {
	f := newInsightFixture(t)

	err := f.svc.Process(context.Background(), taskModel.ProcessTask{RecordId: "ghost", Attempt: 1})
	assert.True(t, errors.Is(err, faults.ErrNotFound))
}
