package insight

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/kvallam/MedVaultAPI/internal/capability/blobStore"
	"github.com/kvallam/MedVaultAPI/internal/capability/textExtract"
	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/domain/taskModel"
	"github.com/kvallam/MedVaultAPI/internal/metrics"
	"github.com/kvallam/MedVaultAPI/internal/rag/embedding"
	"github.com/kvallam/MedVaultAPI/internal/rag/vectorStore"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

// Service turns an uploaded record into searchable chunks: fetch the bytes,
// extract text, split, embed, and replace the record's chunk set wholesale.
// A per-record lease keeps concurrent deliveries of the same task from
// interleaving.
type Service struct {
	records   recordModel.RecordStore
	audit     recordModel.AuditStore
	blobs     blobStore.Gateway
	extractor textExtract.Extractor
	embedder  embedding.Embedder
	chunks    vectorStore.ChunkStore
	lease     taskModel.Lease
	pool      *ants.Pool
	logger    *logger_i.Logger
}

func NewService(records recordModel.RecordStore, audit recordModel.AuditStore,
	blobs blobStore.Gateway, extractor textExtract.Extractor,
	embedder embedding.Embedder, chunks vectorStore.ChunkStore,
	lease taskModel.Lease) (*Service, error) {

	pool, err := ants.NewPool(config.EmbeddingPoolSize)
	if err != nil {
		return nil, fmt.Errorf("creating embedding pool: %w", err)
	}

	return &Service{
		records:   records,
		audit:     audit,
		blobs:     blobs,
		extractor: extractor,
		embedder:  embedder,
		chunks:    chunks,
		lease:     lease,
		pool:      pool,
		logger:    logger_i.NewLogger("insight"),
	}, nil
}

// Release frees the embedding pool.
func (s *Service) Release() {
	s.pool.Release()
}

// Process runs one processing attempt for a record. Returns
// faults.ErrAlreadyProcessing when another worker holds the lease; that is a
// no-op for the caller, not a failure. Capability errors mark the record
// failed and are surfaced so the worker can consult the retry policy.
func (s *Service) Process(ctx context.Context, task taskModel.ProcessTask) error {
	loggr := s.logger.With("traceId", task.TraceId, "recordId", task.RecordId,
		"attempt", task.Attempt)

	token, ok, err := s.lease.Acquire(ctx, task.RecordId, config.ProcessingLeaseTTL)
	if err != nil {
		return faults.Unavailable("processing lease", err)
	}
	if !ok {
		loggr.Info("lease held elsewhere, skipping")
		return fmt.Errorf("record %s: %w", task.RecordId, faults.ErrAlreadyProcessing)
	}
	defer func() {
		if releaseErr := s.lease.Release(context.WithoutCancel(ctx), task.RecordId, token); releaseErr != nil {
			loggr.Error("could not release lease", "error", releaseErr)
		}
	}()

	start := time.Now()
	err = s.process(ctx, task, loggr)
	if err != nil {
		metrics.CaptureProcessingMetrics("failure", time.Since(start))
		if markErr := s.records.MarkFailed(ctx, task.RecordId, task.Attempt); markErr != nil {
			loggr.Error("could not mark record failed", "error", markErr)
		}
		loggr.Error("processing attempt failed", "error", err)
		return err
	}

	metrics.CaptureProcessingMetrics("success", time.Since(start))
	s.writeAudit(ctx, task, recordModel.ActionProcessRecord)
	return nil
}

func (s *Service) process(ctx context.Context, task taskModel.ProcessTask, loggr *logger_i.Logger) error {
	record, err := s.records.GetRecord(ctx, task.RecordId)
	if err != nil {
		return err
	}
	if record.StorageRef == "" {
		return faults.Validation("record %s has no stored document", record.Id)
	}

	if err := s.records.SetStatus(ctx, record.Id, recordModel.StatusProcessing); err != nil {
		return err
	}

	storageCtx, cancel := context.WithTimeout(ctx, config.StorageCallTimeout)
	data, err := s.blobs.Get(storageCtx, record.StorageRef)
	cancel()
	if err != nil {
		return faults.Unavailable("blob storage", err)
	}

	extractCtx, cancel := context.WithTimeout(ctx, config.ExtractionCallTimeout)
	text, err := s.extractor.Extract(extractCtx, data, record.MimeType)
	cancel()
	if err != nil {
		return err
	}

	if strings.TrimSpace(text) == "" {
		loggr.Info("no extractable text, marking processed with no content")
		if err := s.chunks.ReplaceRecordChunks(ctx, record.Id, nil, nil); err != nil {
			return faults.Unavailable("vector store", err)
		}
		return s.records.MarkProcessed(ctx, record.Id, 0, true)
	}

	texts := splitTextIntoChunks(text, config.ChunkTargetSize, config.ChunkOverlap)
	stored := make([]vectorStore.StoredChunk, len(texts))
	for i, chunkText := range texts {
		stored[i] = vectorStore.StoredChunk{
			Id:       uuid.NewString(),
			RecordId: record.Id,
			Seq:      i,
			Text:     chunkText,
			CharLen:  len(chunkText),
		}
	}

	vectors, err := s.embedBatches(ctx, texts)
	if err != nil {
		return err
	}

	if err := s.chunks.ReplaceRecordChunks(ctx, record.Id, stored, vectors); err != nil {
		return faults.Unavailable("vector store", err)
	}

	loggr.Info("record processed", "chunks", len(stored))
	return s.records.MarkProcessed(ctx, record.Id, len(stored), false)
}

// embedBatches embeds chunk texts in fixed-size batches on the shared pool.
// Batch order is preserved by writing each result into its own slice window.
func (s *Service) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for offset := 0; offset < len(texts); offset += config.EmbeddingBatchSize {
		end := offset + config.EmbeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batchStart, batchEnd := offset, end

		wg.Add(1)
		submitErr := s.pool.Submit(func() {
			defer wg.Done()

			embedCtx, cancel := context.WithTimeout(ctx, config.EmbeddingCallTimeout)
			defer cancel()

			start := time.Now()
			batchVectors, err := s.embedder.EmbedChunks(embedCtx, texts[batchStart:batchEnd])
			metrics.CaptureDependencyMetrics("embedding", time.Since(start))
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			copy(vectors[batchStart:batchEnd], batchVectors)
		})
		if submitErr != nil {
			wg.Done()
			return nil, faults.Unavailable("embedding pool", submitErr)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

func (s *Service) writeAudit(ctx context.Context, task taskModel.ProcessTask, action string) {
	err := s.audit.AppendAudit(ctx, recordModel.AuditEntry{
		Id:         uuid.NewString(),
		UserId:     "system",
		Action:     action,
		Resource:   "record",
		ResourceId: task.RecordId,
	})
	if err != nil {
		s.logger.Error("could not append audit entry", "action", action, "error", err)
	}
}
