package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/metrics"
	"github.com/kvallam/MedVaultAPI/internal/rag/embedding"
	"github.com/kvallam/MedVaultAPI/internal/rag/llm"
	"github.com/kvallam/MedVaultAPI/internal/rag/vectorStore"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

// SearchHit is the best-scoring chunk of one record within the caller's
// scope.
type SearchHit struct {
	RecordId    string                   `json:"record_id"`
	Title       string                   `json:"title"`
	Status      recordModel.RecordStatus `json:"status"`
	Snippet     string                   `json:"snippet"`
	Score       float32                  `json:"score"`
	Seq         int                      `json:"seq"`
	UpdatedTime time.Time                `json:"updated_time"`
}

// Answer is the outcome of one question over one record.
type Answer struct {
	RecordId      string `json:"record_id"`
	Text          string `json:"text"`
	ContextChunks int    `json:"context_chunks"`
}

// Service answers scoped semantic search and per-record questions. The access
// scope is resolved first and applied inside the vector search; chunks outside
// it are never ranked.
type Service struct {
	records  recordModel.RecordStore
	access   recordModel.AccessStore
	audit    recordModel.AuditStore
	embedder embedding.Embedder
	chunks   vectorStore.ChunkStore
	llm      llm.Provider
	logger   *logger_i.Logger
}

func NewService(records recordModel.RecordStore, access recordModel.AccessStore,
	audit recordModel.AuditStore, embedder embedding.Embedder,
	chunks vectorStore.ChunkStore, provider llm.Provider) *Service {
	return &Service{
		records:  records,
		access:   access,
		audit:    audit,
		embedder: embedder,
		chunks:   chunks,
		llm:      provider,
		logger:   logger_i.NewLogger("retrieval"),
	}
}

// Search ranks the caller's accessible records against the query and returns
// at most topK of them, best chunk per record, scores below the floor
// dropped. An empty scope short-circuits to no hits without touching the
// embedder.
func (s *Service) Search(ctx context.Context, caller recordModel.Caller, query string, topK int) ([]SearchHit, error) {
	loggr := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY))

	if strings.TrimSpace(query) == "" {
		return nil, faults.Validation("empty query")
	}
	if topK <= 0 {
		topK = config.DefaultSearchTopK
	}
	if topK > config.MaxSearchTopK {
		topK = config.MaxSearchTopK
	}

	scope, err := ResolveScope(ctx, caller, s.access)
	if err != nil {
		return nil, err
	}
	metrics.IncrementSearches()
	s.writeAudit(ctx, caller.UserId, recordModel.ActionSemanticSearch, "")
	if len(scope) == 0 {
		loggr.Debug("empty access scope, no hits", "userId", caller.UserId)
		return nil, nil
	}

	start := time.Now()
	vector, err := s.embedder.EmbedQuery(ctx, query)
	metrics.CaptureDependencyMetrics("embedding", time.Since(start))
	if err != nil {
		return nil, faults.Unavailable("embedding provider", err)
	}

	// Over-fetch so deduping to one chunk per record still fills topK.
	rawHits, err := s.chunks.SearchScoped(ctx, vector, scope, topK*4)
	if err != nil {
		return nil, faults.Unavailable("vector store", err)
	}

	bestPerRecord := make(map[string]vectorStore.Hit)
	for _, hit := range rawHits {
		if hit.Score < config.MinSearchScore {
			continue
		}
		if best, ok := bestPerRecord[hit.Chunk.RecordId]; !ok || hit.Score > best.Score {
			bestPerRecord[hit.Chunk.RecordId] = hit
		}
	}
	if len(bestPerRecord) == 0 {
		return nil, nil
	}

	recordIds := make([]string, 0, len(bestPerRecord))
	for recordId := range bestPerRecord {
		recordIds = append(recordIds, recordId)
	}
	records, err := s.records.GetRecords(ctx, recordIds)
	if err != nil {
		return nil, err
	}
	byId := make(map[string]recordModel.Record, len(records))
	for _, record := range records {
		byId[record.Id] = record
	}

	hits := make([]SearchHit, 0, len(bestPerRecord))
	for recordId, hit := range bestPerRecord {
		record, ok := byId[recordId]
		if !ok {
			// Chunk outlived its record row; skip rather than leak an id.
			continue
		}
		hits = append(hits, SearchHit{
			RecordId:    recordId,
			Title:       record.Title,
			Status:      record.Status,
			Snippet:     snippet(hit.Chunk.Text),
			Score:       hit.Score,
			Seq:         hit.Chunk.Seq,
			UpdatedTime: record.UpdatedTime,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].UpdatedTime.After(hits[j].UpdatedTime)
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	loggr.Info("search served", "userId", caller.UserId, "scope", len(scope), "hits", len(hits))
	return hits, nil
}

// Ask answers a question from one record's chunks. Access is checked before
// anything else; a denial is audited. A record with no searchable content
// yields the fixed no-content answer and never reaches the completion
// provider.
func (s *Service) Ask(ctx context.Context, caller recordModel.Caller, recordId string, question string) (Answer, error) {
	loggr := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY))

	if recordId == "" {
		return Answer{}, faults.Validation("missing record id")
	}
	if strings.TrimSpace(question) == "" {
		return Answer{}, faults.Validation("empty question")
	}

	allowed, err := CanAccess(ctx, caller, s.access, recordId)
	if err != nil {
		return Answer{}, err
	}
	if !allowed {
		s.writeAudit(ctx, caller.UserId, recordModel.ActionAccessDenied, recordId)
		metrics.IncrementAccessDenied()
		return Answer{}, fmt.Errorf("user %s record %s: %w",
			caller.UserId, recordId, faults.ErrAccessDenied)
	}

	record, err := s.records.GetRecord(ctx, recordId)
	if err != nil {
		return Answer{}, err
	}

	answer := Answer{RecordId: recordId}
	if record.Status != recordModel.StatusProcessed || record.NoContent || record.ChunkCount == 0 {
		answer.Text = config.NoContentAnswer
		s.writeAudit(ctx, caller.UserId, recordModel.ActionAskQuestion, recordId)
		return answer, nil
	}

	start := time.Now()
	vector, err := s.embedder.EmbedQuery(ctx, question)
	metrics.CaptureDependencyMetrics("embedding", time.Since(start))
	if err != nil {
		return Answer{}, faults.Unavailable("embedding provider", err)
	}

	hits, err := s.chunks.SearchRecord(ctx, vector, recordId, config.AskContextChunks)
	if err != nil {
		return Answer{}, faults.Unavailable("vector store", err)
	}
	if len(hits) == 0 {
		answer.Text = config.NoContentAnswer
		s.writeAudit(ctx, caller.UserId, recordModel.ActionAskQuestion, recordId)
		return answer, nil
	}

	contextChunks := boundedContext(hits, config.AskContextCharLimit)

	start = time.Now()
	text, err := s.llm.Generate(ctx, question, contextChunks)
	metrics.CaptureDependencyMetrics("completion", time.Since(start))
	if err != nil {
		return Answer{}, err
	}

	answer.Text = text
	answer.ContextChunks = len(contextChunks)
	s.writeAudit(ctx, caller.UserId, recordModel.ActionAskQuestion, recordId)

	loggr.Info("question answered", "userId", caller.UserId, "recordId", recordId,
		"contextChunks", len(contextChunks))
	return answer, nil
}

// boundedContext keeps hits in rank order until the character budget runs
// out, always admitting at least the first.
func boundedContext(hits []vectorStore.Hit, charLimit int) []string {
	var out []string
	used := 0
	for _, hit := range hits {
		if len(out) > 0 && used+len(hit.Chunk.Text) > charLimit {
			break
		}
		out = append(out, hit.Chunk.Text)
		used += len(hit.Chunk.Text)
	}
	return out
}

func snippet(text string) string {
	if len(text) > config.SnippetCharLimit {
		return text[:config.SnippetCharLimit]
	}
	return text
}

func (s *Service) writeAudit(ctx context.Context, userId string, action string, resourceId string) {
	err := s.audit.AppendAudit(ctx, recordModel.AuditEntry{
		Id:         uuid.NewString(),
		UserId:     userId,
		Action:     action,
		Resource:   "record",
		ResourceId: resourceId,
	})
	if err != nil {
		s.logger.Error("could not append audit entry", "action", action, "error", err)
	}
}
