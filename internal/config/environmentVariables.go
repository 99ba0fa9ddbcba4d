package config

import (
	"log/slog"
	"os"
	"time"
)

const (
	IS_PROD        = false
	LOG_LEVEL_PROD = slog.LevelInfo
	TRACE_ID_KEY   = "traceId"

	// NoAuthBypass disables bearer auth entirely. Local development only.
	NoAuthBypass = false

	RATE_LIMIT_PER_SECOND       = 5
	BURST_RATE_LIMIT_PER_SECOND = 10

	//server
	ServerListenAddr       = ":3000"
	ReadTimeout            = 10 * time.Second
	WriteTimeout           = 30 * time.Second
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second

	//uploads
	MaxUploadBytes = 32 << 20 //32mb

	//chunking - overlap stays well under a quarter of the target size
	ChunkTargetSize = 1000 //characters
	ChunkOverlap    = 150

	//embeddings
	EmbeddingOutputDimensionality int32 = 1536
	EmbeddingBatchSize                  = 100
	EmbeddingPoolSize                   = 4

	GoogleEmbeddingModel = "gemini-embedding-001"
	GeminiModelName      = "gemini-2.5-flash-lite-preview-09-2025"
	GeminiVisionModel    = "gemini-2.5-flash-lite-preview-09-2025"
	OpenAIEmbeddingModel = "text-embedding-3-small"
	OpenAICompletionModel = "gpt-4o-mini"

	//retrieval
	MinSearchScore      float32 = 0.35
	DefaultSearchTopK           = 5
	MaxSearchTopK               = 25
	AskContextChunks            = 4
	AskContextCharLimit         = 4000
	SnippetCharLimit            = 500
	AskSystemPrompt             = "You are a medical records assistant. Answer strictly from the provided document context. Be precise and cite the relevant passage. If the context does not contain the answer, say so."
	// NoContentAnswer is returned deterministically when a record has no
	// searchable chunks; the completion provider is never called for it.
	NoContentAnswer = "Not enough information: this record has no searchable content yet."

	//insight stage
	ProcessingLeaseTTL    = 2 * time.Minute
	MaxProcessAttempts    = 3
	RetryBaseDelay        = 5 * time.Second
	RetryMaxDelay         = time.Minute
	ExtractionCallTimeout = 30 * time.Second
	EmbeddingCallTimeout  = 30 * time.Second
	StorageCallTimeout    = 30 * time.Second
	ProcessTaskTimeout    = 90 * time.Second

	//task queue
	QueueBufferLimit = 100

	//worker pool
	WorkerCount       = 2
	IdleWorkerTimeout = time.Minute

	//storage gateway
	SignedURLTTL = time.Hour

	//vectorDB
	QdrantGrpcPort         = 6334
	QdrantUseTLS           = false
	QdrantPoolSize         = 1
	ChunkCollectionName    = "medvault-chunks"

	//redis lease store
	redisHost         = "127.0.0.1"
	redisPort         = "6379"
	RedisAddr         = redisHost + ":" + redisPort
	RedisLeaseDB      = 0
	RedisDialTimeout  = 3 * time.Second
)

// AllowedMimeTypes is the upload allow-list: pdf, common image types, and the
// plain-text family the extractor understands.
var AllowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/tiff":      true,
	"text/plain":      true,
	"application/rtf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// Env returns the environment value for key, or fallback when unset. Adapters
// call this at construction time; nothing reads the environment afterwards.
func Env(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
