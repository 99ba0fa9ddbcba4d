// @title           MedVault API
// @version         1.0
// @description     Medical record ingestion, semantic search, and question answering with role-based access control.
// @termsOfService  http://swagger.io/terms/

// @contact.name    me lol
// @contact.url
// @contact.email

// @license.name    Apache 2.0
// @license.url     http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3000
// @BasePath  /
// @schemes   http https
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/genai"

	"github.com/kvallam/MedVaultAPI/internal/capability/blobStore"
	"github.com/kvallam/MedVaultAPI/internal/capability/textExtract"
	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/data/leaseStore"
	"github.com/kvallam/MedVaultAPI/internal/data/metaStore"
	"github.com/kvallam/MedVaultAPI/internal/domain/taskModel"
	"github.com/kvallam/MedVaultAPI/internal/handlers"
	"github.com/kvallam/MedVaultAPI/internal/ingest"
	"github.com/kvallam/MedVaultAPI/internal/insight"
	"github.com/kvallam/MedVaultAPI/internal/middleware"
	"github.com/kvallam/MedVaultAPI/internal/orchestrator"
	"github.com/kvallam/MedVaultAPI/internal/queue"
	"github.com/kvallam/MedVaultAPI/internal/rag/embedding"
	"github.com/kvallam/MedVaultAPI/internal/rag/embedding/googleEmbedding"
	"github.com/kvallam/MedVaultAPI/internal/rag/embedding/openaiEmbedding"
	"github.com/kvallam/MedVaultAPI/internal/rag/llm"
	"github.com/kvallam/MedVaultAPI/internal/rag/llm/gemini"
	"github.com/kvallam/MedVaultAPI/internal/rag/llm/openaiLLM"
	"github.com/kvallam/MedVaultAPI/internal/rag/vectorStore"
	"github.com/kvallam/MedVaultAPI/internal/rag/vectorStore/memoryStore"
	"github.com/kvallam/MedVaultAPI/internal/rag/vectorStore/qdrantStore"
	"github.com/kvallam/MedVaultAPI/internal/retrieval"
	"github.com/kvallam/MedVaultAPI/internal/retry"
	"github.com/kvallam/MedVaultAPI/internal/server"
	"github.com/kvallam/MedVaultAPI/internal/worker"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

var listenAddr string

func main() {

	logger_i.Init()
	var logger = logger_i.NewLogger("main")

	//config
	flag.StringVar(&listenAddr, "listen-addr", config.ServerListenAddr, "server listen address")
	flag.Parse()

	serviceContext, closeExternalServices := context.WithCancel(context.Background())
	defer closeExternalServices()

	//metadata store
	meta, err := metaStore.NewStore(config.Env("DATA_DIR", "./data"))
	if err != nil {
		logger.Error("Could not open metadata store", "error", err)
		return
	}

	//document storage
	blobs, err := blobStore.NewDiskStore(
		config.Env("BLOB_DIR", "./data/blobs"),
		config.Env("BASE_URL", "http://localhost:3000"),
		config.Env("BLOB_SIGN_KEY", ""),
	)
	if err != nil {
		logger.Error("Could not open blob store", "error", err)
		return
	}

	//processing lease: redis when reachable, in-process otherwise
	var lease taskModel.Lease
	redisLease := leaseStore.NewRedisLease(serviceContext, config.Env("REDIS_ADDR", config.RedisAddr))
	if redisLease != nil {
		lease = redisLease
	} else {
		logger.Error("Redis is offline, falling back to in-process lease")
		lease = leaseStore.NewMemoryLease()
	}

	embedder, provider, recognizer := buildAIProviders(serviceContext, logger)
	if embedder == nil || provider == nil {
		logger.Error("AI provider failed to initialize. Shutting down.",
			"embedder", embedder != nil, "llm", provider != nil)
		return
	}

	chunks := buildChunkStore(serviceContext, logger)
	extractor := textExtract.NewRouter(recognizer)
	taskQueue := queue.NewChannelQueue(config.QueueBufferLimit)

	insightService, err := insight.NewService(meta, meta, blobs, extractor, embedder, chunks, lease)
	if err != nil {
		logger.Error("Could not start insight stage", "error", err)
		return
	}

	orch := orchestrator.New(taskQueue, meta, meta)
	orch.Register(orchestrator.StageFunc{StageName: "ingestion", Probe: func(ctx context.Context) error {
		_, err := meta.PatientExists(ctx, "health-probe")
		return err
	}})
	orch.Register(orchestrator.StageFunc{StageName: "insight", Probe: chunks.EnsureReady})
	orch.Register(orchestrator.StageFunc{StageName: "retrieval", Probe: func(ctx context.Context) error {
		if _, err := meta.AllRecordIds(ctx); err != nil {
			return err
		}
		return chunks.EnsureReady(ctx)
	}})

	ingestService := ingest.NewService(meta, meta, blobs, orch)
	retrievalService := retrieval.NewService(meta, meta, meta, embedder, chunks, provider)

	pool := worker.NewPool(taskQueue, insightService, retry.Policy{
		MaxAttempts: config.MaxProcessAttempts,
		BaseDelay:   config.RetryBaseDelay,
		MaxDelay:    config.RetryMaxDelay,
	}, meta)
	pool.Start(config.WorkerCount)

	handler := handlers.NewHandler(ingestService, retrievalService, orch, meta, meta, meta, blobs, chunks)
	chain := middleware.NewChain(config.Env("AUTH_TOKEN", ""))
	srv := server.New(listenAddr, handler, chain)

	//server handling
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	stopExecution := make(chan bool, 1)

	shutdownParams := server.ShutdownParams{
		GracefulShutdown: gracefulShutdown,
		StopExecution:    stopExecution,
		StopWorkers: func() {
			taskQueue.Close()
			pool.Stop()
		},
		CloseServices: func() {
			insightService.Release()
			closeExternalServices()
			if closer, ok := chunks.(interface{ Close() error }); ok {
				if err := closer.Close(); err != nil {
					logger.Error("Could not close vector store", "error", err)
				}
			}
			if redisLease != nil {
				if err := redisLease.Close(); err != nil {
					logger.Error("Could not close redis lease", "error", err)
				}
			}
			if err := meta.Close(); err != nil {
				logger.Error("Could not close metadata store", "error", err)
			}
		},
	}
	go srv.ShutDownHandler(shutdownParams)
	go srv.ListenAndServe()

	<-stopExecution
	logger.Info("Server stopped")
}

// buildAIProviders wires the embedding, completion, and OCR capabilities for
// the configured provider. OCR is only available on the google path; without
// it image uploads fail at processing time with a capability error.
func buildAIProviders(ctx context.Context, logger *logger_i.Logger) (embedding.Embedder, llm.Provider, textExtract.Recognizer) {
	switch config.Env("AI_PROVIDER", "google") {
	case "openai":
		apiKey := config.Env("OPENAI_API_KEY", "")
		if apiKey == "" {
			logger.Error("OPENAI_API_KEY is not set")
			return nil, nil, nil
		}
		client := openai.NewClient(option.WithAPIKey(apiKey))
		return openaiEmbedding.NewEmbedder(client, config.OpenAIEmbeddingModel),
			openaiLLM.NewProvider(client, config.OpenAICompletionModel),
			nil

	default:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: config.Env("GEMINI_API_KEY", "")})
		if err != nil {
			logger.Error("Could not create genai client", "error", err)
			return nil, nil, nil
		}
		return googleEmbedding.NewEmbedder(client, config.GoogleEmbeddingModel),
			gemini.NewProvider(client, config.GeminiModelName),
			textExtract.NewGeminiRecognizer(client, config.GeminiVisionModel)
	}
}

// buildChunkStore prefers qdrant and falls back to the in-memory store so the
// service stays usable without it. Memory-store contents die with the process.
func buildChunkStore(ctx context.Context, logger *logger_i.Logger) vectorStore.ChunkStore {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:     config.Env("QDRANT_HOST", "localhost"),
		Port:     config.QdrantGrpcPort,
		UseTLS:   config.QdrantUseTLS,
		PoolSize: uint(config.QdrantPoolSize),
	})
	if err != nil {
		logger.Error("Qdrant is offline, falling back to in-memory chunk store", "error", err)
		return memoryStore.NewStore()
	}

	store := qdrantStore.NewStore(client, config.ChunkCollectionName)
	if err := store.EnsureReady(ctx); err != nil {
		logger.Error("Qdrant collection unavailable, falling back to in-memory chunk store", "error", err)
		return memoryStore.NewStore()
	}
	return store
}
