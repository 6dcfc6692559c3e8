package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"knowledge-platform/internal/ai"
	"knowledge-platform/internal/chunker"
	"knowledge-platform/internal/config"
	"knowledge-platform/internal/extract"
	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/pipeline"
	"knowledge-platform/internal/quality"
	"knowledge-platform/internal/queue"
	"knowledge-platform/internal/retry"
	"knowledge-platform/internal/store"
	"knowledge-platform/internal/telemetry"
	"knowledge-platform/internal/vectorindex"
	"knowledge-platform/models"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("knowledge-worker", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracer:", err)
		}
		defer shutdown()
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	st := store.NewMongoStore(db)
	index := vectorindex.NewMongoIndex(db, cfg.VectorIndexName, cfg.VectorDimensions)

	encoder, err := ai.NewGeminiEncoder(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to initialize Gemini encoder:", err)
	}
	defer encoder.Close()

	embedder, err := ai.NewEmbedder(
		encoder,
		ai.NewRedisVectorCache(redisClient),
		cfg.EmbedBatchSize,
		cfg.EmbedBatchWait,
		cfg.EmbeddingCacheTTL,
		retry.Policy{MaxAttempts: cfg.MaxRetries, Base: cfg.RetryBase, Max: cfg.RetryMax},
	)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}

	tokenizer, err := ai.NewTokenizer(cfg.TokenizerEncoding)
	if err != nil {
		log.Fatal("Failed to initialize tokenizer:", err)
	}
	ch, err := chunker.New(cfg.TargetTokens, cfg.OverlapTokens, tokenizer)
	if err != nil {
		log.Fatal("Failed to initialize chunker:", err)
	}

	qualityEngine, err := quality.NewEngine(st.Quality, cfg.QualityWeights, cfg.TimelinessHalfLife)
	if err != nil {
		log.Fatal("Failed to initialize quality engine:", err)
	}

	ingest, err := pipeline.New(st, ch, qualityEngine, embedder, index, pipeline.Config{
		MinChunkChars:      cfg.MinChunkChars,
		MinQualityScore:    cfg.MinQualityScore,
		IndexBelowFloor:    cfg.IndexBelowFloor,
		NearDupThreshold:   cfg.NearDuplicateThreshold,
		EmbedStageTimeout:  cfg.EmbedTimeout,
		SourceFailureLimit: cfg.SourceFailureLimit,
	})
	if err != nil {
		log.Fatal("Failed to initialize pipeline:", err)
	}
	ingest.SetMetrics(metrics)

	webOpts := extract.WebOptions{
		UserAgent: cfg.ScrapingUserAgent,
		Delay:     cfg.ScrapingDelay,
		Timeout:   cfg.ScrapingTimeout,
		MaxPages:  cfg.MaxCrawlPages,
	}
	registry := extract.NewRegistry()
	registry.Register(models.SourceTypeFileDrop, extract.NewFileExtractor())
	registry.Register(models.SourceTypeWeb, extract.NewWebExtractor(webOpts))
	registry.Register(models.SourceTypeFeed, extract.NewFeedExtractor(webOpts))

	redisOpt := queue.RedisConnOpt(cfg)
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	lock := pipeline.NewSourceLock(redisClient, 0)
	processor := queue.NewTaskProcessor(st, ingest, registry, asynqClient, lock,
		cfg.ExtractTimeout, cfg.SourceFailureLimit)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
		StrictPriority: true,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("Task failed", "type", task.Type(), "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskSourcePoll, processor.HandleSourcePoll)
	mux.HandleFunc(queue.TaskDocumentIngest, processor.HandleDocumentIngest)
	mux.HandleFunc(queue.TaskReindexAll, processor.HandleReindexAll)

	logger.Info("Starting ingestion worker",
		"concurrency", cfg.WorkerConcurrency,
		"model", cfg.EmbeddingModel,
		"vector_index", cfg.VectorIndexName)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
