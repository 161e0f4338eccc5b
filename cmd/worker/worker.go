package main

import (
	"context"
	"log"
	"time"

	"brand-deck-platform/internal/ai"
	"brand-deck-platform/internal/config"
	"brand-deck-platform/internal/crawler"
	"brand-deck-platform/internal/logger"
	"brand-deck-platform/internal/queue"
	"brand-deck-platform/internal/telemetry"
	"brand-deck-platform/models"
	"brand-deck-platform/services"

	"github.com/hibiken/asynq"
)

// The worker consumes the tasks the API enqueues: document ingestion,
// deck builds and snapshot crawls. It builds the same service graph as
// the API, minus HTTP, and leaves the enqueuers unset so any processing
// it triggers itself runs inline.
func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Connect to MongoDB
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

	// Redis backs the model response cache
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Printf("⚠️ Metrics disabled: %v", err)
		metrics = nil
	}

	// Remote model client with response cache, plus the local sidecar
	remoteClient, err := ai.NewRemoteClient(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to initialize remote model client:", err)
	}
	defer remoteClient.Close()
	if metrics != nil {
		remoteClient.SetMetrics(metrics)
	}
	generator := services.NewCachedGenerator(remoteClient, rdb, cfg.SummaryCacheTTL)
	localAI := services.NewLocalAIClient(cfg)

	// Deck build pipeline stages
	chunker := services.NewChunkerService(cfg.ChunkSize)
	summarizer := services.NewSummarizationService(generator, cfg)
	docRouter := services.NewDocumentRouter(chunker, summarizer, localAI, cfg)
	extractor := services.NewDataExtractor(generator, cfg)
	charts := services.NewChartGenerator(cfg)
	competitive := services.NewCompetitiveAnalyzer(generator, cfg)
	builder := services.NewDeckBuilder(docRouter, summarizer, extractor, charts, competitive, cfg)

	documentService := services.NewDocumentService(cfg, db.Collection("documents"))
	retrieval := services.NewRetrievalService(cfg, db.Collection("document_chunks"))
	deckService := services.NewDeckService(cfg, db, documentService, builder, retrieval, remoteClient)
	deckService.SetAuditor(models.NewAuditLogger(db))
	snapshotService := crawler.NewSnapshotService(cfg, db.Collection("site_snapshots"), documentService)

	// Asynq server over the same Redis the API enqueues into
	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Failed to build Redis options:", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 20,
			Queues: map[string]int{
				"critical": 6, // document ingestion
				"default":  3, // deck builds
				"low":      1, // snapshot crawls
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task failed: %s, error: %v", task.Type(), err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(documentService, deckService, snapshotService)
	if metrics != nil {
		processor.SetMetrics(metrics)
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeDocumentProcess, processor.ProcessDocument)
	mux.HandleFunc(queue.TaskTypeDeckBuild, processor.BuildDeck)
	mux.HandleFunc(queue.TaskTypeSnapshotCrawl, processor.CrawlSnapshot)

	log.Println("🚀 Starting worker...")
	log.Printf("   Concurrency: 20")
	log.Printf("   Queues: critical(6), default(3), low(1)")

	// Run blocks until SIGTERM/SIGINT; asynq drains in-flight tasks
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
