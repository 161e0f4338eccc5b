package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brand-deck-platform/internal/ai"
	"brand-deck-platform/internal/config"
	"brand-deck-platform/internal/crawler"
	"brand-deck-platform/internal/database"
	"brand-deck-platform/internal/logger"
	"brand-deck-platform/internal/queue"
	"brand-deck-platform/internal/telemetry"
	"brand-deck-platform/middleware"
	"brand-deck-platform/models"
	"brand-deck-platform/routes"
	"brand-deck-platform/services"

	"github.com/gin-gonic/gin"
)

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

	// Connect to Redis (sessions, rate limits, model response cache)
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Telemetry. The API serves fine without a collector; both init
	// failures degrade to unmeasured operation.
	shutdownTracer, err := telemetry.InitTracer("brand-deck-api", cfg.OTLPEndpoint)
	if err != nil {
		log.Printf("⚠️ Tracing disabled: %v", err)
	} else {
		defer shutdownTracer()
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Printf("⚠️ Metrics disabled: %v", err)
		metrics = nil
	}

	// Remote model client, wrapped with the Redis response cache. Every
	// pipeline stage that talks to the remote model goes through the cache.
	remoteClient, err := ai.NewRemoteClient(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to initialize remote model client:", err)
	}
	defer remoteClient.Close()
	if metrics != nil {
		remoteClient.SetMetrics(metrics)
	}
	generator := services.NewCachedGenerator(remoteClient, rdb, cfg.SummaryCacheTTL)

	// Local sidecar for sensitive documents
	localAI := services.NewLocalAIClient(cfg)

	// Deck build pipeline stages
	chunker := services.NewChunkerService(cfg.ChunkSize)
	summarizer := services.NewSummarizationService(generator, cfg)
	docRouter := services.NewDocumentRouter(chunker, summarizer, localAI, cfg)
	extractor := services.NewDataExtractor(generator, cfg)
	charts := services.NewChartGenerator(cfg)
	competitive := services.NewCompetitiveAnalyzer(generator, cfg)
	builder := services.NewDeckBuilder(docRouter, summarizer, extractor, charts, competitive, cfg)

	// Domain services
	documentService := services.NewDocumentService(cfg, db.Collection("documents"))
	retrieval := services.NewRetrievalService(cfg, db.Collection("document_chunks"))
	deckService := services.NewDeckService(cfg, db, documentService, builder, retrieval, remoteClient)
	exportService := services.NewExportService()
	mediaService := services.NewMediaService(db, cfg.FileStorageDir)
	snapshotService := crawler.NewSnapshotService(cfg, db.Collection("site_snapshots"), documentService)
	dataManager := database.NewBrandDataManager(db, cfg.FileStorageDir)
	auditor := models.NewAuditLogger(db)
	deckService.SetAuditor(auditor)

	// Background queue producer. Without it every upload, build and crawl
	// runs inline, which keeps single-binary deployments working.
	queueClient, err := queue.NewClient(cfg)
	if err != nil {
		log.Printf("⚠️ Queue disabled, processing inline: %v", err)
	} else {
		defer queueClient.Close()
		documentService.SetEnqueuer(queueClient)
		deckService.SetEnqueuer(queueClient)
		snapshotService.SetEnqueuer(queueClient)
	}

	// Scheduled jobs: quota alert sweep and snapshot refresh
	mailer := services.NewSMTPEmailSender(cfg)
	alertEvaluator := services.NewAlertEvaluator(cfg, mailer, db.Collection("brands"))
	cron := services.NewCronService(cfg, alertEvaluator)
	cron.SetSnapshotSweep(snapshotService.RefreshStale)
	cron.SetStorageCleanup(func(ctx context.Context) error {
		return errors.Join(
			documentService.CleanupTempFiles(ctx),
			mediaService.CleanupDeletedMedia(ctx),
		)
	})
	cron.SetDeckSweep(deckService.FailStaleBuilds)
	if err := cron.Start(); err != nil {
		log.Printf("⚠️ Cron scheduler failed to start: %v", err)
	}
	defer cron.Stop()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	if metrics != nil {
		router.Use(middleware.MetricsMiddleware(metrics))
	}
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	router.Use(middleware.AuditMiddleware(auditor, metrics))

	// Health check endpoints
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := mongoClient.Ping(ctx, nil); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "database": "unreachable"})
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "redis": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg, rdb)
	roleMiddleware := middleware.NewRoleMiddleware()
	featureCheck := middleware.NewFeatureCheckMiddleware(db.Collection("brands"))

	// Setup routes
	routes.SetupAuthRoutes(router, cfg, db, rdb, authMiddleware, mailer)
	routes.SetupBrandRoutes(router, cfg, db, alertEvaluator, authMiddleware, roleMiddleware)
	routes.SetupDocumentRoutes(router, cfg, documentService, authMiddleware, roleMiddleware, featureCheck)
	routes.SetupDeckRoutes(router, cfg, db, rdb, deckService, exportService, authMiddleware, roleMiddleware, featureCheck)
	routes.SetupMediaRoutes(router, mediaService, authMiddleware, roleMiddleware, featureCheck)
	routes.SetupSnapshotRoutes(router, snapshotService, authMiddleware, roleMiddleware, featureCheck)
	routes.SetupEmbedRoutes(router, db, rdb, deckService, authMiddleware)
	routes.SetupAuditRoutes(router, auditor, authMiddleware, roleMiddleware)
	routes.SetupAdminRoutes(router, cfg, mongoClient, rdb, dataManager, authMiddleware, roleMiddleware)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("🚀 Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
