package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string
	FrontendURL string
	BcryptCost  int

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// JWT Token Secrets (access/refresh pair)
	AccessSecret  string
	RefreshSecret string

	// Remote model (Gemini) configuration
	GeminiAPIKey    string
	GeminiModel     string
	GeminiTier      string
	GeminiRPM       int
	ModelTimeout    time.Duration
	DailyTokenLimit int

	// Local sensitive-document backend
	LocalAIURL           string
	LocalAITimeout       time.Duration
	LocalAIMaxRetries    int
	LocalAIBackoffCap    time.Duration
	LocalAIMaxKeywords   int
	LocalAISummaryLength int

	// Pipeline tuning
	ChunkSize           int
	ChunkSummaryMin     int
	ChunkSummaryMax     int
	MasterSummaryMin    int
	MasterSummaryMax    int
	TopChartCount       int
	SummaryCacheTTL     time.Duration
	SyncBuildLimit      int // max documents for a synchronous deck build
	MaxCorpusChars      int // corpus truncation bound for extraction prompts
	DeckStaleAfter      time.Duration
	DeckSweepCron       string // cron expression, empty disables

	// Document upload/storage
	MaxFileSize         int64
	SyncProcessingLimit int64 // files above this are always queued
	FileStorageDir      string
	CompressChunks      bool

	// Atlas Vector Search for deck Q&A
	VectorSearchEnabled bool

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Embeddings (deck Q&A retrieval)
	EmbeddingsProvider string
	EmbeddingsModel    string
	VectorDimensions   int

	// Site snapshot crawler
	CrawlerMaxPages    int
	CrawlerUserAgent   string
	CrawlerJSRendering bool
	SnapshotRefresh    string // cron expression, empty disables

	// Storage housekeeping
	StorageCleanupCron string // cron expression, empty disables

	// Quota alert thresholds
	QuotaWarnPercent      int
	QuotaCriticalPercent  int
	QuotaExhaustedPercent int
	QuotaAlertCron        string

	// SMTP Configuration
	SMTPHost    string
	SMTPPort    string
	SMTPUser    string
	SMTPPass    string
	SMTPFrom    string
	AdminEmails []string

	// Telemetry
	OTLPEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/brand_decks"),
		DBName:      getEnv("DB_NAME", "brand_decks"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		BcryptCost:  getEnvInt("BCRYPT_COST", 12),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		AccessSecret:  getEnv("ACCESS_SECRET", ""),
		RefreshSecret: getEnv("REFRESH_SECRET", ""),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:      getEnv("GEMINI_TIER", "free"),
		GeminiRPM:       getEnvInt("GEMINI_RPM", 0),
		ModelTimeout:    getEnvDuration("MODEL_TIMEOUT", 60*time.Second),
		DailyTokenLimit: getEnvInt("DAILY_TOKEN_LIMIT", 100000),

		LocalAIURL:           getEnv("LOCAL_AI_URL", "http://localhost:5001"),
		LocalAITimeout:       getEnvDuration("LOCAL_AI_TIMEOUT", 120*time.Second),
		LocalAIMaxRetries:    getEnvInt("LOCAL_AI_MAX_RETRIES", 3),
		LocalAIBackoffCap:    getEnvDuration("LOCAL_AI_BACKOFF_CAP", 5*time.Second),
		LocalAIMaxKeywords:   getEnvInt("LOCAL_AI_MAX_KEYWORDS", 10),
		LocalAISummaryLength: getEnvInt("LOCAL_AI_SUMMARY_LENGTH", 300),

		ChunkSize:          getEnvInt("CHUNK_SIZE", 2000),
		ChunkSummaryMin:    getEnvInt("CHUNK_SUMMARY_MIN_WORDS", 100),
		ChunkSummaryMax:    getEnvInt("CHUNK_SUMMARY_MAX_WORDS", 150),
		MasterSummaryMin:   getEnvInt("MASTER_SUMMARY_MIN_WORDS", 200),
		MasterSummaryMax:   getEnvInt("MASTER_SUMMARY_MAX_WORDS", 300),
		TopChartCount:      getEnvInt("TOP_CHART_COUNT", 5),
		SummaryCacheTTL:    getEnvDuration("SUMMARY_CACHE_TTL", 24*time.Hour),
		SyncBuildLimit:     getEnvInt("SYNC_BUILD_LIMIT", 3),
		MaxCorpusChars:     getEnvInt("MAX_CORPUS_CHARS", 60000),
		DeckStaleAfter:     getEnvDuration("DECK_STALE_AFTER", 2*time.Hour),
		DeckSweepCron:      getEnv("DECK_SWEEP_CRON", "*/30 * * * *"),

		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 20971520), // 20MB sync processing limit
		FileStorageDir:      getEnv("FILE_STORAGE_DIR", "./storage"),
		CompressChunks:      getEnvBool("COMPRESS_CHUNKS", false),

		VectorSearchEnabled: getEnvBool("MONGODB_VECTOR_ENABLED", false),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		EmbeddingsProvider: getEnv("EMBEDDINGS_PROVIDER", "google"),
		EmbeddingsModel:    getEnv("EMBEDDINGS_MODEL", "text-embedding-004"),
		VectorDimensions:   getEnvInt("VECTOR_DIM", 768),

		CrawlerMaxPages:    getEnvInt("CRAWLER_MAX_PAGES", 25),
		CrawlerUserAgent:   getEnv("CRAWLER_USER_AGENT", "BrandDeckBot/1.0"),
		CrawlerJSRendering: getEnvBool("CRAWLER_JS_RENDERING", false),
		SnapshotRefresh:    getEnv("SNAPSHOT_REFRESH_CRON", ""),

		StorageCleanupCron: getEnv("STORAGE_CLEANUP_CRON", "0 3 * * *"),

		QuotaWarnPercent:      getEnvInt("QUOTA_WARN_PERCENT", 80),
		QuotaCriticalPercent:  getEnvInt("QUOTA_CRITICAL_PERCENT", 95),
		QuotaExhaustedPercent: getEnvInt("QUOTA_EXHAUSTED_PERCENT", 100),
		QuotaAlertCron:        getEnv("QUOTA_ALERT_CRON", "*/15 * * * *"),

		SMTPHost:    getEnv("SMTP_HOST", ""),
		SMTPPort:    getEnv("SMTP_PORT", "587"),
		SMTPUser:    getEnv("SMTP_USER", ""),
		SMTPPass:    getEnv("SMTP_PASS", ""),
		SMTPFrom:    getEnv("SMTP_FROM", ""),
		AdminEmails: strings.Split(getEnv("ADMIN_EMAILS", ""), ","),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	// Validate required fields
	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("ACCESS_SECRET is required - set it in .env file")
	}

	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("REFRESH_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
