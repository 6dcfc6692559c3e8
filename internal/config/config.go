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
	MongoURI string
	DBName   string
	LogLevel string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Chunking
	TargetTokens  int
	OverlapTokens int
	MinChunkChars int

	// Deduplication
	NearDuplicateThreshold float64

	// Quality evaluation
	MinQualityScore    float64
	IndexBelowFloor    bool // index fragments below the quality floor anyway
	QualityWeights     QualityWeights
	TimelinessHalfLife time.Duration

	// Embeddings configuration
	GeminiAPIKey     string
	EmbeddingModel   string
	ModelVersion     string
	VectorDimensions int
	EmbedBatchSize   int
	EmbedBatchWait   time.Duration
	GeminiTier       string

	// Vector index
	VectorIndexName string
	OverFetchFactor int

	// Ranking
	QualityWeight float64 // w_q
	SourceWeight  float64 // w_s

	// Retry policy
	MaxRetries int
	RetryBase  time.Duration
	RetryMax   time.Duration

	// Pipeline stage budgets
	FetchTimeout   time.Duration
	ExtractTimeout time.Duration
	EmbedTimeout   time.Duration

	// Workers / scheduling
	WorkerConcurrency  int
	SourceFailureLimit int

	// Extraction
	ScrapingUserAgent string
	ScrapingDelay     time.Duration
	ScrapingTimeout   time.Duration
	MaxCrawlPages     int

	// Cache TTLs
	EmbeddingCacheTTL time.Duration
	SearchCacheTTL    time.Duration

	// Scheduling
	PollTick time.Duration

	// Tokenizer
	TokenizerEncoding string

	// Telemetry
	TracingEnabled bool
	OTLPEndpoint   string
}

// QualityWeights controls the weighted mean that forms the overall score.
// Different deployments value recency vs. authority differently, so this is
// a configuration surface, not a constant table.
type QualityWeights struct {
	Authority    float64
	Accuracy     float64
	Completeness float64
	Timeliness   float64
	Utility      float64
}

func (w QualityWeights) Total() float64 {
	return w.Authority + w.Accuracy + w.Completeness + w.Timeliness + w.Utility
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/knowledge"),
		DBName:   getEnv("DB_NAME", "knowledge"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TargetTokens:  getEnvInt("CHUNK_TARGET_TOKENS", 512),
		OverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 50),
		MinChunkChars: getEnvInt("CHUNK_MIN_CHARS", 20),

		NearDuplicateThreshold: getEnvFloat64("NEAR_DUPLICATE_THRESHOLD", 0.97),

		MinQualityScore: getEnvFloat64("MIN_QUALITY_SCORE", 1.0),
		IndexBelowFloor: getEnvBool("INDEX_BELOW_QUALITY_FLOOR", false),
		QualityWeights: QualityWeights{
			Authority:    getEnvFloat64("QUALITY_WEIGHT_AUTHORITY", 1.0),
			Accuracy:     getEnvFloat64("QUALITY_WEIGHT_ACCURACY", 1.0),
			Completeness: getEnvFloat64("QUALITY_WEIGHT_COMPLETENESS", 1.0),
			Timeliness:   getEnvFloat64("QUALITY_WEIGHT_TIMELINESS", 1.0),
			Utility:      getEnvFloat64("QUALITY_WEIGHT_UTILITY", 1.0),
		},
		TimelinessHalfLife: getEnvDuration("TIMELINESS_HALF_LIFE", 180*24*time.Hour),

		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		ModelVersion:     getEnv("EMBEDDING_MODEL_VERSION", "004"),
		VectorDimensions: getEnvInt("VECTOR_DIM", 768),
		EmbedBatchSize:   getEnvInt("EMBED_BATCH_SIZE", 32),
		EmbedBatchWait:   getEnvDuration("EMBED_BATCH_WAIT", 50*time.Millisecond),
		GeminiTier:       getEnv("GEMINI_TIER", "free"),

		VectorIndexName: getEnv("VECTOR_INDEX_NAME", "fragment_vectors"),
		OverFetchFactor: getEnvInt("SEARCH_OVERFETCH_FACTOR", 2),

		QualityWeight: getEnvFloat64("RANK_QUALITY_WEIGHT", 0.3),
		SourceWeight:  getEnvFloat64("RANK_SOURCE_WEIGHT", 0.2),

		MaxRetries: getEnvInt("MAX_RETRIES", 3),
		RetryBase:  getEnvDuration("RETRY_BASE", 500*time.Millisecond),
		RetryMax:   getEnvDuration("RETRY_MAX", 30*time.Second),

		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 60*time.Second),
		ExtractTimeout: getEnvDuration("EXTRACT_TIMEOUT", 120*time.Second),
		EmbedTimeout:   getEnvDuration("EMBED_TIMEOUT", 120*time.Second),

		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 8),
		SourceFailureLimit: getEnvInt("SOURCE_FAILURE_LIMIT", 5),

		ScrapingUserAgent: getEnv("SCRAPING_USER_AGENT", "KnowledgeBot/1.0"),
		ScrapingDelay:     getEnvDuration("SCRAPING_DELAY", 1*time.Second),
		ScrapingTimeout:   getEnvDuration("SCRAPING_TIMEOUT", 30*time.Second),
		MaxCrawlPages:     getEnvInt("MAX_CRAWL_PAGES", 50),

		EmbeddingCacheTTL: getEnvDuration("EMBEDDING_CACHE_TTL", 7*24*time.Hour),
		SearchCacheTTL:    getEnvDuration("SEARCH_CACHE_TTL", 5*time.Minute),

		PollTick: getEnvDuration("POLL_TICK", time.Minute),

		TokenizerEncoding: getEnv("TOKENIZER_ENCODING", "cl100k_base"),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects misconfiguration at load time. A bad token budget or
// dimension here would otherwise surface as silent search-quality
// degradation, so these are fatal and never defaulted away.
func (c *Config) Validate() error {
	if c.TargetTokens <= 0 {
		return fmt.Errorf("CHUNK_TARGET_TOKENS must be positive, got %d", c.TargetTokens)
	}
	if c.OverlapTokens < 0 || c.OverlapTokens >= c.TargetTokens {
		return fmt.Errorf("CHUNK_OVERLAP_TOKENS must be in [0, %d), got %d", c.TargetTokens, c.OverlapTokens)
	}
	if c.NearDuplicateThreshold <= 0 || c.NearDuplicateThreshold > 1 {
		return fmt.Errorf("NEAR_DUPLICATE_THRESHOLD must be in (0, 1], got %f", c.NearDuplicateThreshold)
	}
	if c.MinQualityScore < 0 || c.MinQualityScore > 5 {
		return fmt.Errorf("MIN_QUALITY_SCORE must be in [0, 5], got %f", c.MinQualityScore)
	}
	if c.QualityWeights.Total() <= 0 {
		return fmt.Errorf("quality weights must sum to a positive value")
	}
	if c.VectorDimensions <= 0 {
		return fmt.Errorf("VECTOR_DIM must be positive, got %d", c.VectorDimensions)
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be positive, got %d", c.EmbedBatchSize)
	}
	if c.OverFetchFactor < 2 {
		return fmt.Errorf("SEARCH_OVERFETCH_FACTOR must be >= 2, got %d", c.OverFetchFactor)
	}
	if c.QualityWeight < 0 || c.SourceWeight < 0 {
		return fmt.Errorf("ranking weights must be non-negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be non-negative, got %d", c.MaxRetries)
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency)
	}
	return nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
