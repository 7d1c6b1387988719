package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	// MaxEmbedBatchSize is the hard per-request ceiling of the embedding APIs.
	MaxEmbedBatchSize = 96
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"workshop"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"workshop"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd        string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost          string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP          string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	EnableIndexWorker bool   `envconfig:"ENABLE_INDEX_WORKER" default:"false"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	DataDir         string `envconfig:"DATA_DIR" default:"./data/sessions"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`

	// Embedding
	EmbeddingProvider  string `envconfig:"EMBEDDING_PROVIDER" default:"gemini"`
	GeminiAPIKey       string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION" default:"768"`
	EmbedBatchSize     int    `envconfig:"EMBED_BATCH_SIZE" default:"90"`
	EmbedBatchDelayMS  int    `envconfig:"EMBED_BATCH_DELAY_MS" default:"100"`

	// Chunking and retrieval
	IndexName           string  `envconfig:"INDEX_NAME" default:"SessionChunk"`
	ChunkSize           int     `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap        int     `envconfig:"CHUNK_OVERLAP" default:"200"`
	SimilarityThreshold float32 `envconfig:"SIMILARITY_THRESHOLD" default:"0.7"`
	DefaultMaxContexts  int     `envconfig:"DEFAULT_MAX_CONTEXTS" default:"5"`

	QueryTimeoutSeconds      int `envconfig:"QUERY_TIMEOUT_SECONDS" default:"20"`
	QueryMaxAttempts         int `envconfig:"QUERY_MAX_ATTEMPTS" default:"3"`
	IndexReadyTimeoutSeconds int `envconfig:"INDEX_READY_TIMEOUT_SECONDS" default:"60"`

	// Object storage; an empty bucket disables it.
	S3Bucket            string `envconfig:"S3_BUCKET"`
	S3Region            string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint          string `envconfig:"S3_ENDPOINT"`
	S3PresignTTLMinutes int    `envconfig:"S3_PRESIGN_TTL_MINUTES" default:"15"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	cfg, err := process()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEngine is Load for tools that only run ingestion and retrieval.
func LoadEngine() (*Config, error) {
	cfg, err := process()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateEngine(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func process() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: DATA_DIR", ErrMissingRequired)
	}
	if c.IndexName == "" {
		return fmt.Errorf("%w: INDEX_NAME", ErrMissingRequired)
	}
	return c.ValidateEngine()
}

// ValidateEngine checks only the settings the ingestion and retrieval
// engine depends on, for callers that run without Postgres.
func (c *Config) ValidateEngine() error {
	switch c.EmbeddingProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: EMBEDDING_PROVIDER %q", ErrInvalid, c.EmbeddingProvider)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalid)
	}
	if c.EmbedBatchSize < 1 || c.EmbedBatchSize > MaxEmbedBatchSize {
		return fmt.Errorf("%w: EMBED_BATCH_SIZE must be within 1..%d", ErrInvalid, MaxEmbedBatchSize)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: SIMILARITY_THRESHOLD must be within (0,1]", ErrInvalid)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: EMBEDDING_DIMENSION must be positive", ErrInvalid)
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}

func (c *Config) EmbedBatchDelay() time.Duration {
	return time.Duration(c.EmbedBatchDelayMS) * time.Millisecond
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

func (c *Config) IndexReadyTimeout() time.Duration {
	return time.Duration(c.IndexReadyTimeoutSeconds) * time.Second
}

func (c *Config) PresignTTL() time.Duration {
	return time.Duration(c.S3PresignTTLMinutes) * time.Minute
}
