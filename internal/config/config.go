package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"

	VectorLocal    = "local"
	VectorWeaviate = "weaviate"

	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	DistanceL2     = "l2"
	DistanceCosine = "cosine"
)

var defaultEmbeddingModels = map[string]string{
	ProviderOllama: "all-minilm",
	ProviderGemini: "gemini-embedding-001",
	ProviderOpenAI: "text-embedding-3-small",
}

var defaultChatModels = map[string]string{
	ProviderOllama: "gemma3:latest",
	ProviderGemini: "gemini-2.0-flash",
	ProviderOpenAI: "gpt-4o-mini",
}

type Config struct {
	// Corpus and pipeline state
	CorpusDir    string `envconfig:"CORPUS_DIR" default:"./corpus"`
	StateDir     string `envconfig:"STATE_DIR" default:"./processed_corpus"`
	StateBackend string `envconfig:"STATE_BACKEND" default:"file"`

	DBHost        string `envconfig:"DB_HOST" default:"postgres"`
	DBPort        int    `envconfig:"DB_PORT" default:"5432"`
	DBUser        string `envconfig:"DB_USER" default:"prepbot"`
	DBPass        string `envconfig:"DB_PASS" default:"password"`
	DBName        string `envconfig:"DB_NAME" default:"prepbot"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Vector index
	VectorBackend   string `envconfig:"VECTOR_BACKEND" default:"local"`
	VectorStorePath string `envconfig:"VECTOR_STORE_PATH" default:"./vector_store"`
	CollectionName  string `envconfig:"COLLECTION_NAME" default:"interview-prep"`
	VectorDistance  string `envconfig:"VECTOR_DISTANCE" default:"l2"`
	WeaviateHost    string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme  string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	// Models
	EmbeddingProvider  string `envconfig:"EMBEDDING_PROVIDER" default:"ollama"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingBatchSize int    `envconfig:"EMBEDDING_BATCH_SIZE" default:"32"`
	EmbeddingCacheSize int    `envconfig:"EMBEDDING_CACHE_SIZE" default:"256"`
	ChatProvider       string `envconfig:"CHAT_PROVIDER" default:"ollama"`
	ChatModel          string `envconfig:"CHAT_MODEL"`
	OllamaURL          string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	GeminiAPIKey       string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `envconfig:"OPENAI_BASE_URL"`

	SearchTopK int `envconfig:"SEARCH_TOP_K" default:"10"`

	// Messaging
	NSQLookupd string `envconfig:"NSQ_LOOKUPD"`
	NSQDHost   string `envconfig:"NSQD_HOST"`

	EnableAPI            bool `envconfig:"ENABLE_API" default:"true"`
	EnablePipelineWorker bool `envconfig:"ENABLE_PIPELINE_WORKER" default:"false"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8000"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	cfg.applyModelDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyModelDefaults() {
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = defaultEmbeddingModels[c.EmbeddingProvider]
	}
	if c.ChatModel == "" {
		c.ChatModel = defaultChatModels[c.ChatProvider]
	}
}

func (c *Config) Validate() error {
	if c.CorpusDir == "" {
		return fmt.Errorf("%w: CORPUS_DIR", ErrMissingRequired)
	}

	switch c.StateBackend {
	case BackendFile:
		if c.StateDir == "" {
			return fmt.Errorf("%w: STATE_DIR", ErrMissingRequired)
		}
	case BackendPostgres:
		if c.DBHost == "" {
			return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
		}
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
		// the pipeline lock still lives on disk
		if c.StateDir == "" {
			return fmt.Errorf("%w: STATE_DIR", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: STATE_BACKEND %q", ErrInvalid, c.StateBackend)
	}

	switch c.VectorBackend {
	case VectorLocal:
		if c.VectorStorePath == "" {
			return fmt.Errorf("%w: VECTOR_STORE_PATH", ErrMissingRequired)
		}
		if c.VectorDistance != DistanceL2 && c.VectorDistance != DistanceCosine {
			return fmt.Errorf("%w: VECTOR_DISTANCE %q", ErrInvalid, c.VectorDistance)
		}
	case VectorWeaviate:
		if c.WeaviateHost == "" {
			return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND %q", ErrInvalid, c.VectorBackend)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("%w: COLLECTION_NAME", ErrMissingRequired)
	}

	if err := c.validateProvider("EMBEDDING_PROVIDER", c.EmbeddingProvider); err != nil {
		return err
	}
	if err := c.validateProvider("CHAT_PROVIDER", c.ChatProvider); err != nil {
		return err
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EMBEDDING_MODEL", ErrMissingRequired)
	}
	if c.ChatModel == "" {
		return fmt.Errorf("%w: CHAT_MODEL", ErrMissingRequired)
	}

	if c.SearchTopK <= 0 {
		return fmt.Errorf("%w: SEARCH_TOP_K must be positive", ErrInvalid)
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("%w: EMBEDDING_BATCH_SIZE must be positive", ErrInvalid)
	}
	return nil
}

func (c *Config) validateProvider(name, provider string) error {
	switch provider {
	case ProviderOllama:
		if c.OllamaURL == "" {
			return fmt.Errorf("%w: OLLAMA_URL", ErrMissingRequired)
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: %s %q", ErrInvalid, name, provider)
	}
	return nil
}

// LedgerPath is the append-only chunk ledger of the file state backend.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.StateDir, "chunks.jsonl")
}

func (c *Config) ProcessedFilesPath() string {
	return filepath.Join(c.StateDir, "processed_files.json")
}

// ScanOutputPath holds only the chunks produced by the most recent scan.
func (c *Config) ScanOutputPath() string {
	return filepath.Join(c.StateDir, "scan_output.jsonl")
}

func (c *Config) EmbeddedOutputPath() string {
	return filepath.Join(c.StateDir, "embedded_chunks.json")
}

func (c *Config) LockPath() string {
	return filepath.Join(c.StateDir, ".pipeline.lock")
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
