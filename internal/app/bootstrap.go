package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/sethvargo/go-retry"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"prepbot/internal/adapter/gemini"
	"prepbot/internal/adapter/localindex"
	"prepbot/internal/adapter/ollama"
	"prepbot/internal/adapter/openai"
	wstore "prepbot/internal/adapter/weaviate"
	"prepbot/internal/answer"
	"prepbot/internal/config"
	"prepbot/internal/embedding"
	"prepbot/internal/state"
	"prepbot/internal/vector"
)

// Dependencies are the external resources selected by configuration.
type Dependencies struct {
	// DB is nil unless the postgres state backend is selected.
	DB          *sql.DB
	Ledger      state.Ledger
	Processed   state.ProcessedStore
	Lock        *state.Lock
	Index       vector.Index
	Embedder    embedding.Embedder
	Chat        answer.ChatModel
	NSQProducer *nsq.Producer

	closers []func() error
}

type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = slog.Default()
	}
	deps := &Dependencies{Lock: state.NewLock(cfg.LockPath())}

	if err := deps.openState(ctx, cfg, logger); err != nil {
		deps.Close()
		return nil, err
	}
	if err := deps.openIndex(ctx, cfg, logger); err != nil {
		deps.Close()
		return nil, err
	}
	if err := deps.openModels(ctx, cfg); err != nil {
		deps.Close()
		return nil, err
	}

	if cfg.NSQDHost != "" {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.NSQProducer = producer
		deps.closers = append(deps.closers, func() error { producer.Stop(); return nil })
	}

	return deps, nil
}

func (d *Dependencies) openState(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.StateBackend != config.BackendPostgres {
		d.Ledger = state.NewFileLedger(cfg.LedgerPath(), logger)
		d.Processed = state.NewFileProcessedStore(cfg.ProcessedFilesPath())
		return nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	d.DB = db
	d.closers = append(d.closers, db.Close)

	err = retry.Do(ctx, retryBackoff(cfg), func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			logger.WarnContext(ctx, "failed to ping db, retrying...", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	logger.InfoContext(ctx, "migrations applied")

	d.Ledger = state.NewPostgresLedger(db)
	d.Processed = state.NewPostgresProcessedStore(db)
	return nil
}

func (d *Dependencies) openIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.VectorBackend != config.VectorWeaviate {
		idx, err := localindex.Open(cfg.VectorStorePath, cfg.CollectionName, cfg.VectorDistance)
		if err != nil {
			return fmt.Errorf("open local index: %w", err)
		}
		d.Index = idx
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
	if err != nil {
		return fmt.Errorf("weaviate client error: %w", err)
	}
	distance := wstore.DistanceL2
	if cfg.VectorDistance == config.DistanceCosine {
		distance = wstore.DistanceCosine
	}
	idx := wstore.NewIndex(client, vector.ClassName(cfg.CollectionName), distance)

	delay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	if err := EnsureSchemaWithRetry(ctx, idx, cfg.BootstrapRetryAttempts, delay); err != nil {
		return fmt.Errorf("weaviate schema error: %w", err)
	}
	logger.InfoContext(ctx, "weaviate schema ensured", "class", vector.ClassName(cfg.CollectionName))
	d.Index = idx
	return nil
}

func (d *Dependencies) openModels(ctx context.Context, cfg *config.Config) error {
	var base embedding.Embedder
	switch cfg.EmbeddingProvider {
	case config.ProviderGemini:
		c, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return fmt.Errorf("gemini embedder: %w", err)
		}
		d.closers = append(d.closers, c.Close)
		base = c
	case config.ProviderOpenAI:
		base = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	default:
		e, err := ollama.NewEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, cfg.EmbeddingBatchSize)
		if err != nil {
			return fmt.Errorf("ollama embedder: %w", err)
		}
		base = e
	}

	cached, err := embedding.NewCachedEmbedder(base, cfg.EmbeddingCacheSize)
	if err != nil {
		return err
	}
	d.Embedder = cached

	switch cfg.ChatProvider {
	case config.ProviderGemini:
		c, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return fmt.Errorf("gemini chat: %w", err)
		}
		d.closers = append(d.closers, c.Close)
		d.Chat = c
	case config.ProviderOpenAI:
		d.Chat = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	default:
		c, err := ollama.NewChat(cfg.OllamaURL, cfg.ChatModel)
		if err != nil {
			return fmt.Errorf("ollama chat: %w", err)
		}
		d.Chat = c
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func retryBackoff(cfg *config.Config) retry.Backoff {
	return newBackoff(cfg.BootstrapRetryAttempts, time.Duration(cfg.BootstrapRetryDelaySeconds)*time.Second)
}

// newBackoff allows attempts tries in total, delay apart.
func newBackoff(attempts int, delay time.Duration) retry.Backoff {
	if attempts < 1 {
		attempts = 1
	}
	if delay <= 0 {
		delay = time.Millisecond
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))
}

// EnsureSchemaWithRetry keeps calling EnsureSchema until it succeeds or attempts run out.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	return retry.Do(ctx, newBackoff(attempts, delay), func(ctx context.Context) error {
		if err := store.EnsureSchema(ctx); err != nil {
			slog.WarnContext(ctx, "failed to ensure weaviate schema, retrying...", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
