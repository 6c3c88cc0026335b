package app

import (
	"log/slog"
	"os"

	"prepbot/features/job"
	"prepbot/internal/answer"
	"prepbot/internal/config"
	"prepbot/internal/embedding"
	"prepbot/internal/extract"
	"prepbot/internal/metrics"
	"prepbot/internal/pipeline"
	"prepbot/internal/retrieval"
	"prepbot/internal/scanner"
	"prepbot/internal/settings"
	"prepbot/internal/vector"
	"prepbot/internal/worker"
)

// Services is the domain layer shared by the CLI commands and the HTTP server.
type Services struct {
	Settings    *settings.Service
	Index       *vector.Manager
	Runner      *pipeline.Runner
	Retriever   *retrieval.Service
	Generator   *answer.Generator
	QueryLogger *retrieval.QueryLogger
	// Jobs is nil without a database.
	Jobs job.Repository
}

func NewServices(cfg *config.Config, deps *Dependencies, logger *slog.Logger, m *metrics.Metrics) *Services {
	if logger == nil {
		logger = slog.Default()
	}

	var settingsRepo settings.Repository = settings.NewMemoryRepo()
	var jobs job.Repository
	if deps.DB != nil {
		settingsRepo = settings.NewPostgresRepo(deps.DB)
		jobs = job.NewPostgresRepo(deps.DB)
	}
	settingsService := settings.NewService(settingsRepo, settings.Settings{
		ChatModel:  cfg.ChatModel,
		SearchTopK: cfg.SearchTopK,
	})

	sc := scanner.New(extract.New(), deps.Processed, deps.Ledger, logger,
		scanner.WithScanOutput(cfg.ScanOutputPath()),
		scanner.WithObserver(m),
	)
	stage := embedding.NewStage(deps.Embedder, deps.Ledger, cfg.EmbeddingBatchSize, logger)
	stage.OnEmbedded(m.ChunksEmbedded)
	manager := vector.NewManager(deps.Index, deps.Ledger, logger)
	manager.OnIndexed(m.RecordsIndexed)

	runner := pipeline.NewRunner(sc, stage, manager, deps.Lock, cfg.CorpusDir, logger, m)

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		logger.Warn("failed to create query logger, falling back to stderr", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stderr)
	}

	retriever := retrieval.NewService(deps.Embedder, manager, settingsService, queryLogger, m)
	generator := answer.NewGenerator(retriever, deps.Chat, settingsService, cfg.ChatModel, logger, m)

	return &Services{
		Settings:    settingsService,
		Index:       manager,
		Runner:      runner,
		Retriever:   retriever,
		Generator:   generator,
		QueryLogger: queryLogger,
		Jobs:        jobs,
	}
}

// PipelineConsumer handles pipeline requests; failed runs are recorded when Jobs is set.
func (s *Services) PipelineConsumer(logger *slog.Logger) *worker.PipelineConsumer {
	return worker.NewPipelineConsumer(s.Runner, s.Jobs, logger)
}

func (s *Services) Close() error {
	return s.QueryLogger.Close()
}
