package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nsqio/go-nsq"

	"prepbot/features/chat"
	"prepbot/features/ingest"
	"prepbot/features/job"
	"prepbot/features/search"
	"prepbot/features/stats"
	"prepbot/internal/config"
	"prepbot/internal/metrics"
	"prepbot/internal/middleware"
	"prepbot/internal/settings"
	"prepbot/internal/worker"
)

type App struct {
	Handler   http.Handler
	Publisher worker.Publisher
	Consumer  *worker.PipelineConsumer

	cfg    *config.Config
	logger *slog.Logger
	inline *worker.InlinePublisher
}

func New(cfg *config.Config, deps *Dependencies, svc *Services, logger *slog.Logger, m *metrics.Metrics) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	consumer := svc.PipelineConsumer(logger)

	// Without nsqd, pipeline requests run in-process through the same consumer.
	var pub worker.Publisher
	var inline *worker.InlinePublisher
	if deps.NSQProducer != nil {
		pub = deps.NSQProducer
	} else {
		inline = worker.NewInlinePublisher(consumer, logger)
		pub = inline
	}

	// Feature: Settings
	settingsHandler := settings.NewHandler(svc.Settings)

	// Feature: Chat & Search
	chatHandler := chat.NewHandler(svc.Generator)
	searchHandler := search.NewHandler(svc.Retriever)

	// Feature: Ingest
	ingestHandler := ingest.NewHandler(pub, cfg.CorpusDir, cfg.MaxUploadSizeMB)

	// Feature: Stats
	var jobCounter stats.JobRepo
	if svc.Jobs != nil {
		jobCounter = svc.Jobs
	}
	statsHandler := stats.NewHandler(deps.Processed, deps.Ledger, svc.Index, jobCounter)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /chat", middleware.CorrelationID(enableCORS(chatHandler.Chat)))
	mux.Handle("OPTIONS /chat", middleware.CorrelationID(enableCORS(chatHandler.Chat)))
	mux.Handle("POST /search", middleware.CorrelationID(enableCORS(searchHandler.Search)))

	mux.Handle("POST /ingest", middleware.CorrelationID(enableCORS(ingestHandler.Ingest)))
	mux.Handle("POST /corpus/upload", middleware.CorrelationID(enableCORS(ingestHandler.Upload)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	// Feature: Job (needs the failed_jobs table)
	if svc.Jobs != nil {
		jobHandler := job.NewHandler(job.NewService(svc.Jobs, pub, logger))
		mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
		mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))
	}

	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:   mux,
		Publisher: pub,
		Consumer:  consumer,
		cfg:       cfg,
		logger:    logger,
		inline:    inline,
	}, nil
}

// Run serves HTTP until ctx is cancelled. With ENABLE_PIPELINE_WORKER and an nsqd configured,
// it also consumes pipeline requests, one at a time.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.EnablePipelineWorker && a.cfg.NSQDHost != "" {
		consumer, err := a.startConsumer()
		if err != nil {
			return err
		}
		defer func() {
			consumer.Stop()
			<-consumer.StopChan
		}()
	}

	if !a.cfg.EnableAPI {
		<-ctx.Done()
		a.drain()
		return nil
	}

	addr := fmt.Sprintf(":%d", a.cfg.ServerPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run without the worker, on a caller-provided listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		a.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", "error", err)
		}
	}()

	a.logger.Info("server starting", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.drain()
	return nil
}

func (a *App) startConsumer() (*nsq.Consumer, error) {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = 1
	// HandleMessage touches the message while a run is in progress
	nsqCfg.MsgTimeout = 2 * time.Minute

	consumer, err := nsq.NewConsumer(config.TopicPipelineRun, config.ChannelPipelineWorker, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(a.Consumer)

	if a.cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(a.cfg.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("nsq connect error: %w", err)
	}
	a.logger.Info("pipeline worker connected", "topic", config.TopicPipelineRun, "channel", config.ChannelPipelineWorker)
	return consumer, nil
}

// drain waits for in-process pipeline runs to finish.
func (a *App) drain() {
	if a.inline != nil {
		a.inline.Wait()
	}
}
