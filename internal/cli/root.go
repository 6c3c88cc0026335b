// Package cli wires the prepbot commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prepbot/internal/app"
	"prepbot/internal/config"
	"prepbot/internal/logger"
	"prepbot/internal/metrics"
)

// bootstrap is swapped in tests to avoid live model servers.
var bootstrap = app.Bootstrap

type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	deps    *app.Dependencies
	svc     *app.Services
}

func (r *session) Close() {
	if err := r.svc.Close(); err != nil {
		r.logger.Warn("failed to close query log", "error", err)
	}
	if err := r.deps.Close(); err != nil {
		r.logger.Warn("failed to release resources", "error", err)
	}
}

// open loads configuration and bootstraps every dependency. Logs go to logOut.
func open(ctx context.Context, logOut io.Writer) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logOut, cfg.LogLevel)
	slog.SetDefault(log)

	deps, err := bootstrap(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	return &session{
		cfg:     cfg,
		logger:  log,
		metrics: m,
		deps:    deps,
		svc:     app.NewServices(cfg, deps, log, m),
	}, nil
}

// withSession runs fn with a bootstrapped session; logs go to stderr so stdout stays clean.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, rt *session) error) error {
	ctx := cmd.Context()
	rt, err := open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "prepbot",
		Short:         "Interview preparation assistant over your own documents",
		Long:          "Scans a corpus of PDF, DOCX, PPTX and CSV files, indexes their embeddings and answers questions grounded in the retrieved passages.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		ScanCmd(),
		EmbedCmd(),
		IndexCmd(),
		UpdateCmd(),
		ExportCmd(),
		RetrieveCmd(),
		AskCmd(),
		ServeCmd(),
	)
	return root
}

// Execute runs the root command until it returns or SIGINT/SIGTERM arrives.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
