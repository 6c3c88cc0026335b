// Package pipeline runs the scan, embed and index stages under the state lock.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"prepbot/internal/embedding"
	"prepbot/internal/metrics"
	"prepbot/internal/scanner"
	"prepbot/internal/state"
	"prepbot/internal/vector"
)

var ErrPipelineBusy = errors.New("pipeline is already running")

type Locker interface {
	TryLock() error
	Unlock() error
}

type Report struct {
	FilesSeen        int           `json:"files_seen"`
	FilesSkipped     int           `json:"files_skipped"`
	FilesFailed      int           `json:"files_failed"`
	FilesUnsupported int           `json:"files_unsupported"`
	ChunksExtracted  int           `json:"chunks_extracted"`
	ChunksEmbedded   int           `json:"chunks_embedded"`
	AlreadyEmbedded  int           `json:"already_embedded"`
	RecordsIndexed   int           `json:"records_indexed"`
	Duration         time.Duration `json:"duration_ns"`
}

type Runner struct {
	scanner   *scanner.Scanner
	embedder  *embedding.Stage
	index     *vector.Manager
	lock      Locker
	corpusDir string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewRunner(sc *scanner.Scanner, emb *embedding.Stage, idx *vector.Manager, lock Locker, corpusDir string, logger *slog.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{scanner: sc, embedder: emb, index: idx, lock: lock, corpusDir: corpusDir, logger: logger, metrics: m}
}

// Update scans the corpus, embeds every pending chunk and indexes every embedded one.
// Stages that find nothing new are no-ops, so repeated runs are cheap.
func (r *Runner) Update(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	err := r.locked(func() error {
		scanRes, err := r.scanner.Scan(ctx, r.corpusDir)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		report.FilesSeen = scanRes.Files
		report.FilesSkipped = scanRes.Skipped
		report.FilesFailed = scanRes.Failed
		report.FilesUnsupported = scanRes.Unsupported
		report.ChunksExtracted = len(scanRes.Chunks)

		embRes, err := r.embedder.EmbedPending(ctx)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		report.ChunksEmbedded = len(embRes.Items)
		report.AlreadyEmbedded = embRes.AlreadyEmbedded

		n, err := r.index.IngestPending(ctx)
		if err != nil {
			return fmt.Errorf("index: %w", err)
		}
		report.RecordsIndexed = n
		return nil
	})
	report.Duration = time.Since(start)
	r.metrics.PipelineRun(err)
	if err != nil {
		r.logger.ErrorContext(ctx, "pipeline run failed", "error", err)
		return nil, err
	}

	r.logger.InfoContext(ctx, "pipeline run complete",
		"files_seen", report.FilesSeen,
		"chunks_extracted", report.ChunksExtracted,
		"chunks_embedded", report.ChunksEmbedded,
		"records_indexed", report.RecordsIndexed,
		"duration", report.Duration)
	return report, nil
}

func (r *Runner) Scan(ctx context.Context) (*scanner.Result, error) {
	var res *scanner.Result
	err := r.locked(func() error {
		var err error
		res, err = r.scanner.Scan(ctx, r.corpusDir)
		return err
	})
	return res, err
}

func (r *Runner) Embed(ctx context.Context) (*embedding.Result, error) {
	var res *embedding.Result
	err := r.locked(func() error {
		var err error
		res, err = r.embedder.EmbedPending(ctx)
		return err
	})
	return res, err
}

func (r *Runner) Index(ctx context.Context) (int, error) {
	var n int
	err := r.locked(func() error {
		var err error
		n, err = r.index.IngestPending(ctx)
		return err
	})
	return n, err
}

// IndexFrom indexes the items of an embedded output file. Items already saved to
// the index are skipped, and every id must exist in the ledger.
func (r *Runner) IndexFrom(ctx context.Context, path string) (int, error) {
	var n int
	err := r.locked(func() error {
		items, err := state.ReadEmbeddedOutput(path)
		if err != nil {
			return err
		}
		n, err = r.index.IngestExternal(ctx, items)
		return err
	})
	return n, err
}

func (r *Runner) locked(fn func() error) error {
	if r.lock == nil {
		return fn()
	}
	if err := r.lock.TryLock(); err != nil {
		if errors.Is(err, state.ErrLocked) {
			return fmt.Errorf("%w: %v", ErrPipelineBusy, err)
		}
		return err
	}
	defer func() {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warn("failed to release pipeline lock", "error", err)
		}
	}()
	return fn()
}
