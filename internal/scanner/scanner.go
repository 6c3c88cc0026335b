// Package scanner walks the corpus directory and extracts files not seen before.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"prepbot/internal/document"
	"prepbot/internal/extract"
	"prepbot/internal/state"
)

type Extractor interface {
	Extract(ctx context.Context, path string) ([]document.Chunk, error)
}

// Observer receives per-file outcomes; metrics implement it.
type Observer interface {
	FileScanned(outcome string)
	ChunksExtracted(n int)
}

const (
	OutcomeExtracted   = "extracted"
	OutcomeSkipped     = "skipped"
	OutcomeUnsupported = "unsupported"
	OutcomeFailed      = "failed"
)

type Result struct {
	Chunks      []document.Chunk
	Files       int
	Extracted   int
	Skipped     int
	Unsupported int
	Failed      int
	// Blank counts extracted chunks with no text; they never reach the ledger.
	Blank int
}

type Scanner struct {
	extractor  Extractor
	processed  state.ProcessedStore
	ledger     state.Ledger
	scanOutput string
	observer   Observer
	logger     *slog.Logger
}

type Option func(*Scanner)

// WithScanOutput makes every scan rewrite path with only that run's chunks.
func WithScanOutput(path string) Option {
	return func(s *Scanner) { s.scanOutput = path }
}

func WithObserver(o Observer) Option {
	return func(s *Scanner) { s.observer = o }
}

func New(extractor Extractor, processed state.ProcessedStore, ledger state.Ledger, logger *slog.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scanner{
		extractor: extractor,
		processed: processed,
		ledger:    ledger,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FileHash identifies a file by the sha256 of its path string as walked. Content is not hashed:
// a moved file is new, an edited file in place is not.
func FileHash(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

// Scan extracts every unprocessed file under root and returns this run's chunks with ids assigned.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	processed, err := s.processed.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load processed files: %w", err)
	}

	res := &Result{}
	var chunks []document.Chunk
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			s.logger.ErrorContext(ctx, "failed to read corpus entry", "path", path, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}

		res.Files++
		hash := FileHash(path)
		if processed.Has(hash) {
			s.logger.InfoContext(ctx, "already processed", "path", path, "file_hash", hash)
			res.Skipped++
			s.observe(OutcomeSkipped, 0)
			return nil
		}

		fileChunks, err := s.extractor.Extract(ctx, path)
		switch {
		case errors.Is(err, extract.ErrUnsupportedFormat):
			s.logger.InfoContext(ctx, "unsupported file type", "path", path)
			res.Unsupported++
			s.observe(OutcomeUnsupported, 0)
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			s.logger.ErrorContext(ctx, "failed to extract file", "path", path, "error", err)
			res.Failed++
			s.observe(OutcomeFailed, 0)
			return nil
		}

		kept := dropBlank(fileChunks)
		res.Blank += len(fileChunks) - len(kept)
		s.logger.InfoContext(ctx, "extracted file", "path", path, "chunks", len(kept), "blank", len(fileChunks)-len(kept))
		processed.Add(hash)
		res.Extracted++
		s.observe(OutcomeExtracted, len(kept))
		chunks = append(chunks, kept...)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk corpus %s: %w", root, walkErr)
	}

	// chunks go first so a failed append leaves their files unprocessed
	stored, err := s.ledger.Append(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	if err := s.processed.Save(ctx, processed); err != nil {
		return nil, fmt.Errorf("save processed files: %w", err)
	}
	if s.scanOutput != "" {
		if err := state.WriteScanOutput(s.scanOutput, stored); err != nil {
			return nil, err
		}
	}

	res.Chunks = stored
	s.logger.InfoContext(ctx, "scan complete",
		"root", root, "files", res.Files, "extracted", res.Extracted, "skipped", res.Skipped,
		"unsupported", res.Unsupported, "failed", res.Failed, "chunks", len(stored))
	return res, nil
}

// dropBlank removes chunks without text. Embedding models reject empty input.
func dropBlank(chunks []document.Chunk) []document.Chunk {
	kept := make([]document.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) != "" {
			kept = append(kept, c)
		}
	}
	return kept
}

func (s *Scanner) observe(outcome string, chunks int) {
	if s.observer == nil {
		return
	}
	s.observer.FileScanned(outcome)
	if chunks > 0 {
		s.observer.ChunksExtracted(chunks)
	}
}
