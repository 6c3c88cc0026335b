// Package embedding computes vectors for pending chunks.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"prepbot/internal/document"
	"prepbot/internal/state"
)

var ErrVectorCount = errors.New("embedder returned wrong number of vectors")

// Embedder must be the same instance for corpus chunks and for queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

type Result struct {
	ToEmbed         []document.Chunk
	Vectors         [][]float32
	Items           []document.EmbeddedItem
	AlreadyEmbedded int
	// Blank counts pending chunks without text, which are left pending.
	Blank int
}

type Stage struct {
	embedder  Embedder
	ledger    state.Ledger
	batchSize int
	logger    *slog.Logger
	onEmbed   func(n int)
}

func NewStage(embedder Embedder, ledger state.Ledger, batchSize int, logger *slog.Logger) *Stage {
	if batchSize <= 0 {
		batchSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{embedder: embedder, ledger: ledger, batchSize: batchSize, logger: logger}
}

// OnEmbedded registers a callback invoked with the number of chunks persisted by a run.
func (s *Stage) OnEmbedded(fn func(n int)) {
	s.onEmbed = fn
}

// EmbedPending embeds every pending chunk of the ledger. All vectors are computed before
// anything is persisted, so a failed model call leaves the ledger untouched.
func (s *Stage) EmbedPending(ctx context.Context) (*Result, error) {
	records, err := s.ledger.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	res := &Result{}
	for _, r := range records {
		if r.Chunk.Metadata.Embedded {
			res.AlreadyEmbedded++
			continue
		}
		if strings.TrimSpace(r.Chunk.Content) == "" {
			res.Blank++
			continue
		}
		res.ToEmbed = append(res.ToEmbed, r.Chunk)
	}
	if res.Blank > 0 {
		s.logger.WarnContext(ctx, "skipping chunks without text", "count", res.Blank)
	}

	if len(res.ToEmbed) == 0 {
		s.logger.InfoContext(ctx, "no new chunks to embed", "already_embedded", res.AlreadyEmbedded)
		return res, nil
	}

	s.logger.InfoContext(ctx, "embedding chunks",
		"pending", len(res.ToEmbed), "already_embedded", res.AlreadyEmbedded, "model", s.embedder.ModelName())

	for start := 0; start < len(res.ToEmbed); start += s.batchSize {
		end := min(start+s.batchSize, len(res.ToEmbed))
		texts := make([]string, 0, end-start)
		for _, c := range res.ToEmbed[start:end] {
			texts = append(texts, c.Content)
		}

		vectors, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("%w: got %d for %d texts", ErrVectorCount, len(vectors), len(texts))
		}
		res.Vectors = append(res.Vectors, vectors...)
	}

	res.Items = make([]document.EmbeddedItem, len(res.ToEmbed))
	for i, c := range res.ToEmbed {
		res.Items[i] = document.NewEmbeddedItem(c, res.Vectors[i])
	}

	if err := s.ledger.MarkEmbedded(ctx, s.embedder.ModelName(), res.Items); err != nil {
		return nil, fmt.Errorf("persist embeddings: %w", err)
	}
	if s.onEmbed != nil {
		s.onEmbed(len(res.Items))
	}

	s.logger.InfoContext(ctx, "embedded chunks", "count", len(res.Items))
	return res, nil
}
