// Package vector manages ingestion into and queries against the vector index.
package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"prepbot/internal/document"
	"prepbot/internal/state"
)

var (
	ErrMisaligned        = errors.New("ids, vectors, documents and metadatas must have equal length")
	ErrDimensionMismatch = errors.New("vector dimension does not match collection")
)

// Index is a persistent similarity-search collection keyed by chunk id.
// Adding an id that already exists replaces the stored record.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32, documents []string, metadatas []document.Metadata) error
	// Query returns up to k records ordered by ascending distance.
	Query(ctx context.Context, vector []float32, k int) ([]document.RetrievedChunk, error)
	Count(ctx context.Context) (int, error)
}

func CheckAligned(ids []string, vectors [][]float32, documents []string, metadatas []document.Metadata) error {
	n := len(ids)
	if len(vectors) != n || len(documents) != n || len(metadatas) != n {
		return fmt.Errorf("%w: ids=%d vectors=%d documents=%d metadatas=%d",
			ErrMisaligned, n, len(vectors), len(documents), len(metadatas))
	}
	return nil
}

// Manager gates index ingestion on the saved_to_db flag and records the result in the ledger.
type Manager struct {
	index     Index
	ledger    state.Ledger
	logger    *slog.Logger
	onIndexed func(n int)
}

func NewManager(index Index, ledger state.Ledger, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{index: index, ledger: ledger, logger: logger}
}

func (m *Manager) OnIndexed(fn func(n int)) {
	m.onIndexed = fn
}

// Ingest adds the items not yet saved to the index in one bulk call, then marks them indexed.
// It returns the number of items added.
func (m *Manager) Ingest(ctx context.Context, items []document.EmbeddedItem) (int, error) {
	var pending []document.EmbeddedItem
	for _, item := range items {
		if !item.Metadata.SavedToDB {
			pending = append(pending, item)
		}
	}
	if len(pending) == 0 {
		m.logger.InfoContext(ctx, "no new embeddings to index", "items", len(items))
		return 0, nil
	}

	ids := make([]string, len(pending))
	vectors := make([][]float32, len(pending))
	documents := make([]string, len(pending))
	metadatas := make([]document.Metadata, len(pending))
	for i, item := range pending {
		ids[i] = item.ID
		vectors[i] = item.Embedding
		documents[i] = item.Document
		metadatas[i] = item.Metadata
	}

	if err := m.index.Add(ctx, ids, vectors, documents, metadatas); err != nil {
		return 0, fmt.Errorf("add to index: %w", err)
	}
	if err := m.ledger.MarkIndexed(ctx, ids); err != nil {
		return 0, fmt.Errorf("mark indexed: %w", err)
	}
	if m.onIndexed != nil {
		m.onIndexed(len(ids))
	}

	m.logger.InfoContext(ctx, "indexed embeddings", "count", len(ids))
	return len(ids), nil
}

// IngestPending indexes every embedded ledger record that is not yet indexed.
func (m *Manager) IngestPending(ctx context.Context) (int, error) {
	records, err := m.ledger.Records(ctx)
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}
	return m.Ingest(ctx, state.EmbeddedItems(records))
}

// IngestExternal indexes items read from outside the ledger, such as an export file.
// Every item must be embedded in the ledger; otherwise nothing is added.
func (m *Manager) IngestExternal(ctx context.Context, items []document.EmbeddedItem) (int, error) {
	records, err := m.ledger.Records(ctx)
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}
	embedded := make(map[string]bool, len(records))
	for _, rec := range records {
		embedded[rec.Chunk.ID] = rec.Status != state.StatusPending
	}
	for _, item := range items {
		if !embedded[item.ID] {
			return 0, fmt.Errorf("%w: %s", state.ErrUnknownChunk, item.ID)
		}
	}
	return m.Ingest(ctx, items)
}

func (m *Manager) Query(ctx context.Context, vector []float32, k int) ([]document.RetrievedChunk, error) {
	return m.index.Query(ctx, vector, k)
}

func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.index.Count(ctx)
}
