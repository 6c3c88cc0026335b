// Package state persists pipeline bookkeeping: the chunk ledger, the processed-file set,
// per-run scan output and the embedded-output export.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"prepbot/internal/document"
)

var (
	ErrCorruptLedger         = errors.New("corrupt chunk ledger")
	ErrUnknownVersion        = errors.New("unknown ledger version")
	ErrUnknownChunk          = errors.New("unknown chunk or invalid status transition")
	ErrEmbeddedOutputMissing = errors.New("embedded output not found")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusEmbedded Status = "embedded"
	StatusIndexed  Status = "indexed"
)

// Record is the replayed state of one chunk.
type Record struct {
	Chunk     document.Chunk
	Status    Status
	Embedding []float32
	Model     string
}

// EmbeddedItem is only meaningful for embedded or indexed records.
func (r Record) EmbeddedItem() document.EmbeddedItem {
	item := document.NewEmbeddedItem(r.Chunk, r.Embedding)
	item.Metadata.SavedToDB = r.Status == StatusIndexed
	return item
}

// Ledger is the append-only chunk store. Append assigns ids.
type Ledger interface {
	Append(ctx context.Context, chunks []document.Chunk) ([]document.Chunk, error)
	Records(ctx context.Context) ([]Record, error)
	MarkEmbedded(ctx context.Context, model string, items []document.EmbeddedItem) error
	MarkIndexed(ctx context.Context, ids []string) error
}

// ProcessedSet holds path hashes of files the scanner has extracted.
type ProcessedSet map[string]struct{}

func (s ProcessedSet) Has(hash string) bool {
	_, ok := s[hash]
	return ok
}

func (s ProcessedSet) Add(hash string) {
	s[hash] = struct{}{}
}

func (s ProcessedSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

type ProcessedStore interface {
	Load(ctx context.Context) (ProcessedSet, error)
	Save(ctx context.Context, set ProcessedSet) error
}

type StatusCounts struct {
	Pending  int `json:"pending"`
	Embedded int `json:"embedded"`
	Indexed  int `json:"indexed"`
}

func (c StatusCounts) Total() int {
	return c.Pending + c.Embedded + c.Indexed
}

func CountByStatus(records []Record) StatusCounts {
	var c StatusCounts
	for _, r := range records {
		switch r.Status {
		case StatusPending:
			c.Pending++
		case StatusEmbedded:
			c.Embedded++
		case StatusIndexed:
			c.Indexed++
		}
	}
	return c
}

func withStatusFlags(c document.Chunk, status Status) document.Chunk {
	c.Metadata.Embedded = status != StatusPending
	c.Metadata.SavedToDB = status == StatusIndexed
	return c
}

func chunkID(n int64) string {
	return fmt.Sprintf("chunk_%d", n)
}

// writeFileAtomic replaces path with data through a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
