package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"prepbot/internal/document"
)

const ledgerVersion = 1

const (
	opPut      = "put"
	opEmbedded = "embedded"
	opIndexed  = "indexed"
)

type entrySource struct {
	Source    string `json:"source"`
	PageSlide string `json:"page_slide,omitempty"`
}

// ledgerEntry is one JSON line of the ledger file.
type ledgerEntry struct {
	Version   int                `json:"v"`
	Op        string             `json:"op"`
	ID        string             `json:"id"`
	At        time.Time          `json:"at"`
	Content   string             `json:"content,omitempty"`
	Type      document.ChunkType `json:"type,omitempty"`
	Metadata  *entrySource       `json:"metadata,omitempty"`
	Embedding []float32          `json:"embedding,omitempty"`
	Model     string             `json:"model,omitempty"`
}

type replayed struct {
	records []*Record
	byID    map[string]*Record
	nextID  int64
	// validSize is the byte length of the newline-terminated prefix that parsed cleanly.
	validSize int64
	fileSize  int64
}

// FileLedger is an append-only JSON-Lines chunk store. Each mutation appends lines with a
// single write followed by fsync; state is rebuilt by replaying the file.
type FileLedger struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

func NewFileLedger(path string, logger *slog.Logger) *FileLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLedger{path: path, logger: logger, now: time.Now}
}

func (l *FileLedger) Append(ctx context.Context, chunks []document.Chunk) ([]document.Chunk, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.replay(ctx)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	out := make([]document.Chunk, len(chunks))
	entries := make([]ledgerEntry, len(chunks))
	at := l.now().UTC()
	for i, c := range chunks {
		c.ID = chunkID(state.nextID + int64(i))
		c.Metadata.Embedded = false
		c.Metadata.SavedToDB = false
		out[i] = c
		entries[i] = ledgerEntry{
			Version:  ledgerVersion,
			Op:       opPut,
			ID:       c.ID,
			At:       at,
			Content:  c.Content,
			Type:     c.Type,
			Metadata: &entrySource{Source: c.Metadata.Source, PageSlide: c.Metadata.PageSlide},
		}
	}

	if err := l.write(state, entries); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *FileLedger) Records(ctx context.Context) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.replay(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(state.records))
	for i, r := range state.records {
		out[i] = *r
		out[i].Chunk = withStatusFlags(r.Chunk, r.Status)
	}
	return out, nil
}

// MarkEmbedded records vectors for pending chunks. Either every item is recorded or none is.
func (l *FileLedger) MarkEmbedded(ctx context.Context, model string, items []document.EmbeddedItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.replay(ctx)
	if err != nil {
		return err
	}

	at := l.now().UTC()
	entries := make([]ledgerEntry, 0, len(items))
	for _, item := range items {
		rec, ok := state.byID[item.ID]
		if !ok || rec.Status != StatusPending {
			return fmt.Errorf("%w: mark %s embedded", ErrUnknownChunk, item.ID)
		}
		entries = append(entries, ledgerEntry{
			Version:   ledgerVersion,
			Op:        opEmbedded,
			ID:        item.ID,
			At:        at,
			Embedding: item.Embedding,
			Model:     model,
		})
	}
	return l.write(state, entries)
}

// MarkIndexed flips embedded records to indexed. Records already indexed are skipped.
func (l *FileLedger) MarkIndexed(ctx context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.replay(ctx)
	if err != nil {
		return err
	}

	at := l.now().UTC()
	entries := make([]ledgerEntry, 0, len(ids))
	for _, id := range ids {
		rec, ok := state.byID[id]
		if !ok || rec.Status == StatusPending {
			return fmt.Errorf("%w: mark %s indexed", ErrUnknownChunk, id)
		}
		if rec.Status == StatusIndexed {
			continue
		}
		entries = append(entries, ledgerEntry{Version: ledgerVersion, Op: opIndexed, ID: id, At: at})
	}
	return l.write(state, entries)
}

func (l *FileLedger) write(state *replayed, entries []ledgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode ledger entry %s: %w", e.ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	// drop a torn tail so the new lines start on a clean boundary
	if state.validSize < state.fileSize {
		if err := os.Truncate(l.path, state.validSize); err != nil {
			return fmt.Errorf("repair ledger tail: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("append ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	return f.Close()
}

func (l *FileLedger) replay(ctx context.Context) (*replayed, error) {
	state := &replayed{byID: make(map[string]*Record)}

	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	state.fileSize = int64(len(data))

	offset := 0
	lineNo := 0
	for offset < len(data) {
		lineNo++
		end := bytes.IndexByte(data[offset:], '\n')
		if end < 0 {
			l.logger.WarnContext(ctx, "ignoring truncated ledger tail",
				"path", l.path, "line", lineNo, "bytes", len(data)-offset)
			break
		}
		line := bytes.TrimSpace(data[offset : offset+end])
		offset += end + 1

		if len(line) > 0 {
			var e ledgerEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrCorruptLedger, lineNo, err)
			}
			if err := state.apply(e); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		}
		state.validSize = int64(offset)
	}
	return state, nil
}

func (s *replayed) apply(e ledgerEntry) error {
	if e.Version != ledgerVersion {
		return fmt.Errorf("%w: %d", ErrUnknownVersion, e.Version)
	}

	switch e.Op {
	case opPut:
		if _, dup := s.byID[e.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrCorruptLedger, e.ID)
		}
		rec := &Record{
			Chunk: document.Chunk{
				ID:      e.ID,
				Content: e.Content,
				Type:    e.Type,
			},
			Status: StatusPending,
		}
		if e.Metadata != nil {
			rec.Chunk.Metadata.Source = e.Metadata.Source
			rec.Chunk.Metadata.PageSlide = e.Metadata.PageSlide
		}
		s.records = append(s.records, rec)
		s.byID[e.ID] = rec
		if n, ok := parseChunkID(e.ID); ok && n >= s.nextID {
			s.nextID = n + 1
		}
	case opEmbedded:
		rec, ok := s.byID[e.ID]
		if !ok {
			return fmt.Errorf("%w: embedded before put: %s", ErrCorruptLedger, e.ID)
		}
		rec.Embedding = e.Embedding
		rec.Model = e.Model
		if rec.Status == StatusPending {
			rec.Status = StatusEmbedded
		}
	case opIndexed:
		rec, ok := s.byID[e.ID]
		if !ok || rec.Status == StatusPending {
			return fmt.Errorf("%w: indexed before embedded: %s", ErrCorruptLedger, e.ID)
		}
		rec.Status = StatusIndexed
	default:
		return fmt.Errorf("%w: unknown op %q", ErrCorruptLedger, e.Op)
	}
	return nil
}

func parseChunkID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimPrefix(id, "chunk_"), 10, 64)
	if err != nil || !strings.HasPrefix(id, "chunk_") {
		return 0, false
	}
	return n, true
}
