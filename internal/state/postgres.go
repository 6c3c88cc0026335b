package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"prepbot/internal/document"
)

// PostgresLedger stores chunk records in the chunks table. Ids come from chunk_id_seq.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (r *PostgresLedger) Append(ctx context.Context, chunks []document.Chunk) ([]document.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO chunks (id, content, type, source, page_slide) VALUES ('chunk_' || nextval('chunk_id_seq'), $1, $2, $3, $4) RETURNING id`
	out := make([]document.Chunk, len(chunks))
	for i, c := range chunks {
		if err := tx.QueryRowContext(ctx, query, c.Content, string(c.Type), c.Metadata.Source, c.Metadata.PageSlide).Scan(&c.ID); err != nil {
			return nil, fmt.Errorf("insert chunk: %w", err)
		}
		c.Metadata.Embedded = false
		c.Metadata.SavedToDB = false
		out[i] = c
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresLedger) Records(ctx context.Context) ([]Record, error) {
	query := `SELECT id, content, type, source, page_slide, status, embedding, model FROM chunks ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			chunkType string
			status    string
			embedding []byte
		)
		if err := rows.Scan(&rec.Chunk.ID, &rec.Chunk.Content, &chunkType, &rec.Chunk.Metadata.Source,
			&rec.Chunk.Metadata.PageSlide, &status, &embedding, &rec.Model); err != nil {
			return nil, err
		}
		rec.Chunk.Type = document.ChunkType(chunkType)
		rec.Status = Status(status)
		if len(embedding) > 0 {
			if err := json.Unmarshal(embedding, &rec.Embedding); err != nil {
				return nil, fmt.Errorf("decode embedding for %s: %w", rec.Chunk.ID, err)
			}
		}
		rec.Chunk = withStatusFlags(rec.Chunk, rec.Status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PostgresLedger) MarkEmbedded(ctx context.Context, model string, items []document.EmbeddedItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE chunks SET status = 'embedded', embedding = $2, model = $3, updated_at = NOW() WHERE id = $1 AND status = 'pending'`
	for _, item := range items {
		vec, err := json.Marshal(item.Embedding)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, item.ID, vec, model)
		if err != nil {
			return fmt.Errorf("mark %s embedded: %w", item.ID, err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return fmt.Errorf("%w: mark %s embedded", ErrUnknownChunk, item.ID)
		}
	}
	return tx.Commit()
}

// MarkIndexed flips embedded records to indexed. Records already indexed are skipped;
// unknown or pending ids fail with ErrUnknownChunk and nothing is changed.
func (r *PostgresLedger) MarkIndexed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id, status FROM chunks WHERE id = ANY($1) FOR UPDATE`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load chunk status: %w", err)
	}
	statuses := make(map[string]Status, len(ids))
	for rows.Next() {
		var id string
		var st Status
		if err := rows.Scan(&id, &st); err != nil {
			rows.Close()
			return err
		}
		statuses[id] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var toMark []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		st, ok := statuses[id]
		if !ok || st == StatusPending {
			return fmt.Errorf("%w: mark %s indexed", ErrUnknownChunk, id)
		}
		if st == StatusEmbedded && !seen[id] {
			seen[id] = true
			toMark = append(toMark, id)
		}
	}
	if len(toMark) == 0 {
		return nil
	}

	res, err := tx.ExecContext(ctx, `UPDATE chunks SET status = 'indexed', updated_at = NOW() WHERE id = ANY($1) AND status = 'embedded'`, pq.Array(toMark))
	if err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || int(n) != len(toMark) {
		return fmt.Errorf("%w: marked %d of %d chunks indexed", ErrUnknownChunk, n, len(toMark))
	}
	return tx.Commit()
}

type PostgresProcessedStore struct {
	db *sql.DB
}

func NewPostgresProcessedStore(db *sql.DB) *PostgresProcessedStore {
	return &PostgresProcessedStore{db: db}
}

func (r *PostgresProcessedStore) Load(ctx context.Context) (ProcessedSet, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT file_hash FROM processed_files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := ProcessedSet{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		set.Add(h)
	}
	return set, rows.Err()
}

// Save inserts every hash of the set; the table only ever grows.
func (r *PostgresProcessedStore) Save(ctx context.Context, set ProcessedSet) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO processed_files (file_hash) VALUES ($1) ON CONFLICT (file_hash) DO NOTHING`
	for _, h := range set.Sorted() {
		if _, err := tx.ExecContext(ctx, query, h); err != nil {
			return fmt.Errorf("save processed file %s: %w", h, err)
		}
	}
	return tx.Commit()
}
