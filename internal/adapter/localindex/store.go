// Package localindex is a file-backed vector collection addressed by a directory and a name.
package localindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"prepbot/internal/document"
	"prepbot/internal/vector"
)

const snapshotVersion = 1

const (
	DistanceL2     = "l2"
	DistanceCosine = "cosine"
)

var ErrDistanceMismatch = errors.New("collection was created with a different distance")

type record struct {
	ID        string            `json:"id"`
	Embedding []float32         `json:"embedding"`
	Document  string            `json:"document"`
	Metadata  document.Metadata `json:"metadata"`
}

type snapshot struct {
	Version    int      `json:"version"`
	Collection string   `json:"collection"`
	Distance   string   `json:"distance"`
	Dimension  int      `json:"dimension"`
	Records    []record `json:"records"`
}

// Store keeps the whole collection in memory and rewrites its snapshot on every Add.
type Store struct {
	path       string
	collection string
	distance   string

	mu        sync.RWMutex
	dimension int
	order     []string
	records   map[string]record
}

// Open creates the collection if absent, else loads it. An existing collection keeps its
// distance; asking for a different one is an error.
func Open(dir, collection, distance string) (*Store, error) {
	if distance == "" {
		distance = DistanceL2
	}
	if distance != DistanceL2 && distance != DistanceCosine {
		return nil, fmt.Errorf("unknown distance %q", distance)
	}

	s := &Store{
		path:       filepath.Join(dir, collection+".json"),
		collection: collection,
		distance:   distance,
		records:    make(map[string]record),
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.persist(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collection %s: %w", collection, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", collection, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("collection %s: unsupported snapshot version %d", collection, snap.Version)
	}
	if snap.Distance != distance {
		return nil, fmt.Errorf("%w: %s uses %s, requested %s", ErrDistanceMismatch, collection, snap.Distance, distance)
	}
	s.dimension = snap.Dimension
	for _, r := range snap.Records {
		if _, ok := s.records[r.ID]; !ok {
			s.order = append(s.order, r.ID)
		}
		s.records[r.ID] = r
	}
	return s, nil
}

func (s *Store) Add(ctx context.Context, ids []string, vectors [][]float32, documents []string, metadatas []document.Metadata) error {
	if err := vector.CheckAligned(ids, vectors, documents, metadatas); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector for %s", vector.ErrDimensionMismatch, ids[i])
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return fmt.Errorf("%w: %s has %d, collection has %d", vector.ErrDimensionMismatch, ids[i], len(v), dim)
		}
	}

	prevOrder := append([]string(nil), s.order...)
	prev := make(map[string]record, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			prev[id] = r
		}
	}

	for i, id := range ids {
		if _, ok := s.records[id]; !ok {
			s.order = append(s.order, id)
		}
		s.records[id] = record{
			ID:        id,
			Embedding: append([]float32(nil), vectors[i]...),
			Document:  documents[i],
			Metadata:  metadatas[i],
		}
	}
	prevDim := s.dimension
	s.dimension = dim

	if err := s.persist(); err != nil {
		// roll back so memory matches disk
		for _, id := range ids {
			if r, ok := prev[id]; ok {
				s.records[id] = r
			} else {
				delete(s.records, id)
			}
		}
		s.order = prevOrder
		s.dimension = prevDim
		return err
	}
	return nil
}

func (s *Store) Query(ctx context.Context, v []float32, k int) ([]document.RetrievedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	if len(v) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", vector.ErrDimensionMismatch, len(v), s.dimension)
	}

	matches := make([]document.RetrievedChunk, 0, len(s.records))
	for _, id := range s.order {
		r := s.records[id]
		matches = append(matches, document.RetrievedChunk{
			ID:       r.ID,
			Document: r.Document,
			Metadata: r.Metadata,
			Distance: s.distanceTo(v, r.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance == matches[j].Distance {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) distanceTo(a, b []float32) float64 {
	if s.distance == DistanceCosine {
		return cosineDistance(a, b)
	}
	return squaredL2(a, b)
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func (s *Store) persist() error {
	snap := snapshot{
		Version:    snapshotVersion,
		Collection: s.collection,
		Distance:   s.distance,
		Dimension:  s.dimension,
		Records:    make([]record, 0, len(s.order)),
	}
	for _, id := range s.order {
		snap.Records = append(snap.Records, s.records[id])
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create collection dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, s.collection+".*.tmp")
	if err != nil {
		return fmt.Errorf("write collection: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write collection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write collection: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write collection: %w", err)
	}
	return nil
}
