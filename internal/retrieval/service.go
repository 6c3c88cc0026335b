// Package retrieval embeds a query and looks up its nearest chunks.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"prepbot/internal/document"
	"prepbot/internal/metrics"
	"prepbot/internal/middleware"
	"prepbot/internal/settings"
)

const DefaultTopK = 10

// Embedder must be the instance the corpus was embedded with.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Index interface {
	Query(ctx context.Context, vector []float32, k int) ([]document.RetrievedChunk, error)
}

type Service struct {
	embedder Embedder
	index    Index
	settings *settings.Service
	logger   *QueryLogger
	metrics  *metrics.Metrics
}

// NewService accepts nil settings, logger and metrics.
func NewService(e Embedder, idx Index, set *settings.Service, l *QueryLogger, m *metrics.Metrics) *Service {
	return &Service{embedder: e, index: idx, settings: set, logger: l, metrics: m}
}

// Retrieve returns up to k chunks ordered by ascending distance. A k of zero or less means the
// configured search_top_k. Errors from the embedder or the index are returned as is, without retry.
func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]document.RetrievedChunk, error) {
	start := time.Now()
	if k <= 0 {
		k = s.defaultK(ctx)
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	docs, err := s.index.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	elapsed := time.Since(start)
	s.metrics.ObserveRetrieval(elapsed)
	if s.logger != nil {
		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		s.logger.Log(QueryLogEntry{
			Query:         query,
			K:             k,
			NumResults:    len(docs),
			TopIDs:        ids,
			Duration:      elapsed,
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return docs, nil
}

func (s *Service) defaultK(ctx context.Context) int {
	if s.settings == nil {
		return DefaultTopK
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil || cfg.SearchTopK <= 0 {
		return DefaultTopK
	}
	return cfg.SearchTopK
}
