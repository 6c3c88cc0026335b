package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"prepbot/internal/middleware"
	"prepbot/internal/state"
)

type ProcessedStore interface {
	Load(ctx context.Context) (state.ProcessedSet, error)
}

type Ledger interface {
	Records(ctx context.Context) ([]state.Record, error)
}

type IndexCounter interface {
	Count(ctx context.Context) (int, error)
}

type JobRepo interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	processed ProcessedStore
	ledger    Ledger
	index     IndexCounter
	jobRepo   JobRepo
}

// NewHandler builds the stats handler. j may be nil when failed jobs are not recorded.
func NewHandler(p ProcessedStore, l Ledger, idx IndexCounter, j JobRepo) *Handler {
	return &Handler{processed: p, ledger: l, index: idx, jobRepo: j}
}

type ChunkCounts struct {
	state.StatusCounts
	Total int `json:"total"`
}

type StatsResponse struct {
	ProcessedFiles int         `json:"processed_files"`
	Chunks         ChunkCounts `json:"chunks"`
	IndexRecords   int         `json:"index_records"`
	FailedJobs     int         `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	set, err := h.processed.Load(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load processed files", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to load processed files", http.StatusInternalServerError)
		return
	}

	records, err := h.ledger.Records(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read chunk ledger", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to read chunk ledger", http.StatusInternalServerError)
		return
	}

	iCount, err := h.index.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count index records", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "UNAVAILABLE", "failed to count index records", http.StatusServiceUnavailable)
		return
	}

	jCount := 0
	if h.jobRepo != nil {
		jCount, err = h.jobRepo.Count(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count jobs", "error", err, "correlationId", correlationID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
			return
		}
	}

	counts := state.CountByStatus(records)
	resp := StatsResponse{
		ProcessedFiles: len(set),
		Chunks:         ChunkCounts{StatusCounts: counts, Total: counts.Total()},
		IndexRecords:   iCount,
		FailedJobs:     jCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"status": "error",
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
