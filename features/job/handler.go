package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"prepbot/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type retryResponse struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Status string `json:"status"`
}

// List answers GET /jobs/failed with the failed pipeline runs, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.service.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list failed runs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	runs := make([]FailedRun, len(jobs))
	for i, j := range jobs {
		runs[i] = j.FailedRun()
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{
		"data": runs,
		"meta": map[string]int{"count": len(runs)},
	})
}

// Retry answers POST /jobs/{id}/retry. The run is queued again, not awaited.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	j, err := h.service.Retry(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeError(ctx, w, "NOT_FOUND", "failed run not found", http.StatusNotFound)
		return
	case err != nil:
		slog.ErrorContext(ctx, "failed to requeue run", "id", id, "error", err)
		h.writeError(ctx, w, "UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
		return
	}

	slog.InfoContext(ctx, "failed run requeued", "id", id)
	h.writeJSON(ctx, w, http.StatusAccepted, map[string]any{
		"data": retryResponse{ID: j.ID, Reason: j.Request().Reason, Status: "queued"},
	})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]any{
		"status": "error",
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
