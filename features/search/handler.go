package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"prepbot/internal/document"
	"prepbot/internal/middleware"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]document.RetrievedChunk, error)
}

type Handler struct {
	retriever Retriever
}

func NewHandler(r Retriever) *Handler {
	return &Handler{retriever: r}
}

type Request struct {
	Query string `json:"query"`
	// K of zero or less falls back to the configured default.
	K int `json:"k"`
}

type Response struct {
	Results []document.RetrievedChunk `json:"results"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_ARGUMENT", "Invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(ctx, w, "INVALID_ARGUMENT", "query is required", http.StatusBadRequest)
		return
	}

	results, err := h.retriever.Retrieve(ctx, req.Query, req.K)
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "search failed", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []document.RetrievedChunk{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Response{Results: results}); err != nil {
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
