package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"prepbot/internal/middleware"
)

type Answerer interface {
	Answer(ctx context.Context, query string) (string, error)
}

type Handler struct {
	generator Answerer
}

func NewHandler(g Answerer) *Handler {
	return &Handler{generator: g}
}

type Request struct {
	Query string `json:"query"`
}

type Response struct {
	Answer string `json:"answer"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
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

	slog.InfoContext(ctx, "chat request", "query_len", len(req.Query), "correlationId", correlationID)

	answer, err := h.generator.Answer(ctx, req.Query)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate answer", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to generate answer", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Response{Answer: answer}); err != nil {
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
