package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"prepbot/internal/config"
	"prepbot/internal/extract"
	"prepbot/internal/middleware"
	"prepbot/internal/worker"
)

type Handler struct {
	pub       worker.Publisher
	corpusDir string
	maxUpload int64
}

func NewHandler(pub worker.Publisher, corpusDir string, maxUploadMB int64) *Handler {
	return &Handler{pub: pub, corpusDir: corpusDir, maxUpload: maxUploadMB << 20}
}

// Ingest enqueues an update pipeline run.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.enqueue(ctx, "api"); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue pipeline run", "error", err)
		h.writeError(ctx, w, "UNAVAILABLE", "failed to enqueue pipeline run", http.StatusServiceUnavailable)
		return
	}
	h.writeAccepted(ctx, w, nil)
}

// Upload saves a document into the corpus directory and enqueues a pipeline run.
// An upload never replaces an existing corpus file.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.writeError(ctx, w, "INVALID_ARGUMENT", "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "INVALID_ARGUMENT", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || !extract.Supported(name) {
		h.writeError(ctx, w, "INVALID_ARGUMENT", "Unsupported file type", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.corpusDir, 0o750); err != nil {
		slog.ErrorContext(ctx, "failed to create corpus directory", "error", err, "path", h.corpusDir)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to create corpus directory", http.StatusInternalServerError)
		return
	}

	path := filepath.Join(h.corpusDir, name)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) // #nosec G304 -- basename only, joined onto the corpus dir
	if errors.Is(err, os.ErrExist) {
		h.writeError(ctx, w, "CONFLICT", "File already exists in corpus", http.StatusConflict)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to create file", "error", err, "path", path)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to save file", http.StatusInternalServerError)
		return
	}

	_, copyErr := io.Copy(dst, file)
	closeErr := dst.Close()
	if copyErr != nil || closeErr != nil {
		if removeErr := os.Remove(path); removeErr != nil {
			slog.WarnContext(ctx, "failed to clean up uploaded file", "error", removeErr, "path", path)
		}
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to write file", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "file uploaded", "path", path, "size", header.Size)

	if err := h.enqueue(ctx, "upload"); err != nil {
		// the file stays; the next run picks it up
		slog.ErrorContext(ctx, "failed to enqueue pipeline run", "error", err)
		h.writeError(ctx, w, "UNAVAILABLE", "File saved but pipeline run not enqueued", http.StatusServiceUnavailable)
		return
	}
	h.writeAccepted(ctx, w, map[string]string{"path": path})
}

func (h *Handler) enqueue(ctx context.Context, reason string) error {
	body, err := json.Marshal(worker.PipelineRequest{
		Reason:        reason,
		CorrelationID: middleware.GetCorrelationID(ctx),
		RequestedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return h.pub.Publish(config.TopicPipelineRun, body)
}

func (h *Handler) writeAccepted(ctx context.Context, w http.ResponseWriter, extra map[string]string) {
	data := map[string]string{"status": "queued"}
	for k, v := range extra {
		data[k] = v
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
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
