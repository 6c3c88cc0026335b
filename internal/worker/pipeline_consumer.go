package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"prepbot/features/job"
	"prepbot/internal/middleware"
	"prepbot/internal/pipeline"
)

const pipelineHandlerName = "pipeline-worker"

// touchInterval keeps long embedding runs from hitting the nsqd message timeout.
var touchInterval = 30 * time.Second

type PipelineConsumer struct {
	runner  PipelineRunner
	jobRepo job.Repository
	logger  *slog.Logger
}

// NewPipelineConsumer builds the consumer. jobs may be nil, in which case
// failed runs are returned to the caller instead of being recorded.
func NewPipelineConsumer(r PipelineRunner, jobs job.Repository, logger *slog.Logger) *PipelineConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineConsumer{runner: r, jobRepo: jobs, logger: logger}
}

func (c *PipelineConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	if m.Delegate != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			ticker := time.NewTicker(touchInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					m.Touch()
				case <-stop:
					return
				}
			}
		}()
	}

	return c.Handle(context.Background(), m.Body)
}

// Handle runs one update for the given request body.
// A busy pipeline is returned so the broker requeues the message.
func (c *PipelineConsumer) Handle(ctx context.Context, body []byte) error {
	var req PipelineRequest
	if err := json.Unmarshal(body, &req); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		c.logger.Error("poison pill: invalid json", "error", err)
		return nil
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx = middleware.WithCorrelationID(ctx, correlationID)

	c.logger.InfoContext(ctx, "pipeline run started", "reason", req.Reason)

	report, err := c.runner.Update(ctx)
	if errors.Is(err, pipeline.ErrPipelineBusy) {
		c.logger.WarnContext(ctx, "pipeline busy, requeueing", "reason", req.Reason)
		return err
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "pipeline run failed", "error", err, "reason", req.Reason)
		if c.jobRepo == nil {
			return err
		}
		failed := &job.Job{
			Handler: pipelineHandlerName,
			Payload: json.RawMessage(body),
			Error:   err.Error(),
		}
		if saveErr := c.jobRepo.Save(ctx, failed); saveErr != nil {
			c.logger.ErrorContext(ctx, "failed to save failed job", "error", saveErr)
			return err
		}
		c.logger.InfoContext(ctx, "saved failed job for retry", "job_id", failed.ID)
		return nil
	}

	c.logger.InfoContext(ctx, "pipeline run completed",
		"files_seen", report.FilesSeen,
		"chunks_extracted", report.ChunksExtracted,
		"chunks_embedded", report.ChunksEmbedded,
		"records_indexed", report.RecordsIndexed,
		"duration", report.Duration,
	)
	return nil
}
