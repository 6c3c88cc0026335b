package worker

import (
	"context"
	"time"

	"prepbot/internal/pipeline"
)

// PipelineRequest is the body published to the pipeline topic.
type PipelineRequest struct {
	Reason        string    `json:"reason"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

type PipelineRunner interface {
	Update(ctx context.Context) (*pipeline.Report, error)
}

type Publisher interface {
	Publish(topic string, body []byte) error
}
