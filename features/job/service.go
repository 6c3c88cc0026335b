package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"prepbot/internal/config"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo    Repository
	pub     EventPublisher
	logger  *slog.Logger
	timeout time.Duration
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger, timeout: 5 * time.Second}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// Retry re-publishes the job's payload to the pipeline topic, then deletes the job.
// It returns the job that was re-published.
func (s *Service) Retry(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// nsq Publish has no context, so bound it here
	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicPipelineRun, job.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.timeout):
		return nil, errors.New("timeout waiting for NSQ publish")
	}

	s.logger.InfoContext(ctx, "job re-published", "id", id, "topic", config.TopicPipelineRun)
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
