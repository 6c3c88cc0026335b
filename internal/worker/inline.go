package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"prepbot/internal/config"
)

// InlinePublisher stands in for nsq when no nsqd is configured: pipeline
// requests are handled in a background goroutine of the same process, one at a
// time, so a request published during a run is handled once that run ends.
type InlinePublisher struct {
	consumer *PipelineConsumer
	logger   *slog.Logger
	wg       sync.WaitGroup
	run      sync.Mutex
}

func NewInlinePublisher(c *PipelineConsumer, logger *slog.Logger) *InlinePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlinePublisher{consumer: c, logger: logger}
}

func (p *InlinePublisher) Publish(topic string, body []byte) error {
	if topic != config.TopicPipelineRun {
		return fmt.Errorf("inline publisher: unknown topic %q", topic)
	}
	msg := append([]byte(nil), body...)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run.Lock()
		defer p.run.Unlock()
		if err := p.consumer.Handle(context.Background(), msg); err != nil {
			p.logger.Warn("inline pipeline run not completed", "error", err)
		}
	}()
	return nil
}

// Wait blocks until every published run has returned.
func (p *InlinePublisher) Wait() {
	p.wg.Wait()
}
