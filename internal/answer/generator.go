// Package answer turns retrieved chunks into a prompt and asks a chat model.
package answer

import (
	"context"
	"fmt"
	"log/slog"

	"prepbot/internal/document"
	"prepbot/internal/metrics"
	"prepbot/internal/settings"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]document.RetrievedChunk, error)
}

// ChatModel sends prompt as one user message and returns the reply text.
type ChatModel interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

type Generator struct {
	retriever Retriever
	chat      ChatModel
	settings  *settings.Service
	model     string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewGenerator uses model unless settings carry a chat_model.
func NewGenerator(r Retriever, chat ChatModel, set *settings.Service, model string, logger *slog.Logger, m *metrics.Metrics) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{retriever: r, chat: chat, settings: set, model: model, logger: logger, metrics: m}
}

func (g *Generator) Answer(ctx context.Context, query string) (string, error) {
	text, err := g.answer(ctx, query)
	g.metrics.Answer(err)
	return text, err
}

func (g *Generator) answer(ctx context.Context, query string) (string, error) {
	chunks, err := g.retriever.Retrieve(ctx, query, 0)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}

	model := g.chatModel(ctx)
	prompt := BuildPrompt(query, chunks)
	g.logger.DebugContext(ctx, "generating answer", "model", model, "chunks", len(chunks), "prompt_length", len(prompt))

	reply, err := g.chat.Generate(ctx, model, prompt)
	if err != nil {
		g.logger.ErrorContext(ctx, "generation failed", "model", model, "error", err)
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return reply, nil
}

func (g *Generator) chatModel(ctx context.Context) string {
	if g.settings == nil {
		return g.model
	}
	s, err := g.settings.Get(ctx)
	if err != nil || s.ChatModel == "" {
		return g.model
	}
	return s.ChatModel
}
