// Package ollama talks to a local Ollama server through langchaingo.
package ollama

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
)

type Embedder struct {
	impl  embeddings.Embedder
	model string
}

func NewEmbedder(serverURL, model string, batchSize int) (*Embedder, error) {
	llm, err := lcollama.New(lcollama.WithModel(model), lcollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	opts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	impl, err := embeddings.NewEmbedder(llm, opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return &Embedder{impl: impl, model: model}, nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: %w", e.model, err)
	}
	return vecs, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: %w", e.model, err)
	}
	return vec, nil
}

func (e *Embedder) ModelName() string {
	return e.model
}

type Chat struct {
	llm *lcollama.LLM
}

func NewChat(serverURL, model string) (*Chat, error) {
	llm, err := lcollama.New(lcollama.WithModel(model), lcollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	return &Chat{llm: llm}, nil
}

// Generate sends prompt as a single user message to the named model.
func (c *Chat) Generate(ctx context.Context, model, prompt string) (string, error) {
	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
	resp, err := c.llm.GenerateContent(ctx, msgs, llms.WithModel(model))
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from ollama")
	}
	return resp.Choices[0].Content, nil
}
