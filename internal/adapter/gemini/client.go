package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// maxBatch is the per-request limit of batchEmbedContents.
const maxBatch = 100

// Client serves both embeddings and chat from one genai client.
type Client struct {
	client     *genai.Client
	embedModel string
}

func NewClient(ctx context.Context, apiKey, embedModel string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{client: client, embedModel: embedModel}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) ModelName() string {
	return c.embedModel
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", c.embedModel, "length", len(text))
	em := c.client.EmbeddingModel(c.embedModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return res.Embedding.Values, nil
}

func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	em := c.client.EmbeddingModel(c.embedModel)
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		slog.DebugContext(ctx, "embedding batch", "model", c.embedModel, "size", end-start)
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			slog.ErrorContext(ctx, "batch embedding failed", "error", err)
			return nil, err
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(res.Embeddings), end-start)
		}
		for _, e := range res.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// Generate sends prompt as a single user turn to the named model.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	gm := c.client.GenerativeModel(model)
	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String(), nil
}
