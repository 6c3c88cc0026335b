package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepbot/internal/adapter/openai"
)

func TestClient_EmbedDocumentsKeepsInputOrder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"first", "second"}, req.Input)

		w.Header().Set("Content-Type", "application/json")
		// out of order on purpose
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
		})
	}))
	defer ts.Close()

	c := openai.NewClient("sk-test", ts.URL+"/v1", "text-embedding-3-small")
	vecs, err := c.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "text-embedding-3-small", c.ModelName())
}

func TestClient_EmbedDocumentsMissingVector(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"index": 0, "embedding": []float32{1}}},
		})
	}))
	defer ts.Close()

	c := openai.NewClient("sk-test", ts.URL+"/v1", "m")
	_, err := c.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestClient_Generate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "Explain recursion", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]interface{}{"role": "assistant", "content": "A function calling itself."}},
			},
		})
	}))
	defer ts.Close()

	c := openai.NewClient("sk-test", ts.URL+"/v1", "text-embedding-3-small")
	answer, err := c.Generate(context.Background(), "gpt-4o-mini", "Explain recursion")
	require.NoError(t, err)
	assert.Equal(t, "A function calling itself.", answer)
}

func TestClient_GenerateNoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	c := openai.NewClient("sk-test", ts.URL+"/v1", "m")
	_, err := c.Generate(context.Background(), "gpt-4o-mini", "hi")
	assert.Error(t, err)
}
