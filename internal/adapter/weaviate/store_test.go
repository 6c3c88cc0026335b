package weaviate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	adapter "prepbot/internal/adapter/weaviate"
	"prepbot/internal/document"
	"prepbot/internal/vector"
)

func mockWeaviate(t *testing.T, handler http.HandlerFunc) (*weaviate.Client, *httptest.Server) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		handler(w, r)
	}))
	cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
	client, err := weaviate.NewClient(cfg)
	require.NoError(t, err)
	return client, ts
}

func TestObjectID_Deterministic(t *testing.T) {
	assert.Equal(t, adapter.ObjectID("chunk_0"), adapter.ObjectID("chunk_0"))
	assert.NotEqual(t, adapter.ObjectID("chunk_0"), adapter.ObjectID("chunk_1"))
}

func TestIndex_Add(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		var body struct {
			Objects []map[string]interface{} `json:"objects"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Objects, 2)

		first := body.Objects[0]
		assert.Equal(t, "InterviewPrep", first["class"])
		assert.Equal(t, string(adapter.ObjectID("chunk_0")), first["id"])
		props := first["properties"].(map[string]interface{})
		assert.Equal(t, "chunk_0", props["chunkId"])
		assert.Equal(t, "first", props["content"])
		assert.Equal(t, "notes.pdf", props["source"])
		assert.Equal(t, "Page 1", props["pageSlide"])
		assert.Len(t, first["vector"], 2)

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": first["id"], "result": map[string]interface{}{}},
			{"id": body.Objects[1]["id"], "result": map[string]interface{}{}},
		})
	})
	defer ts.Close()

	index := adapter.NewIndex(client, "InterviewPrep", "")
	err := index.Add(context.Background(),
		[]string{"chunk_0", "chunk_1"},
		[][]float32{{0.1, 0.2}, {0.3, 0.4}},
		[]string{"first", "second"},
		[]document.Metadata{
			{Source: "notes.pdf", PageSlide: "Page 1"},
			{Source: "grid.csv", Type: document.TypeTable},
		},
	)
	assert.NoError(t, err)
}

func TestIndex_AddReportsObjectErrors(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"id": "x",
				"result": map[string]interface{}{
					"errors": map[string]interface{}{
						"error": []map[string]interface{}{{"message": "vector lengths don't match"}},
					},
				},
			},
		})
	})
	defer ts.Close()

	index := adapter.NewIndex(client, "InterviewPrep", "")
	err := index.Add(context.Background(), []string{"chunk_0"}, [][]float32{{1}}, []string{"a"}, []document.Metadata{{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector lengths don't match")
}

func TestIndex_AddMisaligned(t *testing.T) {
	index := adapter.NewIndex(nil, "InterviewPrep", "")
	err := index.Add(context.Background(), []string{"a"}, nil, []string{"a"}, []document.Metadata{{}})
	assert.ErrorIs(t, err, vector.ErrMisaligned)
}

func TestIndex_Query(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		assert.Contains(t, body["query"], "nearVector")

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					"InterviewPrep": []interface{}{
						map[string]interface{}{
							"chunkId":     "chunk_3",
							"content":     "| a |",
							"source":      "grid.csv",
							"pageSlide":   "",
							"type":        "table",
							"_additional": map[string]interface{}{"distance": 0.125},
						},
						map[string]interface{}{
							"chunkId":     "chunk_1",
							"content":     "slide text",
							"source":      "deck.pptx",
							"pageSlide":   "Slide 2",
							"_additional": map[string]interface{}{"distance": "0.5"},
						},
					},
				},
			},
		})
	})
	defer ts.Close()

	index := adapter.NewIndex(client, "InterviewPrep", "")
	got, err := index.Query(context.Background(), []float32{0.1, 0.2}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "chunk_3", got[0].ID)
	assert.Equal(t, "| a |", got[0].Document)
	assert.Equal(t, document.TypeTable, got[0].Metadata.Type)
	assert.Equal(t, 0.125, got[0].Distance)

	assert.Equal(t, "Slide 2", got[1].Metadata.PageSlide)
	assert.Equal(t, 0.5, got[1].Distance)
}

func TestIndex_QueryGraphQLError(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{{"message": "class not found"}},
		})
	})
	defer ts.Close()

	index := adapter.NewIndex(client, "InterviewPrep", "")
	_, err := index.Query(context.Background(), []float32{1}, 3)
	assert.Error(t, err)
}

func TestIndex_Count(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Aggregate": map[string]interface{}{
					"InterviewPrep": []interface{}{
						map[string]interface{}{
							"meta": map[string]interface{}{"count": 42.0},
						},
					},
				},
			},
		})
	})
	defer ts.Close()

	index := adapter.NewIndex(client, "InterviewPrep", "")
	count, err := index.Count(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 42, count)
}
