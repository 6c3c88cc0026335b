package search_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"prepbot/features/search"
	"prepbot/internal/document"
)

type MockRetriever struct{ mock.Mock }

func (m *MockRetriever) Retrieve(ctx context.Context, query string, k int) ([]document.RetrievedChunk, error) {
	args := m.Called(ctx, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]document.RetrievedChunk), args.Error(1)
}

func TestHandler_Search(t *testing.T) {
	m := new(MockRetriever)
	m.On("Retrieve", mock.Anything, "binary search", 2).Return([]document.RetrievedChunk{
		{ID: "chunk_3", Document: "Binary search halves the range.", Metadata: document.Metadata{Source: "algo.pdf", PageSlide: "Page 2"}, Distance: 0.12},
		{ID: "chunk_9", Document: "Sorted input is required.", Metadata: document.Metadata{Source: "algo.pdf", PageSlide: "Page 3"}, Distance: 0.4},
	}, nil)

	h := search.NewHandler(m)
	req := httptest.NewRequest("POST", "/search", strings.NewReader(`{"query":"binary search","k":2}`))
	w := httptest.NewRecorder()
	h.Search(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp search.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "chunk_3", resp.Results[0].ID)
	assert.Equal(t, "Page 2", resp.Results[0].Metadata.PageSlide)
}

func TestHandler_Search_DefaultK(t *testing.T) {
	m := new(MockRetriever)
	m.On("Retrieve", mock.Anything, "heap", 0).Return(nil, nil)

	h := search.NewHandler(m)
	w := httptest.NewRecorder()
	h.Search(w, httptest.NewRequest("POST", "/search", strings.NewReader(`{"query":"heap"}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results":[]}`, w.Body.String())
	m.AssertExpectations(t)
}

func TestHandler_Search_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(*MockRetriever)
		wantStatus int
	}{
		{"Invalid JSON", `nope`, func(m *MockRetriever) {}, http.StatusBadRequest},
		{"Missing Query", `{"k":3}`, func(m *MockRetriever) {}, http.StatusBadRequest},
		{"Retriever Error", `{"query":"x"}`, func(m *MockRetriever) {
			m.On("Retrieve", mock.Anything, "x", 0).Return(nil, errors.New("embed query: timeout"))
		}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockRetriever)
			tt.setup(m)
			w := httptest.NewRecorder()
			search.NewHandler(m).Search(w, httptest.NewRequest("POST", "/search", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), `"status":"error"`)
		})
	}
}
