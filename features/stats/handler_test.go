package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"prepbot/internal/state"
)

type MockProcessedStore struct{ mock.Mock }

func (m *MockProcessedStore) Load(ctx context.Context) (state.ProcessedSet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(state.ProcessedSet), args.Error(1)
}

type MockLedger struct{ mock.Mock }

func (m *MockLedger) Records(ctx context.Context) ([]state.Record, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]state.Record), args.Error(1)
}

type MockCounter struct{ mock.Mock }

func (m *MockCounter) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func processed(hashes ...string) state.ProcessedSet {
	set := state.ProcessedSet{}
	for _, h := range hashes {
		set.Add(h)
	}
	return set
}

func TestHandler_GetStats_Table(t *testing.T) {
	records := []state.Record{
		{Status: state.StatusPending},
		{Status: state.StatusEmbedded},
		{Status: state.StatusIndexed},
		{Status: state.StatusIndexed},
	}

	tests := []struct {
		name       string
		setupMocks func(*MockProcessedStore, *MockLedger, *MockCounter, *MockCounter)
		wantStatus int
		wantCode   string
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name: "Success",
			setupMocks: func(p *MockProcessedStore, l *MockLedger, idx *MockCounter, j *MockCounter) {
				p.On("Load", mock.Anything).Return(processed("a", "b"), nil)
				l.On("Records", mock.Anything).Return(records, nil)
				idx.On("Count", mock.Anything).Return(2, nil)
				j.On("Count", mock.Anything).Return(1, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.EqualValues(t, 2, data["processed_files"])
				assert.EqualValues(t, 2, data["index_records"])
				assert.EqualValues(t, 1, data["failed_jobs"])

				chunks := data["chunks"].(map[string]interface{})
				assert.EqualValues(t, 1, chunks["pending"])
				assert.EqualValues(t, 1, chunks["embedded"])
				assert.EqualValues(t, 2, chunks["indexed"])
				assert.EqualValues(t, 4, chunks["total"])
			},
		},
		{
			name: "Processed Store Error",
			setupMocks: func(p *MockProcessedStore, l *MockLedger, idx *MockCounter, j *MockCounter) {
				p.On("Load", mock.Anything).Return(nil, errors.New("disk error"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
		{
			name: "Ledger Error",
			setupMocks: func(p *MockProcessedStore, l *MockLedger, idx *MockCounter, j *MockCounter) {
				p.On("Load", mock.Anything).Return(processed(), nil)
				l.On("Records", mock.Anything).Return(nil, state.ErrCorruptLedger)
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
		{
			name: "Index Error",
			setupMocks: func(p *MockProcessedStore, l *MockLedger, idx *MockCounter, j *MockCounter) {
				p.On("Load", mock.Anything).Return(processed(), nil)
				l.On("Records", mock.Anything).Return(records, nil)
				idx.On("Count", mock.Anything).Return(0, errors.New("weaviate error"))
			},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "UNAVAILABLE",
		},
		{
			name: "JobRepo Error",
			setupMocks: func(p *MockProcessedStore, l *MockLedger, idx *MockCounter, j *MockCounter) {
				p.On("Load", mock.Anything).Return(processed(), nil)
				l.On("Records", mock.Anything).Return(records, nil)
				idx.On("Count", mock.Anything).Return(2, nil)
				j.On("Count", mock.Anything).Return(0, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mProcessed := new(MockProcessedStore)
			mLedger := new(MockLedger)
			mIndex := new(MockCounter)
			mJob := new(MockCounter)

			tt.setupMocks(mProcessed, mLedger, mIndex, mJob)

			h := NewHandler(mProcessed, mLedger, mIndex, mJob)
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()

			h.GetStats(w, req)

			resp := w.Result()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]interface{}
			err := json.NewDecoder(resp.Body).Decode(&body)
			assert.NoError(t, err)

			if tt.wantCode != "" {
				assert.Equal(t, "error", body["status"])
				errMap := body["error"].(map[string]interface{})
				assert.Equal(t, tt.wantCode, errMap["code"])
			} else {
				tt.checkBody(t, body)
			}
		})
	}
}

func TestHandler_GetStats_WithoutJobRepo(t *testing.T) {
	mProcessed := new(MockProcessedStore)
	mLedger := new(MockLedger)
	mIndex := new(MockCounter)

	mProcessed.On("Load", mock.Anything).Return(processed("a"), nil)
	mLedger.On("Records", mock.Anything).Return([]state.Record{}, nil)
	mIndex.On("Count", mock.Anything).Return(0, nil)

	h := NewHandler(mProcessed, mLedger, mIndex, nil)
	w := httptest.NewRecorder()
	h.GetStats(w, httptest.NewRequest("GET", "/stats", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"failed_jobs":0`)
}
