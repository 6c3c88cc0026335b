package vector_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"prepbot/internal/document"
	"prepbot/internal/state"
	"prepbot/internal/vector"
)

type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) Add(ctx context.Context, ids []string, vectors [][]float32, documents []string, metadatas []document.Metadata) error {
	return m.Called(ctx, ids, vectors, documents, metadatas).Error(0)
}

func (m *MockIndex) Query(ctx context.Context, v []float32, k int) ([]document.RetrievedChunk, error) {
	args := m.Called(ctx, v, k)
	out, _ := args.Get(0).([]document.RetrievedChunk)
	return out, args.Error(1)
}

func (m *MockIndex) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func embeddedLedger(t *testing.T, n int) *state.FileLedger {
	t.Helper()
	ctx := context.Background()
	l := state.NewFileLedger(filepath.Join(t.TempDir(), "chunks.jsonl"), nil)

	chunks := make([]document.Chunk, n)
	for i := range chunks {
		chunks[i] = document.Chunk{Content: "doc", Type: document.TypeText, Metadata: document.Metadata{Source: "a.pdf"}}
	}
	stored, err := l.Append(ctx, chunks)
	require.NoError(t, err)

	items := make([]document.EmbeddedItem, n)
	for i, c := range stored {
		items[i] = document.NewEmbeddedItem(c, []float32{float32(i), 1})
	}
	require.NoError(t, l.MarkEmbedded(ctx, "m", items))
	return l
}

func TestCheckAligned(t *testing.T) {
	assert.NoError(t, vector.CheckAligned([]string{"a"}, [][]float32{{1}}, []string{"d"}, []document.Metadata{{}}))
	err := vector.CheckAligned([]string{"a", "b"}, [][]float32{{1}}, []string{"d"}, []document.Metadata{{}})
	assert.ErrorIs(t, err, vector.ErrMisaligned)
}

func TestManager_IngestFiltersSaved(t *testing.T) {
	ledger := embeddedLedger(t, 2)
	idx := new(MockIndex)
	idx.On("Add", mock.Anything, []string{"chunk_1"}, [][]float32{{1, 1}}, []string{"doc"}, mock.Anything).Return(nil).Once()

	m := vector.NewManager(idx, ledger, nil)
	items := []document.EmbeddedItem{
		{ID: "chunk_0", Embedding: []float32{0, 1}, Document: "doc", Metadata: document.Metadata{SavedToDB: true}},
		{ID: "chunk_1", Embedding: []float32{1, 1}, Document: "doc", Metadata: document.Metadata{}},
	}

	n, err := m.Ingest(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	idx.AssertExpectations(t)

	records, err := ledger.Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusEmbedded, records[0].Status)
	assert.Equal(t, state.StatusIndexed, records[1].Status)
}

func TestManager_IngestPendingTwiceIndexesOnce(t *testing.T) {
	ledger := embeddedLedger(t, 3)
	idx := new(MockIndex)
	idx.On("Add", mock.Anything, []string{"chunk_0", "chunk_1", "chunk_2"}, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	m := vector.NewManager(idx, ledger, nil)
	indexed := 0
	m.OnIndexed(func(n int) { indexed += n })

	n, err := m.IngestPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = m.IngestPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, indexed)
	idx.AssertNumberOfCalls(t, "Add", 1)
}

func TestManager_AddFailureLeavesItemsPending(t *testing.T) {
	ledger := embeddedLedger(t, 1)
	idx := new(MockIndex)
	idx.On("Add", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("index down"))

	_, err := vector.NewManager(idx, ledger, nil).IngestPending(context.Background())
	assert.ErrorContains(t, err, "index down")

	records, err := ledger.Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusEmbedded, records[0].Status)
}

func TestManager_QueryDelegates(t *testing.T) {
	idx := new(MockIndex)
	want := []document.RetrievedChunk{{ID: "chunk_0", Distance: 0.1}}
	idx.On("Query", mock.Anything, []float32{1, 0}, 5).Return(want, nil)
	idx.On("Count", mock.Anything).Return(7, nil)

	m := vector.NewManager(idx, nil, nil)
	got, err := m.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	count, err := m.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestManager_IngestExternal(t *testing.T) {
	ctx := context.Background()

	t.Run("KnownItems", func(t *testing.T) {
		ledger := embeddedLedger(t, 1)
		idx := new(MockIndex)
		idx.On("Add", mock.Anything, []string{"chunk_0"}, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

		n, err := vector.NewManager(idx, ledger, nil).IngestExternal(ctx, []document.EmbeddedItem{
			{ID: "chunk_0", Embedding: []float32{0, 1}, Document: "doc"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		idx.AssertExpectations(t)
	})

	t.Run("UnknownItemAddsNothing", func(t *testing.T) {
		ledger := embeddedLedger(t, 1)
		idx := new(MockIndex)

		_, err := vector.NewManager(idx, ledger, nil).IngestExternal(ctx, []document.EmbeddedItem{
			{ID: "chunk_0", Embedding: []float32{0, 1}, Document: "doc"},
			{ID: "chunk_7", Embedding: []float32{7, 1}, Document: "doc"},
		})
		assert.ErrorIs(t, err, state.ErrUnknownChunk)
		idx.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
