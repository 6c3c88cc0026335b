package retrieval

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryLogger_ThreadSafety(t *testing.T) {
	var buf bytes.Buffer
	logger := NewQueryLogger(&buf)

	concurrency := 50
	iterations := 100
	var wg sync.WaitGroup

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				logger.Log(QueryLogEntry{
					Query:    "test",
					Duration: time.Millisecond,
				})
			}
		}()
	}
	wg.Wait()

	decoder := json.NewDecoder(&buf)
	count := 0
	for decoder.More() {
		var entry QueryLogEntry
		err := decoder.Decode(&entry)
		if err != nil {
			t.Fatalf("Failed to decode entry %d: %v", count, err)
		}
		count++
	}

	expected := concurrency * iterations
	if count != expected {
		t.Errorf("Expected %d entries, got %d", expected, count)
	}
}

func TestFileQueryLogger_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "queries.jsonl")

	l, err := NewFileQueryLogger(path)
	require.NoError(t, err)
	l.Log(QueryLogEntry{Query: "first", K: 3, Duration: 2 * time.Millisecond})
	require.NoError(t, l.Close())

	l, err = NewFileQueryLogger(path)
	require.NoError(t, err)
	l.Log(QueryLogEntry{Query: "second"})
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	dec := json.NewDecoder(bytes.NewReader(data))
	var first, second QueryLogEntry
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "first", first.Query)
	assert.Equal(t, 3, first.K)
	assert.Equal(t, int64(2), first.LatencyMs)
	assert.Equal(t, "second", second.Query)
}
