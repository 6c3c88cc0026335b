package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepbot/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("CORPUS_DIR", "/data/corpus")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "/data/corpus", cfg.CorpusDir)
	assert.Equal(t, config.BackendFile, cfg.StateBackend)
	assert.Equal(t, config.VectorLocal, cfg.VectorBackend)
	assert.Equal(t, "interview-prep", cfg.CollectionName)
	assert.Equal(t, 10, cfg.SearchTopK)
	assert.Equal(t, 8000, cfg.ServerPort)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	content := []byte("CORPUS_DIR=loaded-from-file")
	err := os.WriteFile(".env", content, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(".env")
	// godotenv writes into the process environment
	t.Cleanup(func() { os.Unsetenv("CORPUS_DIR") })

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.CorpusDir)
}

func TestLoadConfig_ModelDefaults(t *testing.T) {
	tests := []struct {
		provider  string
		env       map[string]string
		embedding string
		chat      string
	}{
		{provider: "ollama", embedding: "all-minilm", chat: "gemma3:latest"},
		{provider: "gemini", env: map[string]string{"GEMINI_API_KEY": "k"}, embedding: "gemini-embedding-001", chat: "gemini-2.0-flash"},
		{provider: "openai", env: map[string]string{"OPENAI_API_KEY": "k"}, embedding: "text-embedding-3-small", chat: "gpt-4o-mini"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			t.Setenv("EMBEDDING_PROVIDER", tt.provider)
			t.Setenv("CHAT_PROVIDER", tt.provider)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := config.Load()
			require.NoError(t, err)
			assert.Equal(t, tt.embedding, cfg.EmbeddingModel)
			assert.Equal(t, tt.chat, cfg.ChatModel)
		})
	}
}

func TestLoadConfig_ExplicitModelWins(t *testing.T) {
	t.Setenv("EMBEDDING_MODEL", "nomic-embed-text")
	t.Setenv("CHAT_MODEL", "llama3")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
	assert.Equal(t, "llama3", cfg.ChatModel)
}

func TestLoadConfig_Toggles(t *testing.T) {
	t.Setenv("ENABLE_API", "false")
	t.Setenv("ENABLE_PIPELINE_WORKER", "true")
	t.Setenv("SEARCH_TOP_K", "3")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.False(t, cfg.EnableAPI)
	assert.True(t, cfg.EnablePipelineWorker)
	assert.Equal(t, 3, cfg.SearchTopK)
}

func TestConfig_StatePaths(t *testing.T) {
	cfg := config.Config{StateDir: "state"}

	assert.Equal(t, filepath.Join("state", "chunks.jsonl"), cfg.LedgerPath())
	assert.Equal(t, filepath.Join("state", "processed_files.json"), cfg.ProcessedFilesPath())
	assert.Equal(t, filepath.Join("state", "scan_output.jsonl"), cfg.ScanOutputPath())
	assert.Equal(t, filepath.Join("state", "embedded_chunks.json"), cfg.EmbeddedOutputPath())
}
