package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 4, cfg.RAG.TopK)
	assert.Equal(t, float32(0.25), cfg.RAG.MinScore)
	assert.Equal(t, 6, cfg.RAG.MemoryWindow)
	assert.Equal(t, 3000, cfg.RAG.ContextBudgetTokens)
	assert.Equal(t, "snapshot", cfg.Index.Backend)
	assert.Equal(t, 768, cfg.Index.Dimension)
	assert.Equal(t, "ollama", cfg.EmbedLLM.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.EmbedLLM.Model)
	assert.Equal(t, uint(3), cfg.Retry.Attempts)
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
rag:
  chunk_size: 500
  chunk_overlap: 50
  top_k: 2
index:
  backend: chromem
  path: /var/lib/uniconnect/index
  dimension: 384
allowed_uploaders:
  - admin
  - registrar
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 2, cfg.RAG.TopK)
	assert.Equal(t, "chromem", cfg.Index.Backend)
	assert.Equal(t, 384, cfg.Index.Dimension)
	assert.Equal(t, []string{"admin", "registrar"}, cfg.AllowedUploaders)
	// Untouched knobs still get defaults.
	assert.Equal(t, 6, cfg.RAG.MemoryWindow)
	assert.Equal(t, "openai", cfg.CompleteLLM.Provider)
}

func TestLoadConfigEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index:\n  backend: snapshot\n"), 0o644))
	t.Setenv("UNICONNECT_INDEX_BACKEND", "pg")
	t.Setenv("UNICONNECT_EMBED_MODEL", "all-minilm")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "pg", cfg.Index.Backend)
	assert.Equal(t, "all-minilm", cfg.EmbedLLM.Model)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rag: [not: a: map"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestOverlapClampedBelowChunkSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rag:\n  chunk_size: 100\n  chunk_overlap: 150\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
}

func TestRetryDurations(t *testing.T) {
	rc := RetryConfig{DelayMs: 250, MaxDelayMs: 4000, TimeoutSecs: 15}

	assert.Equal(t, 250*time.Millisecond, rc.Delay())
	assert.Equal(t, 4*time.Second, rc.MaxDelay())
	assert.Equal(t, 15*time.Second, rc.Timeout())
}
