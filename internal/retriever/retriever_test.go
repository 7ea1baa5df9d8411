package retriever

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniconnect/internal/index/snapshot"
	"uniconnect/internal/models"
)

// mapEmbedder returns a fixed vector per known text.
type mapEmbedder struct {
	vectors map[string][]float32
}

func (m mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec, ok := m.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return vec, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, models.ErrEmbeddingUnavailable
}

func seededStore(t *testing.T) *snapshot.Store {
	t.Helper()
	s := snapshot.New(filepath.Join(t.TempDir(), "index.json"), "test-model", 3)
	_, _, err := s.Add(context.Background(), []models.EmbeddingRecord{
		{ChunkID: "visa", Vector: []float32{1, 0, 0}, Chunk: models.Chunk{ID: "visa", Text: "visa rules"}},
		{ChunkID: "housing", Vector: []float32{0, 1, 0}, Chunk: models.Chunk{ID: "housing", Text: "housing options"}},
		{ChunkID: "permits", Vector: []float32{0.9, 0.1, 0}, Chunk: models.Chunk{ID: "permits", Text: "work permits"}},
	})
	require.NoError(t, err)
	return s
}

func TestRetrieveTopK(t *testing.T) {
	store := seededStore(t)
	emb := mapEmbedder{vectors: map[string][]float32{"how do visas work": {1, 0, 0}}}
	r := New(emb, store, 0.25)

	got, err := r.Retrieve(context.Background(), "how do visas work", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "visa", got[0].Chunk.ID)
	assert.Equal(t, "permits", got[1].Chunk.ID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRetrieveFiltersBelowThreshold(t *testing.T) {
	store := seededStore(t)
	emb := mapEmbedder{vectors: map[string][]float32{"campus parking": {0, 0, 1}}}
	r := New(emb, store, 0.5)

	// The query is orthogonal to every chunk: nothing clears the floor.
	got, err := r.Retrieve(context.Background(), "campus parking", 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveEmptyIndex(t *testing.T) {
	store := snapshot.New(filepath.Join(t.TempDir(), "index.json"), "test-model", 3)
	emb := mapEmbedder{vectors: map[string][]float32{"anything": {1, 0, 0}}}
	r := New(emb, store, 0.25)

	got, err := r.Retrieve(context.Background(), "anything", 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveEmbedderError(t *testing.T) {
	r := New(failingEmbedder{}, seededStore(t), 0.25)

	_, err := r.Retrieve(context.Background(), "anything", 4)
	require.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}
