package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniconnect/internal/models"
)

func rec(id string, vec []float32, page int) models.EmbeddingRecord {
	return models.EmbeddingRecord{
		ChunkID: id,
		Vector:  vec,
		Chunk: models.Chunk{
			ID:             id,
			SourceDocument: "doc.pdf",
			PageNumber:     page,
			Text:           "text for " + id,
		},
	}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "index.json"), "test-model", 3)
}

func TestAddIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	records := []models.EmbeddingRecord{
		rec("c1", []float32{1, 0, 0}, 1),
		rec("c2", []float32{0, 1, 0}, 1),
		rec("c3", []float32{0, 0, 1}, 2),
	}

	added, skipped, err := s.Add(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 3, s.Count())

	added, skipped, err = s.Add(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 3, skipped)
	assert.Equal(t, 3, s.Count())
	assert.True(t, s.Has("c2"))
	assert.False(t, s.Has("missing"))
}

func TestAddDimensionMismatch(t *testing.T) {
	s := newStore(t)

	_, _, err := s.Add(context.Background(), []models.EmbeddingRecord{rec("bad", []float32{1, 0}, 1)})
	require.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestSearchDescendingOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, _, err := s.Add(ctx, []models.EmbeddingRecord{
		rec("ortho", []float32{0, 1, 0}, 1),
		rec("exact", []float32{2, 0, 0}, 1), // normalization makes magnitude irrelevant
		rec("close", []float32{0.9, 0.1, 0}, 2),
	})
	require.NoError(t, err)

	got, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].Chunk.ID)
	assert.Equal(t, "close", got[1].Chunk.ID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestSearchTieBreaksByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, _, err := s.Add(ctx, []models.EmbeddingRecord{
		rec("first", []float32{1, 0, 0}, 1),
		rec("second", []float32{1, 0, 0}, 2),
	})
	require.NoError(t, err)

	got, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Chunk.ID)
	assert.Equal(t, "second", got[1].Chunk.ID)
}

func TestSearchClampsK(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, _, err := s.Add(ctx, []models.EmbeddingRecord{rec("only", []float32{1, 0, 0}, 1)})
	require.NoError(t, err)

	got, err := s.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	s := newStore(t)

	_, err := s.Search(context.Background(), []float32{1, 0}, 1)
	require.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestPersistLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.json")

	s := New(path, "test-model", 3)
	_, _, err := s.Add(ctx, []models.EmbeddingRecord{
		rec("c1", []float32{1, 0, 0}, 1),
		rec("c2", []float32{0.8, 0.2, 0}, 2),
		rec("c3", []float32{0, 0, 1}, 3),
	})
	require.NoError(t, err)
	before, err := s.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.NoError(t, s.Persist(ctx))

	reloaded := New(path, "test-model", 3)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 3, reloaded.Count())
	assert.True(t, reloaded.Has("c2"))

	after, err := reloaded.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Adding the same chunks again still dedupes after a reload.
	added, skipped, err := reloaded.Add(ctx, []models.EmbeddingRecord{rec("c1", []float32{1, 0, 0}, 1)})
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 1, skipped)
}

func TestLoadRejectsMismatchedSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.json")

	s := New(path, "model-a", 3)
	_, _, err := s.Add(ctx, []models.EmbeddingRecord{rec("c1", []float32{1, 0, 0}, 1)})
	require.NoError(t, err)
	require.NoError(t, s.Persist(ctx))

	otherModel := New(path, "model-b", 3)
	require.ErrorIs(t, otherModel.Load(ctx), models.ErrIndexVersionMismatch)

	otherDim := New(path, "model-a", 5)
	require.ErrorIs(t, otherDim.Load(ctx), models.ErrIndexVersionMismatch)
}

func TestLoadMissingFileIsEmptyIndex(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 0, s.Count())
}
