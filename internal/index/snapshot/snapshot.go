package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"uniconnect/internal/models"
)

// Store is the default index backend: exact brute-force cosine search over
// in-memory records, persisted as a JSON snapshot on disk. At the corpus
// sizes this system serves (hundreds to low thousands of chunks) exact
// search is both correct and fast enough.
type Store struct {
	mu        sync.RWMutex
	path      string
	modelID   string
	dimension int
	createdAt time.Time
	records   []models.EmbeddingRecord // insertion order; vectors L2-normalized
	byID      map[string]int
}

// snapshotFile is the on-disk layout.
type snapshotFile struct {
	ModelID   string                   `json:"embedding_model_id"`
	Dimension int                      `json:"dimension"`
	CreatedAt time.Time                `json:"created_at"`
	Records   []models.EmbeddingRecord `json:"records"`
}

func New(path, modelID string, dimension int) *Store {
	return &Store{
		path:      path,
		modelID:   modelID,
		dimension: dimension,
		createdAt: time.Now().UTC(),
		byID:      map[string]int{},
	}
}

// Add stores the given records, skipping any whose chunk id is already
// present. Vectors must match the dimension fixed at construction.
func (s *Store) Add(ctx context.Context, records []models.EmbeddingRecord) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added, skipped := 0, 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return added, skipped, err
		}
		if _, ok := s.byID[rec.ChunkID]; ok {
			skipped++
			continue
		}
		if len(rec.Vector) != s.dimension {
			return added, skipped, fmt.Errorf("%w: record %s has %d, index has %d",
				models.ErrDimensionMismatch, rec.ChunkID, len(rec.Vector), s.dimension)
		}
		rec.Vector = normalize(rec.Vector)
		s.byID[rec.ChunkID] = len(s.records)
		s.records = append(s.records, rec)
		added++
	}
	return added, skipped, nil
}

func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Search returns the k most similar chunks in descending score order.
// Equal scores are ordered by insertion, so results are deterministic.
func (s *Store) Search(ctx context.Context, queryVector []float32, k int) ([]models.ScoredChunk, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d",
			models.ErrDimensionMismatch, len(queryVector), s.dimension)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	q := normalize(queryVector)
	type scored struct {
		seq   int
		score float32
	}
	scores := make([]scored, len(s.records))
	for i := range s.records {
		scores[i] = scored{seq: i, score: dot(s.records[i].Vector, q)}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].seq < scores[j].seq
	})

	if k > len(scores) {
		k = len(scores)
	}
	results := make([]models.ScoredChunk, 0, k)
	for i := 0; i < k; i++ {
		rec := s.records[scores[i].seq]
		results = append(results, models.ScoredChunk{Chunk: rec.Chunk, Score: scores[i].score})
	}
	return results, nil
}

// Persist writes the full snapshot to disk. The write goes through a temp
// file and a rename, so a crash mid-write never corrupts the previous
// snapshot.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.RLock()
	snap := snapshotFile{
		ModelID:   s.modelID,
		Dimension: s.dimension,
		CreatedAt: s.createdAt,
		Records:   append([]models.EmbeddingRecord(nil), s.records...),
	}
	s.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load replaces the in-memory index with the persisted snapshot. A missing
// snapshot file leaves the index empty; a snapshot built under a different
// embedding model or dimension is rejected outright.
func (s *Store) Load(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.ModelID != s.modelID || snap.Dimension != s.dimension {
		return fmt.Errorf("%w: snapshot is (%s, %d), configured is (%s, %d)",
			models.ErrIndexVersionMismatch, snap.ModelID, snap.Dimension, s.modelID, s.dimension)
	}

	byID := make(map[string]int, len(snap.Records))
	for i, rec := range snap.Records {
		byID[rec.ChunkID] = i
	}

	s.mu.Lock()
	s.records = snap.Records
	s.byID = byID
	s.createdAt = snap.CreatedAt
	s.mu.Unlock()
	return nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
