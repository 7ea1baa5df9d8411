package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"uniconnect/internal/models"
)

const compress = false

// Store is an index backend on top of a persistent chromem-go collection.
// chromem owns vector storage and cosine search; a JSON manifest next to
// the database carries the chunk payloads, their insertion order, and the
// (model id, dimension) pair used to reject incompatible snapshots.
type Store struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	dbPath     string
	name       string
	modelID    string
	dimension  int
	createdAt  time.Time
	order      []string // chunk ids in insertion order
	byID       map[string]models.Chunk
}

type manifest struct {
	ModelID   string         `json:"embedding_model_id"`
	Dimension int            `json:"dimension"`
	CreatedAt time.Time      `json:"created_at"`
	Order     []string       `json:"order"`
	Chunks    []models.Chunk `json:"chunks"`
}

func New(dbPath, collectionName, modelID string, dimension int) (*Store, error) {
	db, err := chromem.NewPersistentDB(dbPath, compress)
	if err != nil {
		return nil, fmt.Errorf("create chromem database: %w", err)
	}
	c, err := db.GetOrCreateCollection(collectionName, map[string]string{
		"embedding_model_id": modelID,
		"dimension":          strconv.Itoa(dimension),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("create/get collection: %w", err)
	}
	return &Store{
		db:         db,
		collection: c,
		dbPath:     dbPath,
		name:       collectionName,
		modelID:    modelID,
		dimension:  dimension,
		createdAt:  time.Now().UTC(),
		byID:       map[string]models.Chunk{},
	}, nil
}

func (s *Store) Add(ctx context.Context, records []models.EmbeddingRecord) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []chromem.Document
	var fresh []models.Chunk
	skipped := 0
	for _, rec := range records {
		if _, ok := s.byID[rec.ChunkID]; ok {
			skipped++
			continue
		}
		if len(rec.Vector) != s.dimension {
			return 0, skipped, fmt.Errorf("%w: record %s has %d, index has %d",
				models.ErrDimensionMismatch, rec.ChunkID, len(rec.Vector), s.dimension)
		}
		docs = append(docs, chromem.Document{
			ID:      rec.ChunkID,
			Content: rec.Chunk.Text,
			Metadata: map[string]string{
				"source": rec.Chunk.SourceDocument,
				"page":   strconv.Itoa(rec.Chunk.PageNumber),
			},
			Embedding: rec.Vector,
		})
		fresh = append(fresh, rec.Chunk)
	}
	if len(docs) == 0 {
		return 0, skipped, nil
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, skipped, fmt.Errorf("add documents: %w", err)
	}
	for _, ch := range fresh {
		s.order = append(s.order, ch.ID)
		s.byID[ch.ID] = ch
	}
	return len(docs), skipped, nil
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
	return len(s.order)
}

func (s *Store) Search(ctx context.Context, queryVector []float32, k int) ([]models.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return nil, nil
	}
	if k > len(s.order) {
		k = len(s.order)
	}

	res, err := s.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryVector,
		NResults:       k,
	})
	if err != nil {
		return nil, fmt.Errorf("query by similarity: %w", err)
	}

	results := make([]models.ScoredChunk, 0, len(res))
	for _, r := range res {
		chunk, ok := s.byID[r.ID]
		if !ok {
			log.Warn().Str("chunk_id", r.ID).Msg("search hit missing from manifest")
			continue
		}
		results = append(results, models.ScoredChunk{Chunk: chunk, Score: r.Similarity})
	}
	return results, nil
}

// Persist writes the manifest; chromem itself already persisted the
// documents when they were added.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.RLock()
	m := manifest{
		ModelID:   s.modelID,
		Dimension: s.dimension,
		CreatedAt: s.createdAt,
		Order:     append([]string(nil), s.order...),
		Chunks:    make([]models.Chunk, 0, len(s.order)),
	}
	for _, id := range s.order {
		m.Chunks = append(m.Chunks, s.byID[id])
	}
	s.mu.RUnlock()

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := s.manifestPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) Load(ctx context.Context) error {
	data, err := os.ReadFile(s.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	if m.ModelID != s.modelID || m.Dimension != s.dimension {
		return fmt.Errorf("%w: manifest is (%s, %d), configured is (%s, %d)",
			models.ErrIndexVersionMismatch, m.ModelID, m.Dimension, s.modelID, s.dimension)
	}

	byID := make(map[string]models.Chunk, len(m.Chunks))
	for _, ch := range m.Chunks {
		byID[ch.ID] = ch
	}

	s.mu.Lock()
	s.order = m.Order
	s.byID = byID
	s.createdAt = m.CreatedAt
	s.mu.Unlock()

	if got := s.collection.Count(); got != len(m.Order) {
		log.Warn().Int("collection", got).Int("manifest", len(m.Order)).
			Msg("chromem collection and manifest disagree on document count")
	}
	return nil
}

func (s *Store) manifestPath() string {
	return filepath.Join(s.dbPath, s.name+".manifest.json")
}
