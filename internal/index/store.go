package index

import (
	"context"
	"fmt"

	"uniconnect/internal/config"
	"uniconnect/internal/index/chromem"
	"uniconnect/internal/index/pg"
	"uniconnect/internal/index/snapshot"
	"uniconnect/internal/models"
)

// Store is the embedding index: chunk vectors plus payload, persisted per
// deployment and keyed by (embedding model id, dimension).
//
// Add publishes records only once fully constructed, so Search may run
// concurrently with Add. Add skips records whose chunk id is already
// present, which makes re-ingestion idempotent. Search returns the true
// top-k under cosine similarity, ties broken by earliest-inserted chunk.
// Load fails fast when the persisted model id or dimension does not match
// the configured embedding model.
type Store interface {
	Add(ctx context.Context, records []models.EmbeddingRecord) (added, skipped int, err error)
	Has(id string) bool
	Search(ctx context.Context, queryVector []float32, k int) ([]models.ScoredChunk, error)
	Persist(ctx context.Context) error
	Load(ctx context.Context) error
	Count() int
}

// New builds the configured index backend.
func New(cfg *config.Config) (Store, error) {
	switch cfg.Index.Backend {
	case "snapshot":
		return snapshot.New(cfg.Index.Path, cfg.EmbedLLM.Model, cfg.Index.Dimension), nil
	case "chromem":
		return chromem.New(cfg.Index.Path, cfg.Index.Collection, cfg.EmbedLLM.Model, cfg.Index.Dimension)
	case "pg":
		return pg.New(&cfg.Database, cfg.EmbedLLM.Model, cfg.Index.Dimension)
	default:
		return nil, fmt.Errorf("unknown index backend: %s", cfg.Index.Backend)
	}
}
