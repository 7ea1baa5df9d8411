package retriever

import (
	"context"

	"github.com/rs/zerolog/log"

	"uniconnect/internal/models"
)

// Embedder embeds query text, the same capability ingestion uses.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the read side of the embedding index.
type Searcher interface {
	Search(ctx context.Context, queryVector []float32, k int) ([]models.ScoredChunk, error)
}

// Retriever turns a (possibly rewritten) query into the top-k most relevant
// chunks, dropping anything under the similarity floor. An empty result is
// a valid outcome meaning the corpus has nothing relevant, not an error.
type Retriever struct {
	embedder Embedder
	store    Searcher
	minScore float32
}

func New(embedder Embedder, store Searcher, minScore float32) *Retriever {
	return &Retriever{embedder: embedder, store: store, minScore: minScore}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := r.store.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	results := make([]models.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < r.minScore {
			continue
		}
		results = append(results, hit)
	}

	log.Debug().
		Str("query", query).
		Int("hits", len(hits)).
		Int("above_threshold", len(results)).
		Msg("retrieved chunks")
	return results, nil
}
