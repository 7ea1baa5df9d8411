package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"uniconnect/internal/config"
	"uniconnect/internal/models"
)

// Embedder is the embedding capability: text in, fixed-dimension vector out.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder creates a langchaingo embedder for the configured provider.
func NewEmbedder(llmCfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	switch llmCfg.Provider {
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(llmCfg.BaseURL),
			ollama.WithModel(llmCfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("init ollama embedder: %w", err)
		}
		return embeddings.NewEmbedder(llm)
	case "openai":
		llm, err := openai.New(
			openai.WithBaseURL(llmCfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmCfg.Key, "Bearer ")),
			openai.WithModel(llmCfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("init openai embedder: %w", err)
		}
		return embeddings.NewEmbedder(llm)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", llmCfg.Provider)
	}
}

// Client wraps the raw embedder with the engine's provider policy: a
// timeout per attempt, bounded exponential backoff, and a guard that the
// provider returns vectors of the configured dimension.
type Client struct {
	embedder  Embedder
	dimension int
	retryCfg  config.RetryConfig
}

func NewClient(embedder Embedder, dimension int, retryCfg config.RetryConfig) *Client {
	return &Client{embedder: embedder, dimension: dimension, retryCfg: retryCfg}
}

// Embed returns the vector for the given text. Transient provider failures
// are retried; after the attempt cap the error is ErrEmbeddingUnavailable.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := retry.DoWithData(func() ([]float32, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.retryCfg.Timeout())
		defer cancel()

		vec, err := c.embedder.EmbedQuery(attemptCtx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) != c.dimension {
			return nil, retry.Unrecoverable(fmt.Errorf("%w: provider returned %d, configured %d",
				models.ErrDimensionMismatch, len(vec), c.dimension))
		}
		return vec, nil
	},
		retry.Context(ctx),
		retry.Attempts(c.retryCfg.Attempts),
		retry.Delay(c.retryCfg.Delay()),
		retry.MaxDelay(c.retryCfg.MaxDelay()),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, models.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	return vec, nil
}

// EmbedChunks embeds every chunk, pairing each with its vector.
func (c *Client) EmbedChunks(ctx context.Context, chunks []models.Chunk) ([]models.EmbeddingRecord, error) {
	if len(chunks) == 0 {
		log.Info().Msg("no chunks to embed")
		return nil, nil
	}

	records := make([]models.EmbeddingRecord, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := c.Embed(ctx, chunk.Text)
		if err != nil {
			return nil, err
		}
		records = append(records, models.EmbeddingRecord{
			ChunkID: chunk.ID,
			Vector:  vec,
			Chunk:   chunk,
		})
	}
	return records, nil
}
