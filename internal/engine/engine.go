package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"uniconnect/internal/chunker"
	"uniconnect/internal/config"
	"uniconnect/internal/index"
	"uniconnect/internal/memory"
	"uniconnect/internal/models"
	"uniconnect/internal/parser"
	"uniconnect/internal/retriever"
	"uniconnect/internal/synthesizer"
)

// Embedder is the embedding capability as the engine consumes it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedChunks(ctx context.Context, chunks []models.Chunk) ([]models.EmbeddingRecord, error)
}

// Completer is the completion capability as the engine consumes it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Engine wires chunking, the embedding index, retrieval, conversation
// memory and answer synthesis behind two operations: Ingest and Ask.
// Sessions are explicit; each owns its own conversation memory and
// processes one call at a time, while independent sessions may ask
// concurrently against the shared index.
type Engine struct {
	cfg       *config.Config
	chunker   *chunker.Chunker
	embedder  Embedder
	completer Completer
	store     index.Store
	retriever *retriever.Retriever
	synth     *synthesizer.Synthesizer

	mu       sync.Mutex
	sessions map[string]*session

	ingestMu sync.Mutex
}

type session struct {
	mu     sync.Mutex
	memory *memory.Memory
}

// New builds the engine and loads the persisted index. Load fails fast
// when the snapshot on disk was built under a different embedding model,
// so an incompatible index never serves a single ask.
func New(ctx context.Context, cfg *config.Config, store index.Store, embedder Embedder, completer Completer) (*Engine, error) {
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	synth, err := synthesizer.New(completer, cfg.RAG.ContextBudgetTokens)
	if err != nil {
		return nil, err
	}
	log.Info().Int("chunks", store.Count()).Msg("index loaded")
	return &Engine{
		cfg:       cfg,
		chunker:   chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		embedder:  embedder,
		completer: completer,
		store:     store,
		retriever: retriever.New(embedder, store, cfg.RAG.MinScore),
		synth:     synth,
		sessions:  map[string]*session{},
	}, nil
}

// Ingest parses, chunks, embeds and indexes the file at path, then
// persists the index. An unreadable path is an I/O error the caller sees;
// a readable document that cannot be parsed, or yields no text, is
// reported as zero chunks added, not as an error.
func (e *Engine) Ingest(ctx context.Context, path string) (models.IndexStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.IndexStats{}, fmt.Errorf("read document: %w", err)
	}
	return e.IngestBytes(ctx, data, filepath.Base(path))
}

// IngestBytes is Ingest for an already-uploaded document body.
func (e *Engine) IngestBytes(ctx context.Context, data []byte, filename string) (models.IndexStats, error) {
	doc, err := parser.ParseBytes(data, filename)
	if err != nil {
		log.Warn().Err(err).Str("filename", filename).Msg("document could not be parsed")
		return models.IndexStats{}, nil
	}
	return e.ingestDocument(ctx, doc)
}

// IngestDir ingests every supported file under dir.
func (e *Engine) IngestDir(ctx context.Context, dir string) (models.IndexStats, error) {
	var total models.IndexStats
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !parser.IsSupported(path) {
			return nil
		}
		stats, err := e.Ingest(ctx, path)
		if err != nil {
			return err
		}
		total.ChunksAdded += stats.ChunksAdded
		total.ChunksSkipped += stats.ChunksSkipped
		return nil
	})
	return total, err
}

func (e *Engine) ingestDocument(ctx context.Context, doc *models.Document) (models.IndexStats, error) {
	chunks := e.chunker.Chunk(doc)
	if len(chunks) == 0 {
		log.Info().Str("document", doc.Name).Msg("document yielded no chunks")
		return models.IndexStats{}, nil
	}

	// One ingest at a time; searches keep running against the store.
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	var fresh []models.Chunk
	skipped := 0
	for _, chunk := range chunks {
		if e.store.Has(chunk.ID) {
			skipped++
			continue
		}
		fresh = append(fresh, chunk)
	}

	records, err := e.embedder.EmbedChunks(ctx, fresh)
	if err != nil {
		return models.IndexStats{}, err
	}

	added, dupes, err := e.store.Add(ctx, records)
	if err != nil {
		return models.IndexStats{}, err
	}
	stats := models.IndexStats{ChunksAdded: added, ChunksSkipped: skipped + dupes}

	// The snapshot is written only once the whole document is in, so a
	// crash mid-ingest loses at most this document.
	if added > 0 {
		if err := e.store.Persist(ctx); err != nil {
			return stats, fmt.Errorf("persist index: %w", err)
		}
	}

	log.Info().
		Str("document", doc.Name).
		Int("added", stats.ChunksAdded).
		Int("skipped", stats.ChunksSkipped).
		Msg("document ingested")
	return stats, nil
}

// Ask answers a question within the given conversation session. A
// cancelled ask never appends a turn to the session's memory.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (*models.Answer, error) {
	sess := e.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	rewritten := sess.memory.Rewrite(ctx, question)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hits, err := e.retriever.Retrieve(ctx, rewritten, e.cfg.RAG.TopK)
	if err != nil {
		return nil, err
	}

	answer, err := e.synth.Synthesize(ctx, rewritten, hits)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cited := make([]string, 0, len(answer.Citations))
	for _, c := range answer.Citations {
		cited = append(cited, c.ChunkID)
	}
	sess.memory.Append(models.ConversationTurn{
		Question:       question,
		RewrittenQuery: rewritten,
		Answer:         answer.Text,
		CitedChunkIDs:  cited,
		Timestamp:      time.Now().UTC(),
	})
	return answer, nil
}

// History returns the session's recorded turns, most recent last.
func (e *Engine) History(sessionID string) []models.ConversationTurn {
	return e.session(sessionID).memory.History()
}

// ClearSession drops a conversation's memory.
func (e *Engine) ClearSession(sessionID string) {
	e.session(sessionID).memory.Clear()
}

func (e *Engine) session(id string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		s = &session{memory: memory.New(e.cfg.RAG.MemoryWindow, e.completer)}
		e.sessions[id] = s
	}
	return s
}
