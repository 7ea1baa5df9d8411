package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"uniconnect/internal/config"
	"uniconnect/internal/models"
)

// ChunkRecord is one indexed chunk row. The embedding column is pgvector
// and is written/read through explicit ::vector casts.
type ChunkRecord struct {
	bun.BaseModel `bun:"table:rag_chunks,alias:c"`
	ID            string  `bun:"id,pk"`
	Seq           int64   `bun:"seq,notnull"`
	Source        string  `bun:"source,notnull"`
	Page          int     `bun:"page,notnull"`
	SpanStart     int     `bun:"span_start,notnull"`
	SpanEnd       int     `bun:"span_end,notnull"`
	Content       string  `bun:"content,notnull"`
	Score         float32 `bun:"score,scanonly"`
}

type indexMeta struct {
	bun.BaseModel `bun:"table:rag_index_meta,alias:m"`
	ID            int       `bun:"id,pk"`
	ModelID       string    `bun:"embedding_model_id,notnull"`
	Dimension     int       `bun:"dimension,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

// Store is an index backend on Postgres with the pgvector extension.
// Each Add runs in one transaction, so a crash mid-ingest never leaves a
// document half-indexed.
type Store struct {
	mu        sync.RWMutex
	db        *bun.DB
	modelID   string
	dimension int
	ids       map[string]struct{}
	nextSeq   int64
}

func New(dbCfg *config.DatabaseConfig, modelID string, dimension int) (*Store, error) {
	sqldb := connect(dbCfg)
	db := bun.NewDB(sqldb, pgdialect.New())
	if dbCfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return &Store{
		db:        db,
		modelID:   modelID,
		dimension: dimension,
		ids:       map[string]struct{}{},
	}, nil
}

func connect(dbCfg *config.DatabaseConfig) *sql.DB {
	dsn := dbCfg.URL
	if !strings.Contains(dsn, "sslmode") {
		dsn += "?sslmode=disable"
	}
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithPassword(dbCfg.Password)))
}

func (s *Store) Add(ctx context.Context, records []models.EmbeddingRecord) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added, skipped := 0, 0
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, rec := range records {
			if _, ok := s.ids[rec.ChunkID]; ok {
				skipped++
				continue
			}
			if len(rec.Vector) != s.dimension {
				return fmt.Errorf("%w: record %s has %d, index has %d",
					models.ErrDimensionMismatch, rec.ChunkID, len(rec.Vector), s.dimension)
			}
			row := &ChunkRecord{
				ID:        rec.ChunkID,
				Seq:       s.nextSeq + int64(added),
				Source:    rec.Chunk.SourceDocument,
				Page:      rec.Chunk.PageNumber,
				SpanStart: rec.Chunk.Span.Start,
				SpanEnd:   rec.Chunk.Span.End,
				Content:   rec.Chunk.Text,
			}
			_, err := tx.NewInsert().Model(row).
				Value("embedding", "?::vector", vectorLiteral(rec.Vector)).
				On("CONFLICT (id) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("insert chunk %s: %w", rec.ChunkID, err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	for _, rec := range records {
		s.ids[rec.ChunkID] = struct{}{}
	}
	s.nextSeq += int64(added)
	return added, skipped, nil
}

func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *Store) Search(ctx context.Context, queryVector []float32, k int) ([]models.ScoredChunk, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d",
			models.ErrDimensionMismatch, len(queryVector), s.dimension)
	}

	lit := vectorLiteral(queryVector)
	var rows []ChunkRecord
	err := s.db.NewSelect().
		Model(&rows).
		Column("id", "seq", "source", "page", "span_start", "span_end", "content").
		ColumnExpr("1 - (embedding <=> ?::vector) AS score", lit).
		OrderExpr("embedding <=> ?::vector ASC, seq ASC", lit).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]models.ScoredChunk, 0, len(rows))
	for _, row := range rows {
		results = append(results, models.ScoredChunk{
			Chunk: models.Chunk{
				ID:             row.ID,
				SourceDocument: row.Source,
				PageNumber:     row.Page,
				Text:           row.Content,
				Span:           models.Span{Start: row.SpanStart, End: row.SpanEnd},
			},
			Score: row.Score,
		})
	}
	return results, nil
}

// Persist is a no-op: every Add commits in its own transaction.
func (s *Store) Persist(ctx context.Context) error { return nil }

// Load creates the schema on first use, then validates the stored
// (model id, dimension) pair and warms the id set.
func (s *Store) Load(ctx context.Context) error {
	if err := s.initSchema(ctx); err != nil {
		return err
	}

	var meta indexMeta
	err := s.db.NewSelect().Model(&meta).Where("m.id = 1").Scan(ctx)
	switch {
	case err == sql.ErrNoRows:
		meta = indexMeta{ID: 1, ModelID: s.modelID, Dimension: s.dimension, CreatedAt: time.Now().UTC()}
		if _, err := s.db.NewInsert().Model(&meta).Exec(ctx); err != nil {
			return fmt.Errorf("write index metadata: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read index metadata: %w", err)
	case meta.ModelID != s.modelID || meta.Dimension != s.dimension:
		return fmt.Errorf("%w: database is (%s, %d), configured is (%s, %d)",
			models.ErrIndexVersionMismatch, meta.ModelID, meta.Dimension, s.modelID, s.dimension)
	}

	var rows []ChunkRecord
	if err := s.db.NewSelect().Model(&rows).Column("id", "seq").OrderExpr("seq ASC").Scan(ctx); err != nil {
		return fmt.Errorf("load chunk ids: %w", err)
	}

	s.mu.Lock()
	s.ids = make(map[string]struct{}, len(rows))
	for _, row := range rows {
		s.ids[row.ID] = struct{}{}
		if row.Seq >= s.nextSeq {
			s.nextSeq = row.Seq + 1
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rag_chunks (
			id TEXT PRIMARY KEY,
			seq BIGINT NOT NULL,
			source TEXT NOT NULL,
			page INT NOT NULL,
			span_start INT NOT NULL,
			span_end INT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.dimension),
		`CREATE TABLE IF NOT EXISTS rag_index_meta (
			id INT PRIMARY KEY,
			embedding_model_id TEXT NOT NULL,
			dimension INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
