package models

import "time"

// Span is a half-open [Start, End) byte range into the concatenated
// document text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Document is a parsed upload: one text string per page, in page order.
// It only lives until chunking; afterwards chunk payloads are the record.
type Document struct {
	Name       string    `json:"name"`
	Hash       string    `json:"hash"`
	Pages      []string  `json:"pages"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Chunk is an immutable passage with stable provenance. ID is derived from
// (SourceDocument, Span), so identical content always gets the same id.
type Chunk struct {
	ID             string `json:"id"`
	SourceDocument string `json:"source_document"`
	PageNumber     int    `json:"page_number"`
	Text           string `json:"text"`
	Span           Span   `json:"span"`
}

// EmbeddingRecord pairs a chunk with its vector, one-to-one.
type EmbeddingRecord struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
	Chunk   Chunk     `json:"chunk"`
}

// IndexStats reports the outcome of one ingest.
type IndexStats struct {
	ChunksAdded   int `json:"chunks_added"`
	ChunksSkipped int `json:"chunks_skipped"`
}

// ScoredChunk is a retrieval hit with its similarity score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// Citation points at a chunk the answer drew on.
type Citation struct {
	ChunkID        string `json:"chunk_id"`
	SourceDocument string `json:"source_document"`
	PageNumber     int    `json:"page_number"`
	Snippet        string `json:"snippet,omitempty"`
}

// Answer is the synthesized response. Citations only ever reference chunks
// that were passed to the synthesizer for this turn.
type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

// ConversationTurn is one completed (question, answer) exchange.
type ConversationTurn struct {
	Question       string    `json:"question"`
	RewrittenQuery string    `json:"rewritten_query"`
	Answer         string    `json:"answer"`
	CitedChunkIDs  []string  `json:"cited_chunk_ids"`
	Timestamp      time.Time `json:"timestamp"`
}
