package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"uniconnect/internal/models"
)

const (
	defaultChunkSize    = 1000 // characters
	defaultChunkOverlap = 200  // characters
)

// Chunker splits document text into fixed-size overlapping passages.
// Splitting is fully deterministic: the same text always produces the same
// boundaries, which keeps the content-derived chunk ids stable across runs.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

func New(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Chunk splits the document into passages. Empty or whitespace-only
// documents yield zero chunks, which is not an error.
func (c *Chunker) Chunk(doc *models.Document) []models.Chunk {
	if doc == nil || len(doc.Pages) == 0 {
		return nil
	}

	// Concatenate pages with a newline separator, remembering where each
	// page starts so a chunk spanning a boundary can be attributed to the
	// page holding most of its characters.
	var full strings.Builder
	pageRanges := make([][2]int, len(doc.Pages))
	for i, page := range doc.Pages {
		if i > 0 {
			full.WriteByte('\n')
		}
		start := full.Len()
		full.WriteString(page)
		pageRanges[i] = [2]int{start, full.Len()}
	}
	content := full.String()
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var chunks []models.Chunk
	contentLen := len(content)
	start := 0
	for start < contentLen {
		end := min(start+c.chunkSize, contentLen)

		// Prefer a clean break within the last 10% of the chunk.
		if end < contentLen {
			lookBack := min(c.chunkSize/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if content[i] == ' ' || content[i] == '\n' || content[i] == '.' {
					end = i + 1
					break
				}
			}
		}

		if chunk, ok := c.makeChunk(doc, content, pageRanges, start, end); ok {
			chunks = append(chunks, chunk)
		}

		if end == contentLen {
			break
		}
		start += c.chunkSize - c.chunkOverlap
	}
	return chunks
}

// makeChunk trims the span to its non-whitespace core; the returned chunk's
// text is always exactly content[span.Start:span.End].
func (c *Chunker) makeChunk(doc *models.Document, content string, pageRanges [][2]int, start, end int) (models.Chunk, bool) {
	for start < end && isSpace(content[start]) {
		start++
	}
	for end > start && isSpace(content[end-1]) {
		end--
	}
	if start >= end {
		return models.Chunk{}, false
	}

	span := models.Span{Start: start, End: end}
	return models.Chunk{
		ID:             ChunkID(doc.Name, span),
		SourceDocument: doc.Name,
		PageNumber:     majorityPage(pageRanges, start, end),
		Text:           content[start:end],
		Span:           span,
	}, true
}

// ChunkID derives a stable id from the source document and char span, so
// re-ingesting identical content is idempotent.
func ChunkID(source string, span models.Span) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", source, span.Start, span.End)))
	return hex.EncodeToString(sum[:])[:16]
}

// majorityPage returns the 1-based page containing most of the span's
// characters; on a tie the earlier page wins.
func majorityPage(pageRanges [][2]int, start, end int) int {
	page := 1
	best := -1
	for i, pr := range pageRanges {
		overlap := min(end, pr[1]) - max(start, pr[0])
		if overlap > best {
			best = overlap
			page = i + 1
		}
	}
	return page
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
