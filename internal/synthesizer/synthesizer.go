package synthesizer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"uniconnect/internal/models"
)

const snippetLen = 300

// Completer is the completion capability.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// TokenCounter measures prompt text against the context budget.
type TokenCounter interface {
	Count(text string) int
}

// Synthesizer builds a bounded prompt from retrieved chunks and asks the
// completion model for a grounded answer. Every excerpt in the prompt
// carries an [S#] marker; the markers the model cites back are mapped to
// chunk citations.
type Synthesizer struct {
	completer    Completer
	counter      TokenCounter
	budgetTokens int
}

func New(completer Completer, budgetTokens int) (*Synthesizer, error) {
	// cl100k_base covers the gpt-4 family and the embedding models in use.
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("get tiktoken encoding: %w", err)
	}
	return NewWithCounter(completer, tiktokenCounter{tke}, budgetTokens), nil
}

func NewWithCounter(completer Completer, counter TokenCounter, budgetTokens int) *Synthesizer {
	if budgetTokens <= 0 {
		budgetTokens = 3000
	}
	return &Synthesizer{completer: completer, counter: counter, budgetTokens: budgetTokens}
}

type tiktokenCounter struct {
	tke *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.tke.Encode(text, nil, nil))
}

// Synthesize answers the query from the given chunks. With no chunks it
// returns the fixed insufficient-information answer without calling the
// completion model at all.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, chunks []models.ScoredChunk) (*models.Answer, error) {
	if len(chunks) == 0 {
		return &models.Answer{Text: models.InsufficientInformationAnswer, Citations: []models.Citation{}}, nil
	}

	kept := s.fitToBudget(chunks)
	prompt := buildPrompt(query, kept)

	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	citations := extractCitations(text, kept)
	if len(citations) == 0 {
		// The model named no discoverable excerpt; attribute the answer to
		// everything it could have used rather than nothing.
		for _, sc := range kept {
			citations = append(citations, toCitation(sc.Chunk))
		}
	}
	return &models.Answer{Text: text, Citations: citations}, nil
}

// fitToBudget orders chunks by descending score and trims from the tail
// until the excerpt block fits the token budget, so the kept set is always
// a prefix of the score order: no chunk survives while a higher-scoring
// one is dropped. Chunks are dropped whole, never truncated, so a citation
// always points at complete context. The best chunk is always kept, even
// when it alone exceeds the budget.
func (s *Synthesizer) fitToBudget(chunks []models.ScoredChunk) []models.ScoredChunk {
	ordered := append([]models.ScoredChunk(nil), chunks...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	var kept []models.ScoredChunk
	total := 0
	for i, sc := range ordered {
		cost := s.counter.Count(excerpt(len(kept)+1, sc.Chunk))
		if i > 0 && total+cost > s.budgetTokens {
			break
		}
		kept = append(kept, sc)
		total += cost
	}
	if len(kept) < len(ordered) {
		log.Debug().
			Int("kept", len(kept)).
			Int("dropped", len(ordered)-len(kept)).
			Int("tokens", total).
			Msg("dropped lowest-scoring chunks to fit context budget")
	}
	return kept
}

func excerpt(marker int, chunk models.Chunk) string {
	return fmt.Sprintf("[S%d] (%s, page %d)\n%s\n\n", marker, chunk.SourceDocument, chunk.PageNumber, chunk.Text)
}

func buildPrompt(query string, kept []models.ScoredChunk) string {
	var excerpts strings.Builder
	for i, sc := range kept {
		excerpts.WriteString(excerpt(i+1, sc.Chunk))
	}
	return fmt.Sprintf(models.QAPromptTemplate, excerpts.String(), query)
}

var markerRe = regexp.MustCompile(`\[S(\d+)\]`)

// extractCitations maps the [S#] markers in the model's response back to
// the chunks that were in the prompt, in first-mention order.
func extractCitations(text string, kept []models.ScoredChunk) []models.Citation {
	var citations []models.Citation
	seen := map[int]bool{}
	for _, match := range markerRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(kept) || seen[n] {
			continue
		}
		seen[n] = true
		citations = append(citations, toCitation(kept[n-1].Chunk))
	}
	return citations
}

func toCitation(chunk models.Chunk) models.Citation {
	snippet := chunk.Text
	if len(snippet) > snippetLen {
		snippet = snippet[:snippetLen] + "..."
	}
	return models.Citation{
		ChunkID:        chunk.ID,
		SourceDocument: chunk.SourceDocument,
		PageNumber:     chunk.PageNumber,
		Snippet:        snippet,
	}
}
