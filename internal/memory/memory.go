package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"uniconnect/internal/models"
)

// Completer is the completion capability used for query rewriting.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Memory is a bounded, append-only log of one conversation's turns.
// Follow-up questions that lean on prior turns ("what about the second
// one?") embed poorly on their own, so Rewrite condenses them into
// self-contained queries against the recorded history.
type Memory struct {
	mu        sync.Mutex
	window    int
	turns     []models.ConversationTurn
	completer Completer
}

func New(window int, completer Completer) *Memory {
	if window <= 0 {
		window = 6
	}
	return &Memory{window: window, completer: completer}
}

// History returns the recorded turns, most recent last.
func (m *Memory) History() []models.ConversationTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ConversationTurn(nil), m.turns...)
}

// Append records a completed turn, evicting the oldest one once the window
// is exceeded.
func (m *Memory) Append(turn models.ConversationTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	if len(m.turns) > m.window {
		m.turns = m.turns[len(m.turns)-m.window:]
	}
}

// Clear drops the whole conversation history.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// Rewrite resolves references to prior turns, producing a self-contained
// query suitable for embedding. With no history the question is returned
// untouched. A failed rewrite degrades to the raw question rather than
// failing the whole ask.
func (m *Memory) Rewrite(ctx context.Context, question string) string {
	history := m.History()
	if len(history) == 0 {
		return question
	}

	var convo strings.Builder
	for _, turn := range history {
		convo.WriteString("User: " + turn.Question + "\n")
		convo.WriteString("Assistant: " + turn.Answer + "\n")
	}

	prompt := fmt.Sprintf(models.RewritePromptTemplate, convo.String(), question)
	rewritten, err := m.completer.Complete(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("query rewrite failed, using raw question")
		return question
	}

	rewritten = strings.TrimSpace(strings.Trim(strings.TrimSpace(rewritten), `"`))
	if rewritten == "" {
		return question
	}
	return rewritten
}
