package chunker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniconnect/internal/models"
)

func doc(name string, pages ...string) *models.Document {
	return &models.Document{Name: name, Pages: pages, UploadedAt: time.Now()}
}

func TestChunkDeterministic(t *testing.T) {
	c := New(100, 20)
	d := doc("handbook.pdf", strings.Repeat("The F-1 visa requires a valid I-20 form. ", 30))

	first := c.Chunk(d)
	second := c.Chunk(d)

	require.NotEmpty(t, first)
	require.Equal(t, first, second)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Span, second[i].Span)
	}
}

func TestChunkEmptyDocument(t *testing.T) {
	c := New(100, 20)

	assert.Nil(t, c.Chunk(nil))
	assert.Nil(t, c.Chunk(doc("empty.pdf")))
	assert.Nil(t, c.Chunk(doc("blank.pdf", "", "   \n\t")))
}

func TestChunkNeverEmptyAndSpansMatch(t *testing.T) {
	c := New(50, 10)
	pages := []string{strings.Repeat("opt application deadline ", 10), strings.Repeat("sevis fee payment ", 10)}
	d := doc("guide.pdf", pages...)

	full := pages[0] + "\n" + pages[1]
	chunks := c.Chunk(d)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		require.NotEmpty(t, ch.Text)
		assert.Equal(t, full[ch.Span.Start:ch.Span.End], ch.Text)
		assert.Equal(t, "guide.pdf", ch.SourceDocument)
	}
}

func TestChunkSingleWhenShort(t *testing.T) {
	c := New(1000, 200)
	chunks := c.Chunk(doc("note.txt", "short document"))

	require.Len(t, chunks, 1)
	assert.Equal(t, "short document", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].PageNumber)
}

func TestChunkOverlapBoundaries(t *testing.T) {
	// No whitespace, so the clean-break scan never moves the end.
	c := New(100, 20)
	chunks := c.Chunk(doc("raw.txt", strings.Repeat("a", 250)))

	require.Len(t, chunks, 3)
	assert.Equal(t, models.Span{Start: 0, End: 100}, chunks[0].Span)
	assert.Equal(t, models.Span{Start: 80, End: 180}, chunks[1].Span)
	assert.Equal(t, models.Span{Start: 160, End: 250}, chunks[2].Span)
}

func TestMajorityPage(t *testing.T) {
	ranges := [][2]int{{0, 10}, {11, 21}}

	assert.Equal(t, 1, majorityPage(ranges, 2, 8))
	assert.Equal(t, 2, majorityPage(ranges, 12, 20))
	// Majority on the second page.
	assert.Equal(t, 2, majorityPage(ranges, 7, 18))
	// Exact tie goes to the earlier page.
	assert.Equal(t, 1, majorityPage(ranges, 4, 17))
}

func TestChunkIDStable(t *testing.T) {
	span := models.Span{Start: 0, End: 42}

	assert.Equal(t, ChunkID("a.pdf", span), ChunkID("a.pdf", span))
	assert.NotEqual(t, ChunkID("a.pdf", span), ChunkID("b.pdf", span))
	assert.NotEqual(t, ChunkID("a.pdf", span), ChunkID("a.pdf", models.Span{Start: 0, End: 43}))
	assert.Len(t, ChunkID("a.pdf", span), 16)
}
