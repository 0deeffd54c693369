package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{MinTokens: 20, MaxTokens: 60, OverlapTokens: 8}
}

func TestAdaptiveParams(t *testing.T) {
	tests := []struct {
		name        string
		totalTokens int
		entityCount int
		wantMax     int
	}{
		{"small corpus", 10_000, 0, 700},
		{"medium corpus", 100_000, 0, 500},
		{"large corpus", 300_000, 0, 350},
		{"entity shrink", 10_000, 30, 630}, // 700 * (1 - 0.10)
		{"shrink capped at half", 100_000, 1000, 250},
		{"clamped low", 300_000, 1000, 200}, // 350*0.5=175 clamps to 200
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := AdaptiveParams(tt.totalTokens, tt.entityCount)
			assert.Equal(t, tt.wantMax, p.MaxTokens)
			assert.GreaterOrEqual(t, p.MinTokens, 100)
			assert.LessOrEqual(t, p.OverlapTokens, 100)
			require.NoError(t, p.Validate())
		})
	}
}

func TestLegacyParams(t *testing.T) {
	p := LegacyParams()
	assert.Equal(t, Params{MinTokens: 150, MaxTokens: 450, OverlapTokens: 40}, p)
}

func TestChunkFileEmpty(t *testing.T) {
	c, err := NewChunker(testParams())
	require.NoError(t, err)
	assert.Nil(t, c.ChunkFile("empty.md", "   \n\n"))
}

func TestChunkFileSingleSection(t *testing.T) {
	c, err := NewChunker(testParams())
	require.NoError(t, err)

	chunks := c.ChunkFile("doc.md", "# Title\n\nShort paragraph.")
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Title"}, chunks[0].SectionPath)
	assert.Equal(t, "doc.md", chunks[0].FileName)
	assert.Equal(t, ContentFormatMarkdown, chunks[0].ContentFormat)
	assert.Contains(t, chunks[0].Content, "Short paragraph.")
	assert.NotEmpty(t, chunks[0].ID)
}

func TestChunkIDIsContentHash(t *testing.T) {
	c, err := NewChunker(testParams())
	require.NoError(t, err)

	a := c.ChunkFile("a.md", "# T\n\nSame body.")
	b := c.ChunkFile("b.md", "# T\n\nSame body.")
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].ID, b[0].ID)
}

func TestHeadingPathTracksNesting(t *testing.T) {
	c, err := NewChunker(Params{MinTokens: 1, MaxTokens: 30, OverlapTokens: 0})
	require.NoError(t, err)

	doc := strings.Join([]string{
		"# Guide",
		"",
		"Intro paragraph with enough words to pass the minimum budget for a section here.",
		"",
		"## Setup",
		"",
		"Setup paragraph that also carries a reasonable amount of words to stand alone.",
	}, "\n")

	chunks := c.ChunkFile("guide.md", doc)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, []string{"Guide"}, chunks[0].SectionPath)
	last := chunks[len(chunks)-1]
	assert.Equal(t, []string{"Guide", "Setup"}, last.SectionPath)
}

func TestCodeFenceIsAtomic(t *testing.T) {
	c, err := NewChunker(Params{MinTokens: 5, MaxTokens: 20, OverlapTokens: 0})
	require.NoError(t, err)

	fence := "```go\n" + strings.Repeat("fmt.Println(\"padding line\")\n", 20) + "```"
	doc := "# Code\n\nBefore.\n\n" + fence + "\n\nAfter."

	chunks := c.ChunkFile("code.md", doc)

	var fenceChunks []Chunk
	for _, ch := range chunks {
		if strings.Contains(ch.Content, "fmt.Println") {
			fenceChunks = append(fenceChunks, ch)
		}
	}
	require.Len(t, fenceChunks, 1, "fence must never be split across chunks")
	assert.True(t, fenceChunks[0].Oversize)
	assert.True(t, strings.HasPrefix(fenceChunks[0].Content, "```go"))
	assert.True(t, strings.HasSuffix(fenceChunks[0].Content, "```"))
}

func TestOversizedParagraphIsSplit(t *testing.T) {
	p := Params{MinTokens: 5, MaxTokens: 25, OverlapTokens: 0}
	c, err := NewChunker(p)
	require.NoError(t, err)

	para := strings.TrimSpace(strings.Repeat("This sentence fills the buffer nicely. ", 12))
	chunks := c.ChunkFile("long.md", para)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.False(t, ch.Oversize)
	}
}

func TestChunkingCoverage(t *testing.T) {
	c, err := NewChunker(Params{MinTokens: 5, MaxTokens: 30, OverlapTokens: 6})
	require.NoError(t, err)

	doc := strings.Join([]string{
		"# One",
		"",
		"First paragraph talks about the initial topic in a couple of words.",
		"",
		"## Two",
		"",
		"Second paragraph continues with different words to keep sections distinct.",
		"",
		"Third paragraph closes the document with a final statement about everything.",
	}, "\n")

	chunks := c.ChunkFile("cov.md", doc)
	require.NotEmpty(t, chunks)

	var rebuilt []string
	for _, ch := range chunks {
		rebuilt = append(rebuilt, ch.Content[ch.OverlapLen:])
	}
	got := strings.Fields(strings.Join(rebuilt, " "))
	want := strings.Fields(doc)
	assert.Equal(t, want, got, "non-overlap portions must reproduce the visible text in order")
}

func TestOverlapPrefixComesFromPreviousChunk(t *testing.T) {
	c, err := NewChunker(Params{MinTokens: 5, MaxTokens: 25, OverlapTokens: 5})
	require.NoError(t, err)

	doc := strings.Join([]string{
		"# A",
		"",
		"Alpha paragraph with several words to occupy the first chunk entirely today.",
		"",
		"# B",
		"",
		"Beta paragraph with several more words to occupy the second chunk entirely today.",
	}, "\n")

	chunks := c.ChunkFile("ov.md", doc)
	require.GreaterOrEqual(t, len(chunks), 2)

	second := chunks[1]
	require.Greater(t, second.OverlapLen, 0)
	overlap := second.Content[:second.OverlapLen]
	assert.True(t, strings.HasSuffix(chunks[0].Content, strings.TrimSpace(overlap)),
		"overlap must be the tail of the previous chunk")
}

func TestChunkSizeBounds(t *testing.T) {
	p := Params{MinTokens: 5, MaxTokens: 40, OverlapTokens: 0}
	c, err := NewChunker(p)
	require.NoError(t, err)

	doc := strings.Repeat("A paragraph made of words. ", 50) +
		"\n\n```\n" + strings.Repeat("code line\n", 100) + "```\n"
	chunks := c.ChunkFile("bounds.md", doc)
	counter := c.counter
	for _, ch := range chunks {
		if ch.Oversize {
			continue
		}
		assert.LessOrEqual(t, counter.Count(ch.Content[ch.OverlapLen:]), p.MaxTokens,
			"chunk exceeds budget without oversize flag")
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two! Three? Four")
	assert.Equal(t, []string{"One.", "Two!", "Three?", "Four"}, got)
}

func TestUnterminatedFenceBecomesSingleBlock(t *testing.T) {
	c, err := NewChunker(testParams())
	require.NoError(t, err)

	chunks := c.ChunkFile("broken.md", "# H\n\n```\nnever closed\nstill code")
	require.NotEmpty(t, chunks)
	joined := ""
	for _, ch := range chunks {
		joined += ch.Content
	}
	assert.Contains(t, joined, "still code")
}
