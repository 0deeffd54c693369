package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/onemcp/onemcp/pkg/tokenizer"
)

// ContentFormatMarkdown is the content format of every chunk this package
// emits.
const ContentFormatMarkdown = "markdown"

// Chunk is a bounded, contextually self-sufficient slice of a Markdown
// document. Chunks are intermediate: they feed documentation node
// construction and are never persisted verbatim.
type Chunk struct {
	// ID is a stable content hash.
	ID string
	// SectionPath is the heading path leading to the chunk.
	SectionPath []string
	FileName    string
	// Content includes the overlap prefix when present.
	Content       string
	ContentFormat string
	// DetectedEntities is filled by the entity-matching pass downstream.
	DetectedEntities []string
	// Oversize marks a chunk whose single indivisible block exceeds the
	// token budget (an atomic code fence).
	Oversize bool
	// OverlapLen is the byte length of the overlap prefix prepended from
	// the previous chunk; Content[OverlapLen:] is this chunk's own text.
	OverlapLen int
}

// Chunker splits Markdown into semantic chunks: it walks the ATX heading
// tree, greedily packs paragraphs per leaf section up to the token budget,
// merges undersized sections with their next sibling, and splits oversized
// paragraphs on sentence boundaries with a hard token-slice fallback. Code
// fences are atomic.
type Chunker struct {
	params  Params
	counter *tokenizer.Counter
}

// NewChunker builds a chunker with validated budgets.
func NewChunker(params Params) (*Chunker, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{params: params, counter: tokenizer.Shared()}, nil
}

// Params returns the chunker budgets.
func (c *Chunker) Params() Params {
	return c.params
}

type block struct {
	text   string
	path   []string
	atomic bool
}

// ChunkFile splits one file. Malformed Markdown never fails the chunker:
// any parse trouble degrades to the whole file as a single chunk.
func (c *Chunker) ChunkFile(fileName, content string) (chunks []Chunk) {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			chunks = []Chunk{c.materialize(fileName, draft{
				text: content, path: nil,
			}, "", false)}
		}
	}()

	blocks := parseBlocks(content)
	if len(blocks) == 0 {
		return []Chunk{c.materialize(fileName, draft{text: content}, "", false)}
	}

	drafts := c.pack(blocks)

	chunks = make([]Chunk, 0, len(drafts))
	prevBody := ""
	for i, d := range drafts {
		overlap := ""
		if i > 0 && c.params.OverlapTokens > 0 && !d.oversize {
			overlap = c.counter.Truncate(prevBody, c.params.OverlapTokens)
		}
		chunks = append(chunks, c.materialize(fileName, d, overlap, d.oversize))
		prevBody = d.text
	}
	return chunks
}

type draft struct {
	text     string
	path     []string
	oversize bool
}

func (c *Chunker) pack(blocks []block) []draft {
	var drafts []draft
	var cur strings.Builder
	var curPath []string
	curTokens := 0

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		drafts = append(drafts, draft{text: cur.String(), path: curPath})
		cur.Reset()
		curPath = nil
		curTokens = 0
	}

	// Joining blocks costs a separator; budget one token per join so the
	// emitted chunk stays within MaxTokens under any tokenizer.
	add := func(b block, tokens int) {
		if cur.Len() == 0 {
			curPath = b.path
		} else {
			cur.WriteString("\n\n")
			curTokens++
		}
		cur.WriteString(b.text)
		curTokens += tokens
	}

	fits := func(tokens int) bool {
		if cur.Len() == 0 {
			return true
		}
		return curTokens+tokens+1 <= c.params.MaxTokens
	}

	for _, b := range blocks {
		tokens := c.counter.Count(b.text)

		if b.atomic && tokens > c.params.MaxTokens {
			// An indivisible code fence: emit alone, flagged oversize.
			flush()
			drafts = append(drafts, draft{text: b.text, path: b.path, oversize: true})
			continue
		}

		if !b.atomic && tokens > c.params.MaxTokens {
			for _, piece := range c.splitParagraph(b.text) {
				pieceTokens := c.counter.Count(piece)
				if !fits(pieceTokens) {
					flush()
				}
				add(block{text: piece, path: b.path}, pieceTokens)
			}
			continue
		}

		// A heading starts a new section: flush when the current chunk
		// already meets the minimum, otherwise merge the small section
		// into this chunk.
		if isHeading(b.text) && curTokens >= c.params.MinTokens {
			flush()
		}

		if !fits(tokens) {
			flush()
		}
		add(b, tokens)
	}
	flush()

	return drafts
}

// splitParagraph breaks an oversized paragraph on sentence boundaries,
// falling back to hard token slicing for sentences that still exceed the
// budget.
func (c *Chunker) splitParagraph(text string) []string {
	sentences := splitSentences(text)

	var pieces []string
	var cur strings.Builder
	curTokens := 0

	flush := func() {
		if cur.Len() > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
			curTokens = 0
		}
	}

	for _, s := range sentences {
		tokens := c.counter.Count(s)
		if tokens > c.params.MaxTokens {
			flush()
			pieces = append(pieces, c.hardSlice(s)...)
			continue
		}
		if cur.Len() > 0 && curTokens+tokens > c.params.MaxTokens {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(s)
		curTokens += tokens
	}
	flush()

	return pieces
}

func (c *Chunker) hardSlice(text string) []string {
	words := strings.Fields(text)
	var pieces []string
	var cur strings.Builder
	curTokens := 0

	for _, w := range words {
		tokens := c.counter.Count(w)
		if cur.Len() > 0 && curTokens+tokens > c.params.MaxTokens {
			pieces = append(pieces, cur.String())
			cur.Reset()
			curTokens = 0
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(w)
		curTokens += tokens
	}
	if cur.Len() > 0 {
		pieces = append(pieces, cur.String())
	}
	if len(pieces) == 0 {
		pieces = []string{text}
	}
	return pieces
}

func (c *Chunker) materialize(fileName string, d draft, overlap string, oversize bool) Chunk {
	content := d.text
	overlapLen := 0
	if overlap != "" {
		content = overlap + "\n\n" + d.text
		overlapLen = len(overlap) + 2
	}
	sum := sha256.Sum256([]byte(content))
	return Chunk{
		ID:            hex.EncodeToString(sum[:8]),
		SectionPath:   d.path,
		FileName:      fileName,
		Content:       content,
		ContentFormat: ContentFormatMarkdown,
		Oversize:      oversize,
		OverlapLen:    overlapLen,
	}
}

func isHeading(line string) bool {
	trimmed := strings.TrimLeft(line, "#")
	return len(trimmed) < len(line) && len(line)-len(trimmed) <= 6 &&
		(trimmed == "" || strings.HasPrefix(trimmed, " "))
}

func headingLevel(line string) int {
	return len(line) - len(strings.TrimLeft(line, "#"))
}

func isFence(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// parseBlocks walks the document once, producing heading, paragraph, and
// code fence blocks, each tagged with the heading path in effect.
func parseBlocks(content string) []block {
	lines := strings.Split(content, "\n")

	var blocks []block
	var path []string
	levels := []int{}

	var para []string
	var fence []string
	inFence := false

	currentPath := func() []string {
		out := make([]string, len(path))
		copy(out, path)
		return out
	}

	flushPara := func() {
		if len(para) > 0 {
			blocks = append(blocks, block{text: strings.Join(para, "\n"), path: currentPath()})
			para = nil
		}
	}

	for _, line := range lines {
		if inFence {
			fence = append(fence, line)
			if isFence(line) {
				blocks = append(blocks, block{text: strings.Join(fence, "\n"), path: currentPath(), atomic: true})
				fence = nil
				inFence = false
			}
			continue
		}

		switch {
		case isFence(line):
			flushPara()
			fence = []string{line}
			inFence = true

		case isHeading(line):
			flushPara()
			level := headingLevel(line)
			title := strings.TrimSpace(strings.TrimLeft(line, "#"))
			for len(levels) > 0 && levels[len(levels)-1] >= level {
				levels = levels[:len(levels)-1]
				path = path[:len(path)-1]
			}
			levels = append(levels, level)
			path = append(path, title)
			blocks = append(blocks, block{text: line, path: currentPath()})

		case strings.TrimSpace(line) == "":
			flushPara()

		default:
			para = append(para, line)
		}
	}

	// Unterminated fence: keep it as one atomic block.
	if inFence && len(fence) > 0 {
		blocks = append(blocks, block{text: strings.Join(fence, "\n"), path: currentPath(), atomic: true})
	}
	flushPara()

	return blocks
}

// splitSentences splits on `.`, `!`, `?` followed by whitespace. The
// delimiter stays with the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		ch := text[i]
		if (ch == '.' || ch == '!' || ch == '?') &&
			(text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t') {
			sentence := strings.TrimSpace(text[start : i+1])
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
