package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Counter produces deterministic token counts for chunk budgeting. It uses
// the tiktoken cl100k_base encoding when available and falls back to a
// bytes/4 approximation otherwise (e.g. when the encoding files cannot be
// loaded in an offline environment). Both paths are deterministic for a
// given input.
type Counter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

var (
	shared     *Counter
	sharedOnce sync.Once
)

// Shared returns the process-wide counter. Chunkers share one counter so a
// corpus is budgeted consistently.
func Shared() *Counter {
	sharedOnce.Do(func() {
		shared = &Counter{}
	})
	return shared
}

func (c *Counter) encoding() *tiktoken.Tiktoken {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(defaultEncoding)
		if err == nil {
			c.enc = enc
		}
	})
	return c.enc
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return approximate(text)
}

// Truncate returns the trailing n tokens of text, used to build chunk
// overlap. With the approximate counter this is a byte-based suffix aligned
// to a whitespace boundary.
func (c *Counter) Truncate(text string, n int) string {
	if n <= 0 || text == "" {
		return ""
	}
	if enc := c.encoding(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= n {
			return text
		}
		return enc.Decode(tokens[len(tokens)-n:])
	}
	approxBytes := n * 4
	if len(text) <= approxBytes {
		return text
	}
	cut := text[len(text)-approxBytes:]
	// Align to a whitespace boundary so the overlap starts on a whole word.
	for i := 0; i < len(cut); i++ {
		if cut[i] == ' ' || cut[i] == '\n' || cut[i] == '\t' {
			return cut[i+1:]
		}
	}
	return cut
}

func approximate(text string) int {
	n := (len(text) + 3) / 4
	if n == 0 {
		n = 1
	}
	return n
}
