package chunker

import (
	"unicode"
)

const (
	// DefaultMaxLen is the target maximum chunk length in runes.
	DefaultMaxLen = 1000

	// DefaultOverlap is the number of runes repeated between adjacent
	// chunks so meaning at chunk edges survives embedding.
	DefaultOverlap = 100
)

// Chunker splits plain text into ordered, bounded-size segments suitable
// for embedding. Splitting is deterministic: the same input always yields
// the same chunks.
type Chunker struct {
	maxLen  int
	overlap int
}

// New creates a Chunker with the given limits. Non-positive maxLen falls
// back to DefaultMaxLen; overlap is clamped to maxLen/2 when it would
// otherwise prevent forward progress.
func New(maxLen, overlap int) *Chunker {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxLen/2 {
		overlap = maxLen / 2
	}
	return &Chunker{maxLen: maxLen, overlap: overlap}
}

// Split divides text into chunks of at most maxLen runes. Non-empty input
// no longer than maxLen produces exactly one chunk; empty input produces
// none. Original text order is preserved across chunk boundaries, and each
// chunk starts overlap runes before the end of its predecessor.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.maxLen {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.maxLen
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		// Prefer cutting at whitespace so words survive intact. Bounded
		// backward scan; fall back to a hard split when the window has no
		// whitespace near its edge.
		cut := end
		limit := start + (c.maxLen*3)/4
		for cut > limit && !unicode.IsSpace(runes[cut-1]) {
			cut--
		}
		if cut == limit {
			cut = end
		}

		chunks = append(chunks, string(runes[start:cut]))
		start = cut - c.overlap
	}

	return chunks
}

// MaxLen returns the configured chunk size limit.
func (c *Chunker) MaxLen() int { return c.maxLen }

// Overlap returns the configured overlap between adjacent chunks.
func (c *Chunker) Overlap() int { return c.overlap }
