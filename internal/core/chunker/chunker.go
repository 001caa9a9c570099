// Package chunker normalizes extracted page text and splits it into
// overlapping fixed-size chunks for embedding.
package chunker

import (
	"regexp"
	"strings"

	"github.com/paperpilot/paperpilot/internal/core"
	"github.com/paperpilot/paperpilot/internal/errs"
)

// Chunk is one bounded slice of a document's text, attributed to the page it
// came from. Index is document-global and monotonically increasing.
type Chunk struct {
	Index      int
	Text       string
	PageNumber int
}

type Chunker struct {
	size    int // maximum chunk length in runes
	overlap int // runes shared between consecutive chunks
}

func NewChunker(size, overlap int) *Chunker {
	return &Chunker{size: size, overlap: overlap}
}

var (
	multiNewline = regexp.MustCompile(`\n{2,}`)
	multiSpace   = regexp.MustCompile(` {2,}`)
)

// Normalize collapses whitespace: a single newline becomes a space, runs of
// newlines become exactly one blank line, runs of spaces become one space,
// and the result is trimmed. Normalize is idempotent.
func Normalize(text string) string {
	// Protect paragraph breaks before flattening single newlines.
	const mark = "\x00"
	s := multiNewline.ReplaceAllString(text, mark)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, mark, "\n\n")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ChunkPages normalizes each page independently and splits it into chunks of
// at most the configured size with the configured overlap. Pages whose
// normalized text is empty contribute no chunks. Chunk indices run across the
// whole document, they do not restart at page boundaries.
func (c *Chunker) ChunkPages(pages []core.Page) ([]Chunk, error) {
	if c.size <= 0 {
		return nil, errs.Wrapf(errs.ErrChunking, "chunk size must be positive, got %d", c.size)
	}
	if c.overlap < 0 || c.overlap >= c.size {
		return nil, errs.Wrapf(errs.ErrChunking, "overlap %d out of range for size %d", c.overlap, c.size)
	}

	var out []Chunk
	index := 0
	for _, page := range pages {
		text := Normalize(page.Text)
		if text == "" {
			continue
		}
		for _, piece := range c.split(text) {
			out = append(out, Chunk{
				Index:      index,
				Text:       piece,
				PageNumber: page.PageNumber,
			})
			index++
		}
	}
	return out, nil
}

// split cuts text into windows of at most c.size runes. Each window after the
// first starts exactly c.overlap runes before the previous cut, so consecutive
// chunks share c.overlap runes. Cuts prefer paragraph breaks, then sentence
// ends, then word breaks, before falling back to a hard cut.
func (c *Chunker) split(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var out []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		cut := c.boundary(runes, start, end)
		out = append(out, string(runes[start:cut]))

		next := cut - c.overlap
		if next <= start {
			// Overlap would stall the walk; give up the overlap for this cut.
			next = cut
		}
		start = next
	}
	return out
}

// Separators tried in order when snapping a cut backwards, mirroring the
// paragraph -> sentence -> word preference of a recursive splitter.
var separators = []string{"\n\n", ". ", " "}

// boundary returns the cut position (exclusive) for a chunk spanning
// [start, end). It searches backwards within the last quarter of the window
// for the best separator and keeps the separator with the left chunk. When no
// separator is found it hard-cuts at end.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	lowest := end - c.size/4
	if lowest <= start {
		lowest = start + 1
	}
	for _, sep := range separators {
		if cut := lastSeparator(runes, sep, lowest, end); cut > start {
			return cut
		}
	}
	return end
}

// lastSeparator finds the rightmost occurrence of sep fully inside
// [lowest, end) and returns the position just past it, or -1.
func lastSeparator(runes []rune, sep string, lowest, end int) int {
	sepRunes := []rune(sep)
	for i := end - len(sepRunes); i >= lowest; i-- {
		match := true
		for j, r := range sepRunes {
			if runes[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i + len(sepRunes)
		}
	}
	return -1
}
