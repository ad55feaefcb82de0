// Package chunker splits extracted document text into overlapping windows.
package chunker

import "strings"

// Search windows (in characters) for a natural boundary before the naive cut.
const (
	paragraphWindow = 100
	sentenceWindow  = 50
)

// Defaults used when the configuration leaves the fields empty.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Split walks text producing windows of about size characters, each next window
// starting overlap characters before the previous cut. Non-final windows are cut
// at the nearest paragraph break within 100 characters of the naive boundary, else
// at the nearest sentence break within 50, else at the boundary itself.
//
// Splitting stops as soon as the start position fails to advance (overlap >= size),
// returning what was produced so far. Empty text yields an empty list.
func Split(text string, size, overlap int) []string {
	runes := []rune(text)
	out := make([]string, 0)
	for _, s := range spans(runes, size, overlap) {
		out = append(out, string(runes[s[0]:s[1]]))
	}
	return out
}

func spans(runes []rune, size, overlap int) [][2]int {
	n := len(runes)
	if n == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}

	var out [][2]int
	start := 0
	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else {
			end = findBreak(runes, start, end, overlap)
		}
		out = append(out, [2]int{start, end})
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			break
		}
		start = next
	}
	return out
}

// findBreak moves end back to a paragraph or sentence boundary. A boundary is only
// taken when the following window would still start after start.
func findBreak(runes []rune, start, end, overlap int) int {
	minCut := start + overlap + 1

	for i := end - 2; i >= end-paragraphWindow && i > start; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			if cut := i + 2; cut >= minCut {
				return cut
			}
			break
		}
	}

	for i := end - 2; i >= end-sentenceWindow && i > start; i-- {
		if runes[i] == '.' && runes[i+1] == ' ' {
			if cut := i + 1; cut >= minCut {
				return cut
			}
			break
		}
	}

	return end
}

// Chunker applies configured size and overlap and cleans the produced chunks.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Non-positive size falls back to DefaultSize, negative
// overlap to DefaultOverlap.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	return &Chunker{size: size, overlap: overlap}
}

// Size returns the configured window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns trimmed, non-blank chunks of text.
func (c *Chunker) Split(text string) []string {
	raw := Split(text, c.size, c.overlap)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
