package text

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Span is one emitted chunk together with the rune offsets of the window it
// was cut from. Content is the trimmed window text.
type Span struct {
	Start   int
	End     int
	Content string
}

// Chunk splits text into overlapping windows of at most chunkSize characters.
// Window ends are snapped back to the last '.' or newline when that keeps at
// least half of the window. Consecutive windows share overlap characters.
func Chunk(text string, chunkSize, overlap int) []string {
	spans := ChunkSpans(text, chunkSize, overlap)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Content
	}
	return out
}

// ChunkSpans is Chunk with window offsets. Offsets count runes, not bytes, so
// multi-byte characters are never split.
//
// A text no longer than chunkSize is returned as a single untrimmed span. A
// non-positive chunkSize disables splitting.
func ChunkSpans(text string, chunkSize, overlap int) []Span {
	n := utf8.RuneCountInString(text)
	if chunkSize <= 0 || n <= chunkSize {
		return []Span{{Start: 0, End: n, Content: text}}
	}

	runes := []rune(text)
	minBreak := float64(chunkSize) * 0.5

	var spans []Span
	start := 0
	for start < n {
		end := start + chunkSize
		if end > n {
			end = n
		}

		if end < n {
			if bp := lastBreak(runes, start, end); bp >= 0 && float64(bp) >= float64(start)+minBreak {
				end = bp + 1
			}
		}

		if content := strings.TrimSpace(string(runes[start:end])); content != "" {
			spans = append(spans, Span{Start: start, End: end, Content: content})
		}
		if end >= n {
			break
		}

		// start+1 keeps the loop moving when overlap swallows the whole window.
		next := end - overlap
		if next < start+1 {
			next = start + 1
		}
		start = next
	}

	return spans
}

// lastBreak returns the index of the last '.' or '\n' in runes[start:end], or -1.
func lastBreak(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == '.' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Preview truncates s to at most max runes.
func Preview(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
