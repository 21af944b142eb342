// Package chunk splits raw source text into overlapping chunks sized for
// embedding and retrieval.
package chunk

import "strings"

const (
	DefaultSize      = 1500
	DefaultOverlap   = 300
	DefaultSeparator = "\n"
)

// Split cuts text into chunks of at most size characters. The text is first
// split on separator, then split units are greedily packed into chunks. Each
// chunk starts with up to overlap characters carried over from the tail of
// its predecessor, so context crossing a unit boundary is preserved. A single
// unit longer than size is passed through as its own chunk rather than
// rejected. Empty input yields no chunks.
func Split(text string, size, overlap int, separator string) []string {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if separator == "" {
		separator = DefaultSeparator
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	units := strings.Split(text, separator)

	var chunks []string
	var current []string
	total := 0 // length of current joined with separator

	for _, unit := range units {
		projected := total + len(unit)
		if len(current) > 0 {
			projected += len(separator)
		}
		if projected > size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, separator))
			// Shrink the window to the overlap budget, and further if the
			// incoming unit still would not fit.
			for len(current) > 0 && (total > overlap || total+len(unit)+len(separator) > size) {
				total -= len(current[0])
				if len(current) > 1 {
					total -= len(separator)
				}
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += len(separator)
		}
		current = append(current, unit)
		total += len(unit)
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, separator))
	}
	return chunks
}

// Sanitize strips NUL bytes that upset both the persistence layer and the
// embedding endpoint. Fetched source text goes through here before chunking.
func Sanitize(text string) string {
	return strings.ReplaceAll(text, "\x00", "")
}
