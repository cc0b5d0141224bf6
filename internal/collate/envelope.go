package collate

import (
	"fmt"
	"slices"
)

// Envelope is the payload of the scan-result event
type Envelope struct {
	Cmd     string `json:"cmd"`
	List    any    `json:"list"`
	Message string `json:"message"`
}

// Summary builds the result message: a count line followed by the engine's
// own diagnostic text.
func Summary(count int, noun, engineText string) string {
	return fmt.Sprintf("Found %d %s\n%s", count, noun, engineText)
}

// Flat returns a copy of a flat result list sorted by path
func Flat[E Pather](entries []E) []E {
	if entries == nil {
		return []E{}
	}
	out := slices.Clone(entries)
	SortEntries(out)
	return out
}

// CountItems returns the number of members across all groups, references
// not included.
func CountItems[E any](groups []Group[E]) int {
	n := 0
	for _, g := range groups {
		n += len(g.Items)
	}
	return n
}
