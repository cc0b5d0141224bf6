package engine

import (
	"fmt"
	"io"

	"github.com/lyallcooper/sieve/internal/collate"
)

// writeGroups writes one block per group, the reference item first
func writeGroups[E collate.Pather](w io.Writer, title string, groups []collate.Group[E], line func(E) string) error {
	if _, err := fmt.Fprintf(w, "%s: %d groups\n", title, len(groups)); err != nil {
		return err
	}
	for _, g := range groups {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		if g.Reference != nil {
			if _, err := fmt.Fprintf(w, "Reference: %s\n", line(*g.Reference)); err != nil {
				return err
			}
		}
		for _, e := range g.Items {
			if _, err := fmt.Fprintln(w, line(e)); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeList writes a flat result list
func writeList[E collate.Pather](w io.Writer, title string, entries []E, line func(E) string) error {
	if _, err := fmt.Fprintf(w, "%s: %d\n", title, len(entries)); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, line(e)); err != nil {
			return err
		}
	}
	return nil
}
