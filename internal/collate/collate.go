// Package collate turns engine groupings into the ordered
// (reference, members) lists sent to the UI.
package collate

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Pather is implemented by every result entry
type Pather interface {
	GetPath() string
}

// Group is one result group. It marshals as the two element array
// [reference|null, items].
type Group[E any] struct {
	Reference *E
	Items     []E
}

// MarshalJSON encodes the group as [reference, items]
func (g Group[E]) MarshalJSON() ([]byte, error) {
	items := g.Items
	if items == nil {
		items = []E{}
	}
	return json.Marshal([2]any{g.Reference, items})
}

// UnmarshalJSON decodes [reference, items]
func (g *Group[E]) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("result group: %w", err)
	}
	g.Reference = nil
	if string(raw[0]) != "null" && len(raw[0]) > 0 {
		var ref E
		if err := json.Unmarshal(raw[0], &ref); err != nil {
			return fmt.Errorf("result group reference: %w", err)
		}
		g.Reference = &ref
	}
	return json.Unmarshal(raw[1], &g.Items)
}

// Referenced is one match group anchored on an item from a reference directory
type Referenced[E any] struct {
	Reference E
	Others    []E
}

// Grouping is the engine side of a grouped result. Exactly one of Groups or
// Referenced is consulted, depending on UseReference.
type Grouping[K comparable, E Pather] struct {
	UseReference bool
	Groups       map[K][][]E
	Referenced   map[K][]Referenced[E]
}

// Collate flattens a grouping into an ordered list of result groups.
// Members are ordered by ComparePaths; groups by their first member.
func Collate[K comparable, E Pather](g Grouping[K, E]) []Group[E] {
	var out []Group[E]

	if g.UseReference {
		for _, refs := range g.Referenced {
			for _, r := range refs {
				ref := r.Reference
				items := make([]E, 0, len(r.Others))
				for _, e := range r.Others {
					if e.GetPath() != ref.GetPath() {
						items = append(items, e)
					}
				}
				SortEntries(items)
				out = append(out, Group[E]{Reference: &ref, Items: items})
			}
		}
	} else {
		for _, groups := range g.Groups {
			for _, members := range groups {
				items := slices.Clone(members)
				SortEntries(items)
				out = append(out, Group[E]{Items: items})
			}
		}
	}

	SortGroups(out)
	return out
}

// SortEntries orders entries by ComparePaths
func SortEntries[E Pather](entries []E) {
	slices.SortStableFunc(entries, func(a, b E) int {
		return ComparePaths(a.GetPath(), b.GetPath())
	})
}

// SortGroups orders groups by first member path, then reference path
func SortGroups[E Pather](groups []Group[E]) {
	slices.SortStableFunc(groups, func(a, b Group[E]) int {
		if c := ComparePaths(firstPath(a), firstPath(b)); c != 0 {
			return c
		}
		return ComparePaths(refPath(a), refPath(b))
	})
}

func firstPath[E Pather](g Group[E]) string {
	if len(g.Items) == 0 {
		return refPath(g)
	}
	return g.Items[0].GetPath()
}

func refPath[E Pather](g Group[E]) string {
	if g.Reference == nil {
		return ""
	}
	return (*g.Reference).GetPath()
}

// ComparePaths compares two paths one component at a time, so a directory
// sorts right before its own children ("a/b" < "a/b/c" < "a/b-c").
func ComparePaths(a, b string) int {
	ac := splitPath(a)
	bc := splitPath(b)
	for i := 0; i < len(ac) && i < len(bc); i++ {
		if c := strings.Compare(ac[i], bc[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(ac) < len(bc):
		return -1
	case len(ac) > len(bc):
		return 1
	}
	return 0
}

func splitPath(p string) []string {
	p = filepath.ToSlash(filepath.Clean(p))
	parts := strings.Split(p, "/")
	out := parts[:0]
	for i, part := range parts {
		if part == "" && i != 0 {
			continue
		}
		out = append(out, part)
	}
	return out
}
