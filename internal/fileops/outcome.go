// Package fileops applies bulk move, copy, delete and rename operations to
// lists of paths. Every item is attempted; failures are collected, never
// fatal to the batch.
package fileops

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Outcome lists the paths that succeeded and the messages of those that failed
type Outcome struct {
	SuccessPaths []string `json:"successPaths"`
	Errors       []string `json:"errors"`
}

func (o *Outcome) succeed(path string) {
	o.SuccessPaths = append(o.SuccessPaths, path)
}

func (o *Outcome) fail(format string, args ...any) {
	o.Errors = append(o.Errors, fmt.Sprintf(format, args...))
}

func (o *Outcome) failed(path string, err error) {
	o.fail("`%s` Failed, reason: %v", path, err)
}

// Merge appends other's results to o
func (o *Outcome) Merge(other Outcome) {
	o.SuccessPaths = append(o.SuccessPaths, other.SuccessPaths...)
	o.Errors = append(o.Errors, other.Errors...)
}

// Normalize replaces nil lists with empty ones so they encode as []
func (o Outcome) Normalize() Outcome {
	if o.SuccessPaths == nil {
		o.SuccessPaths = []string{}
	}
	if o.Errors == nil {
		o.Errors = []string{}
	}
	return o
}

// Run splits items into contiguous partitions, processes each partition on
// its own goroutine with a private Outcome, and concatenates the partial
// outcomes in partition order. A panic while handling an item is reported
// as that item's failure.
func Run[T any](items []T, workers int, fn func(item T, out *Outcome)) Outcome {
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}
	if workers == 0 {
		return Outcome{}.Normalize()
	}

	partials := make([]Outcome, workers)
	chunk := (len(items) + workers - 1) / workers

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, len(items))
		if start >= end {
			continue
		}
		part := &partials[w]
		g.Go(func() error {
			for _, item := range items[start:end] {
				runItem(item, part, fn)
			}
			return nil
		})
	}
	_ = g.Wait()

	var out Outcome
	for _, p := range partials {
		out.Merge(p)
	}
	return out.Normalize()
}

func runItem[T any](item T, out *Outcome, fn func(item T, out *Outcome)) {
	defer func() {
		if r := recover(); r != nil {
			out.fail("`%s` Failed, reason: panic: %v", itemPath(item), r)
		}
	}()
	fn(item, out)
}

func itemPath(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case RenameItem:
		return v.Path
	}
	return fmt.Sprint(item)
}
