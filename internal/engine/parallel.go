package engine

import (
	"golang.org/x/sync/errgroup"
)

// parallel calls fn for every item on at most job.Threads goroutines.
// Results must be written to index i of a caller-owned slice. A panic in fn
// is recorded in msgs as that item's failure. It returns ErrStopped when the
// token was cancelled part way.
func parallel[T any](job Job, msgs *Messages, items []T, fn func(i int, item T)) error {
	var g errgroup.Group
	g.SetLimit(job.threads())
	for i, item := range items {
		if job.stopped() {
			break
		}
		g.Go(func() error {
			if !job.stopped() {
				runItem(msgs, i, item, fn)
			}
			return nil
		})
	}
	_ = g.Wait()

	if job.stopped() {
		return ErrStopped
	}
	return nil
}

func runItem[T any](msgs *Messages, i int, item T, fn func(i int, item T)) {
	defer func() {
		if r := recover(); r != nil {
			msgs.fail("Internal error on item %d: %v", i, r)
		}
	}()
	fn(i, item)
}
