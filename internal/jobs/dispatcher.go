package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

var (
	// ErrJobActive is returned when a job of the same kind is still running
	ErrJobActive = errors.New("a job of this kind is already running")

	// ErrDispatcherClosed is returned once the dispatcher has shut down
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)

// DefaultMaxStack is the stack ceiling workers are guaranteed. Deep directory
// trees recurse in the engines.
const DefaultMaxStack = 1 << 30

// Dispatcher starts one goroutine per job and allows a single running job
// per kind.
type Dispatcher struct {
	log *slog.Logger

	mu     sync.Mutex
	active map[string]bool
	closed bool
	wg     sync.WaitGroup

	// OnPanic is called from the worker after a panic was recovered
	OnPanic func(kind string, v any)
}

// NewDispatcher creates a dispatcher. maxStack raises the runtime stack
// ceiling if it is above the current one.
func NewDispatcher(log *slog.Logger, maxStack int) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if maxStack > 0 {
		ensureMaxStack(maxStack)
	}
	return &Dispatcher{
		log:    log.With("component", "dispatcher"),
		active: make(map[string]bool),
	}
}

var stackMu sync.Mutex

func ensureMaxStack(n int) {
	stackMu.Lock()
	defer stackMu.Unlock()
	prev := debug.SetMaxStack(n)
	if prev > n {
		debug.SetMaxStack(prev)
	}
}

// Run starts fn on its own goroutine and returns without waiting for it.
func (d *Dispatcher) Run(kind string, fn func()) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if d.active[kind] {
		d.mu.Unlock()
		return fmt.Errorf("%s: %w", kind, ErrJobActive)
	}
	d.active[kind] = true
	d.wg.Add(1)
	d.mu.Unlock()

	go d.work(kind, fn)
	return nil
}

func (d *Dispatcher) work(kind string, fn func()) {
	defer func() {
		d.mu.Lock()
		delete(d.active, kind)
		d.mu.Unlock()
		d.wg.Done()
	}()
	defer func() {
		if v := recover(); v != nil {
			d.log.Error("job panicked", "kind", kind, "panic", v, "stack", string(debug.Stack()))
			if d.OnPanic != nil {
				d.OnPanic(kind, v)
			}
		}
	}()

	fn()
}

// Running reports whether a job of the given kind is in flight
func (d *Dispatcher) Running(kind string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active[kind]
}

// Close rejects new jobs. Running jobs are left alone; use Wait for them.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Wait blocks until every started job has returned
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
