package jobs

import "sync"

// SetupState is the state of a one-shot setup step
type SetupState int

const (
	Uninitialized SetupState = iota
	Initialized
)

// OneShot runs a setup step at most once. Later calls are no-ops.
type OneShot struct {
	mu    sync.Mutex
	state SetupState
}

// Do runs fn if the step has not run yet and reports whether it ran.
// fn runs under the lock, so it must be quick.
func (o *OneShot) Do(fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == Initialized {
		return false
	}
	fn()
	o.state = Initialized
	return true
}

// State returns the current state
func (o *OneShot) State() SetupState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}
