// Package events delivers named events from background jobs to whoever is
// listening: the desktop runtime, SSE clients, or a test recorder.
package events

import (
	"sync"
)

// Event names the UI listens for
const (
	ScanProgress      = "scan-progress"
	ScanResult        = "scan-result"
	MoveFilesResult   = "move-files-result"
	DeleteFilesResult = "delete-files-result"
	RenameExtResult   = "rename-ext-result"
	SaveResultDone    = "save-result-done"
	JobFinished       = "job-finished"
)

// Emitter publishes an event. Implementations must not block for long.
type Emitter interface {
	Emit(name string, payload any)
}

// EmitterFunc adapts a function to an Emitter
type EmitterFunc func(name string, payload any)

// Emit calls f(name, payload)
func (f EmitterFunc) Emit(name string, payload any) { f(name, payload) }

// Discard drops every event
var Discard Emitter = EmitterFunc(func(string, any) {})

// Multi sends every event to each emitter in order
type Multi []Emitter

// Emit forwards the event to every emitter
func (m Multi) Emit(name string, payload any) {
	for _, e := range m {
		if e != nil {
			e.Emit(name, payload)
		}
	}
}

// Event is one emitted event
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// subscriber wraps a channel with safe close handling
type subscriber struct {
	ch        chan Event
	closeOnce sync.Once
}

func (sub *subscriber) close() {
	sub.closeOnce.Do(func() { close(sub.ch) })
}

// Broadcaster fans events out to any number of subscribers without stalling
// the sender. A subscriber that falls behind loses progress events; if it
// has no room for any other event it is disconnected, so it can reconnect
// and reload state instead of waiting for a result that never comes.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel; it is safe to call twice.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, max(buffer, 1))}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		sub.close()
	}
}

// Emit sends the event to every subscriber with room in its buffer
func (b *Broadcaster) Emit(name string, payload any) {
	ev := Event{Name: name, Payload: payload}

	// Sends happen under the read lock so a concurrent unsubscribe cannot
	// close a channel mid-send
	var lagging []*subscriber
	b.mu.RLock()
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			if name != ScanProgress {
				lagging = append(lagging, sub)
			}
		}
	}
	b.mu.RUnlock()

	if len(lagging) == 0 {
		return
	}
	b.mu.Lock()
	for _, sub := range lagging {
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			sub.close()
		}
	}
	b.mu.Unlock()
}

// Subscribers returns the number of current subscribers
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscribers get a closed
// channel straight away.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for sub := range b.subs {
		sub.close()
		delete(b.subs, sub)
	}
}

// Recorder keeps every event it receives. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Emit records the event
func (r *Recorder) Emit(name string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, Event{Name: name, Payload: payload})
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns the recorded events with the given name
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// Notify is signalled after every recorded event
func (r *Recorder) Notify() <-chan struct{} {
	return r.notify
}
