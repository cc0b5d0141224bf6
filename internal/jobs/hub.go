package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyallcooper/sieve/internal/progress"
)

// Handle is what a worker gets when it starts: its id, its own cancellation
// token and the producer end of the shared progress queue.
type Handle struct {
	ID        string
	Kind      string
	StartedAt time.Time
	Token     *Token
	Progress  progress.Sink
}

// Hub owns the progress queue and the tokens of running jobs
type Hub struct {
	queue *Queue[progress.Sample]

	mu     sync.Mutex
	active map[string]*Handle
}

// NewHub creates a hub with an open progress queue
func NewHub() *Hub {
	return &Hub{
		queue:  NewQueue[progress.Sample](),
		active: make(map[string]*Handle),
	}
}

// Acquire registers a new job and hands out its token and progress sender.
// Every job gets a fresh token, so a stop aimed at an earlier job can never
// leak into this one.
func (h *Hub) Acquire(kind string) *Handle {
	handle := &Handle{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now(),
		Token:     NewToken(),
		Progress:  progress.SinkFunc(func(s progress.Sample) { h.queue.Send(s) }),
	}

	h.mu.Lock()
	h.active[handle.ID] = handle
	h.mu.Unlock()

	return handle
}

// Release forgets a finished job
func (h *Hub) Release(id string) {
	h.mu.Lock()
	delete(h.active, id)
	h.mu.Unlock()
}

// Stop cancels one job. It reports false when no such job is running.
func (h *Hub) Stop(id string) bool {
	h.mu.Lock()
	handle, ok := h.active[id]
	h.mu.Unlock()

	if !ok {
		return false
	}
	handle.Token.Cancel()
	return true
}

// StopAll cancels every running job and returns how many were signalled
func (h *Hub) StopAll() int {
	h.mu.Lock()
	handles := make([]*Handle, 0, len(h.active))
	for _, handle := range h.active {
		handles = append(handles, handle)
	}
	h.mu.Unlock()

	for _, handle := range handles {
		handle.Token.Cancel()
	}
	return len(handles)
}

// StopKind cancels every running job of a kind
func (h *Hub) StopKind(kind string) int {
	h.mu.Lock()
	var handles []*Handle
	for _, handle := range h.active {
		if handle.Kind == kind {
			handles = append(handles, handle)
		}
	}
	h.mu.Unlock()

	for _, handle := range handles {
		handle.Token.Cancel()
	}
	return len(handles)
}

// Active returns the ids of running jobs
func (h *Hub) Active() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.active))
	for id := range h.active {
		ids = append(ids, id)
	}
	return ids
}

// Progress is the consumer end of the progress queue
func (h *Hub) Progress() *Queue[progress.Sample] {
	return h.queue
}

// Close shuts the progress queue. The listener drains what is left and exits.
func (h *Hub) Close() {
	h.queue.Close()
}
