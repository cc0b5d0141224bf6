package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	sseBuffer    = 256
	sseKeepAlive = 15 * time.Second
)

// EventStream handles GET /events. Every event the orchestrator emits is
// forwarded as an SSE event of the same name with a JSON payload. A
// comma-separated ?events= list narrows the stream.
func (h *Handler) EventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "SSE not supported")
		return
	}

	var only map[string]bool
	if names := r.URL.Query().Get("events"); names != "" {
		only = make(map[string]bool)
		for _, n := range strings.Split(names, ",") {
			only[strings.TrimSpace(n)] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	updates, unsubscribe := h.events.Subscribe(sseBuffer)
	defer unsubscribe()

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-updates:
			if !ok {
				// Shutdown, or this client fell too far behind to get a
				// result; either way it should reconnect and reload
				h.sendEvent(w, flusher, "close", `{}`)
				return
			}
			if only != nil && !only[ev.Name] {
				continue
			}
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				h.log.Warn("failed to encode event", "event", ev.Name, "error", err)
				continue
			}
			h.sendEvent(w, flusher, ev.Name, string(data))
		}
	}
}

func (h *Handler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
