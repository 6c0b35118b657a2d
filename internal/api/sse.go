package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sseKeepAlive is how often an idle stream sends a comment line so proxies
// keep the connection open.
const sseKeepAlive = 30 * time.Second

// JobStream handles GET /api/jobs/stream (SSE endpoint)
func (h *Handler) JobStream(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Subscribe before reading the snapshot so no transition is missed
	eventCh := h.runner.Subscribe()
	defer h.runner.Unsubscribe(eventCh)

	initial := map[string]interface{}{
		"type":   "init",
		"active": h.runner.Active(),
	}
	if h.history != nil {
		if recent, err := h.history.ListJobs(defaultHistoryLimit); err == nil {
			initial["jobs"] = recent
		}
	}
	initialData, _ := json.Marshal(initial)
	fmt.Fprintf(w, "data: %s\n\n", initialData)
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	// Stream events
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, ok := <-eventCh:
			if !ok {
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				continue
			}

			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
