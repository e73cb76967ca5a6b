package server

import (
	"fmt"
	"net/http"
)

// sseHeaders prepares a response for server-sent events. X-Accel-Buffering
// keeps nginx-style proxies from holding events back.
func sseHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// sseWrite frames one event and flushes it immediately
func sseWrite(w http.ResponseWriter, flusher http.Flusher, payload []byte) {
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
