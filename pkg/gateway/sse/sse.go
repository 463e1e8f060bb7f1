// Package sse writes server-sent event streams.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	nextID  uint64
}

// New starts an event stream on w: it sets the stream headers and commits a
// 200 status. It fails before writing anything if w cannot flush.
func New(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &Writer{w: w, flusher: f}, nil
}

// Send writes one event with a JSON payload. Events are numbered from 1.
func (sw *Writer) Send(event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.nextID++
	if _, err := fmt.Fprintf(sw.w, "id: %d\nevent: %s\ndata: %s\n\n", sw.nextID, event, b); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Comment writes a comment line, which clients ignore. Used as a keepalive.
func (sw *Writer) Comment(text string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	text = strings.ReplaceAll(text, "\n", " ")
	if _, err := fmt.Fprintf(sw.w, ": %s\n\n", text); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}
