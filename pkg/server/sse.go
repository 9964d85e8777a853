package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Sriram-PR/seo-audit/pkg/models"
)

// sseWriter frames events as text/event-stream and flushes each one
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &sseWriter{w: w, flusher: flusher}, true
}

// start sends the response headers before the first event
func (s *sseWriter) start() {
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

// send writes one event. The JSON payload never contains raw newlines, so a single data line suffices.
func (s *sseWriter) send(ev models.Event) error {
	data, err := json.Marshal(ev.Payload())
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
