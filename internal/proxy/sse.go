package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/launchdarkly/eventsource"
)

// sseEvent adapts a named JSON payload to eventsource.Event.
type sseEvent struct {
	name string
	data string
}

func (e sseEvent) Id() string    { return "" }
func (e sseEvent) Event() string { return e.name }
func (e sseEvent) Data() string  { return e.data }

// SSEWriter writes Server-Sent Events frames. Headers are committed with the first frame,
// so callers can still answer with a plain JSON error until then.
type SSEWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	encoder *eventsource.Encoder
	started bool
}

// NewSSEWriter creates a writer on w.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	return &SSEWriter{
		w:       w,
		rc:      http.NewResponseController(w),
		encoder: eventsource.NewEncoder(w, false),
	}
}

// Started reports whether any frame was written.
func (s *SSEWriter) Started() bool {
	return s.started
}

// WriteEvent writes an "event: name" frame with payload encoded as JSON data.
func (s *SSEWriter) WriteEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	return s.write(sseEvent{name: name, data: string(data)})
}

// WriteDone writes the terminal "data: [DONE]" frame.
func (s *SSEWriter) WriteDone() error {
	return s.write(sseEvent{data: "[DONE]"})
}

func (s *SSEWriter) write(event sseEvent) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		// Disable response buffering in reverse proxies such as nginx.
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	if err := s.encoder.Encode(event); err != nil {
		return err
	}
	// ResponseController unwraps middleware response writers to reach the flusher.
	return s.rc.Flush()
}
