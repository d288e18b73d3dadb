package sse

import (
	"fmt"
	"net/http"
	"strings"
)

// Event names on the chat stream. The vocabulary is typed rather than
// overloading content chunks with a reserved error prefix.
const (
	EventChunk = "chunk"
	EventError = "error"
	EventEnd   = "end"
)

// Stream is a one-way, per-turn server-to-client push channel. There is no
// buffering or replay: a write failure means the client is gone and the turn
// should be treated as cancelled.
type Stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func NewStream(w http.ResponseWriter) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported by response writer")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{w: w, flusher: flusher}, nil
}

func (s *Stream) Chunk(text string) error {
	return s.writeEvent(EventChunk, text)
}

func (s *Stream) Error(msg string) error {
	return s.writeEvent(EventError, msg)
}

func (s *Stream) End() error {
	return s.writeEvent(EventEnd, "done")
}

// Ping keeps a proxy from timing out the connection while the provider is
// quiet.
func (s *Stream) Ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// writeEvent encodes newlines inside data as consecutive data: lines per the
// SSE framing rules; the consumer joins them back with "\n".
func (s *Stream) writeEvent(event string, data string) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return err
	}
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
