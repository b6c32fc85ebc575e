package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// streamWriter relays answer chunks to the client. Nothing is committed (status, headers)
// until the first chunk, so a failure before it can still become a JSON error response.
type streamWriter interface {
	Write(chunk string) error
	Started() bool
	// Finish completes a successful stream, committing it if no chunk was written.
	Finish(done doneEvent)
	// Fail signals a mid-stream failure to the client.
	Fail(code ErrorCode, message string)
}

type doneEvent struct {
	TurnID    string `json:"turnId,omitempty"`
	Persisted bool   `json:"persisted"`
}

// newStreamWriter picks SSE when the client asks for text/event-stream, chunked plain text otherwise.
func newStreamWriter(w http.ResponseWriter, r *http.Request) streamWriter {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return &sseStream{w: w, rc: http.NewResponseController(w)}
	}
	return &plainStream{w: w, rc: http.NewResponseController(w)}
}

// plainStream writes raw UTF-8 chunks with chunked transfer encoding.
type plainStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func (s *plainStream) commit() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	s.w.WriteHeader(http.StatusOK)
}

func (s *plainStream) Write(chunk string) error {
	s.commit()
	if _, err := s.w.Write([]byte(chunk)); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flush chunk: %w", err)
	}
	return nil
}

func (s *plainStream) Started() bool { return s.started }

func (s *plainStream) Finish(doneEvent) { s.commit() }

// Fail aborts the connection: plain text has no in-band error signal, and a clean
// close would look like a complete answer.
func (s *plainStream) Fail(ErrorCode, string) {
	panic(http.ErrAbortHandler)
}

// sseStream writes "delta", "done" and "error" events.
type sseStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func (s *sseStream) commit() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseStream) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write %s event: %w", name, err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flush %s event: %w", name, err)
	}
	return nil
}

func (s *sseStream) Write(chunk string) error {
	s.commit()
	return s.event("delta", map[string]string{"content": chunk})
}

func (s *sseStream) Started() bool { return s.started }

func (s *sseStream) Finish(done doneEvent) {
	s.commit()
	_ = s.event("done", done)
}

func (s *sseStream) Fail(code ErrorCode, message string) {
	s.commit()
	_ = s.event("error", ErrorResponse{Code: code, Message: message})
}
