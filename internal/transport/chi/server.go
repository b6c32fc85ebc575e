package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docchat/internal/domain"
	"github.com/kailas-cloud/docchat/internal/logger"
	chatuc "github.com/kailas-cloud/docchat/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/docchat/internal/usecase/health"
)

const maxBodyBytes = 64 << 10

// ChatService admits callers and answers questions.
type ChatService interface {
	Authorize(ctx context.Context) (domain.Principal, domain.RateDecision, error)
	Ask(ctx context.Context, req *chatuc.Request, sink chatuc.Sink) (chatuc.Result, error)
}

// TextOptionService rewrites message text.
type TextOptionService interface {
	Apply(ctx context.Context, text, option string) (string, error)
}

// HealthService reports component health.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// Server serves the docchat HTTP API.
type Server struct {
	chat    ChatService
	textops TextOptionService
	health  HealthService
}

// NewServer creates an HTTP API server.
func NewServer(chat ChatService, textops TextOptionService, health HealthService) *Server {
	return &Server{chat: chat, textops: textops, health: health}
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.Post("/api/message", s.PostMessage)
	r.Post("/api/text-options", s.PostTextOption)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// MessageRequest is the body of POST /api/message. fileId is accepted as an alias of documentId.
type MessageRequest struct {
	DocumentID string `json:"documentId"`
	FileID     string `json:"fileId"`
	Message    string `json:"message"`
	Language   string `json:"language"`
}

// TextOptionRequest is the body of POST /api/text-options.
type TextOptionRequest struct {
	Text   string `json:"text"`
	Option string `json:"option"`
}

// TextOptionResponse is the result of a text option.
type TextOptionResponse struct {
	Content string `json:"content"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// PostMessage handles POST /api/message: 401, 429, 400, 404 and pre-stream 500 are JSON
// errors; once the first chunk is out, failures are signaled in the stream.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}

	var body MessageRequest
	if err := decodeBody(w, r, &body); err != nil {
		handleDomainError(w, r, err)
		return
	}
	docID := body.DocumentID
	if docID == "" {
		docID = body.FileID
	} else if body.FileID != "" && body.FileID != docID {
		handleDomainError(w, r, domain.NewValidationError("documentId", "conflicts with fileId"))
		return
	}

	stream := newStreamWriter(w, r)
	res, err := s.chat.Ask(r.Context(), &chatuc.Request{
		DocumentID: docID,
		Message:    body.Message,
		Language:   body.Language,
	}, stream)
	if err != nil {
		if !stream.Started() {
			handleDomainError(w, r, err)
			return
		}
		logger.FromContext(r.Context()).Error("stream aborted", zap.String("document_id", docID), zap.Error(err))
		stream.Fail(CodeInternalError, safeDomainMessage(err))
		return
	}
	stream.Finish(doneEvent{TurnID: res.AssistantTurnID, Persisted: res.Persisted})
}

// PostTextOption handles POST /api/text-options.
func (s *Server) PostTextOption(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}

	var body TextOptionRequest
	if err := decodeBody(w, r, &body); err != nil {
		handleDomainError(w, r, err)
		return
	}

	out, err := s.textops.Apply(r.Context(), body.Text, body.Option)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TextOptionResponse{Content: out})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// admit runs the principal and rate limit checks, writing the error response on rejection.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) bool {
	_, decision, err := s.chat.Authorize(r.Context())
	setRateLimitHeaders(w, decision)
	if err != nil {
		handleDomainError(w, r, err)
		return false
	}
	return true
}

// setRateLimitHeaders exposes a limiter decision. A zero decision (no principal, no limiter) sets nothing.
func setRateLimitHeaders(w http.ResponseWriter, d domain.RateDecision) {
	if d.ResetAt.IsZero() || d.Remaining < 0 {
		return
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.Allowed {
		secs := int(time.Until(d.ResetAt).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(max(1, secs)))
	}
}

// decodeBody reads one JSON object of at most maxBodyBytes. Any failure is a validation error.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return domain.NewValidationError("body", "too large")
		case errors.Is(err, io.EOF):
			return domain.NewValidationError("body", "is required")
		default:
			return domain.NewValidationError("body", "must be a JSON object")
		}
	}
	return nil
}
