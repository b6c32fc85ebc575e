package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docchat/internal/domain"
	domconv "github.com/kailas-cloud/docchat/internal/domain/conversation"
	domdoc "github.com/kailas-cloud/docchat/internal/domain/document"
	"github.com/kailas-cloud/docchat/internal/domain/language"
	dompassage "github.com/kailas-cloud/docchat/internal/domain/passage"
	"github.com/kailas-cloud/docchat/internal/domain/prompt"
	"github.com/kailas-cloud/docchat/internal/logger"
	"github.com/kailas-cloud/docchat/internal/metrics"
)

// MaxMessageLength bounds a question in bytes.
const MaxMessageLength = 8 * 1024

const (
	defaultTopK           = 3
	defaultHistoryLimit   = 6
	defaultRequestTimeout = 60 * time.Second
	defaultPersistTimeout = 5 * time.Second
)

// Config tunes the pipeline.
type Config struct {
	TopK            int
	HistoryLimit    int
	DefaultLanguage language.Language
	Languages       []language.Language
	// RequestTimeout bounds one exchange from validation to the last relayed chunk.
	RequestTimeout time.Duration
	// PersistTimeout bounds the assistant turn write, which ignores caller cancellation.
	PersistTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = defaultTopK
	}
	if c.HistoryLimit < 0 {
		c.HistoryLimit = 0
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = language.Default
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = defaultPersistTimeout
	}
}

// Request is one question about a document.
type Request struct {
	DocumentID string
	Message    string
	Language   string
}

// Result describes a completed exchange.
type Result struct {
	Text            string
	UserTurnID      string
	AssistantTurnID string
	// Persisted is false when the answer was delivered but the assistant turn write failed.
	Persisted bool
}

// Service runs the question answering pipeline.
type Service struct {
	docs      DocumentReader
	conv      Conversation
	retriever Retriever
	model     Streamer
	limiter   RateLimiter
	clock     *domconv.Clock
	cfg       Config
}

// New creates a chat service. limiter may be nil (no rate limiting).
func New(
	docs DocumentReader, conv Conversation, retriever Retriever,
	model Streamer, limiter RateLimiter, cfg Config,
) *Service {
	cfg.applyDefaults()
	return &Service{
		docs:      docs,
		conv:      conv,
		retriever: retriever,
		model:     model,
		limiter:   limiter,
		clock:     domconv.NewClock(nil),
		cfg:       cfg,
	}
}

// WithClock replaces the turn timestamp source.
func (s *Service) WithClock(c *domconv.Clock) *Service {
	s.clock = c
	return s
}

// Authorize admits the principal in ctx: no principal is ErrUnauthorized, an exhausted
// window is ErrRateLimited. The decision is returned in both cases it is known.
func (s *Service) Authorize(ctx context.Context) (domain.Principal, domain.RateDecision, error) {
	p, ok := domain.PrincipalFromContext(ctx)
	if !ok {
		return domain.Principal{}, domain.RateDecision{}, domain.ErrUnauthorized
	}
	if s.limiter == nil {
		return p, domain.RateDecision{Allowed: true, Remaining: -1}, nil
	}

	d, err := s.limiter.TryAcquire(ctx, p.UserID)
	if err != nil {
		return p, domain.RateDecision{}, fmt.Errorf("rate limiter: %w", err)
	}
	if !d.Allowed {
		return p, d, domain.ErrRateLimited
	}
	return p, d, nil
}

// Validate checks a request and returns the normalized language.
func (s *Service) Validate(req *Request) (language.Language, error) {
	if err := domdoc.ValidateID(req.DocumentID); err != nil {
		return "", domain.NewValidationError("documentId", err.Error())
	}
	if strings.TrimSpace(req.Message) == "" {
		return "", domain.NewValidationError("message", "is required")
	}
	if len(req.Message) > MaxMessageLength {
		return "", domain.NewValidationError("message", fmt.Sprintf("exceeds %d bytes", MaxMessageLength))
	}
	if !utf8.ValidString(req.Message) {
		return "", domain.NewValidationError("message", "must be valid UTF-8")
	}

	raw := req.Language
	if strings.TrimSpace(raw) == "" {
		raw = string(s.cfg.DefaultLanguage)
	}
	lang, err := language.Parse(raw, s.cfg.Languages)
	if err != nil {
		return "", domain.NewValidationError("language", err.Error())
	}
	return lang, nil
}

// Ask answers req for the principal in ctx, relaying the user-visible text to sink.
//
// Nothing reaches sink unless the request is valid, the document is owned by the principal
// and the question has been recorded. An error returned after sink received a chunk means
// the stream broke mid-way; the assistant turn is then never recorded.
func (s *Service) Ask(ctx context.Context, req *Request, sink Sink) (res Result, err error) {
	defer func() { metrics.ChatRequestsTotal.WithLabelValues(outcome(err, res)).Inc() }()

	p, ok := domain.PrincipalFromContext(ctx)
	if !ok {
		return Result{}, domain.ErrUnauthorized
	}
	lang, err := s.Validate(req)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	log := logger.FromContext(ctx).With(zap.String("document_id", req.DocumentID))

	if _, err = s.docs.FindOwned(ctx, req.DocumentID, p.UserID); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("find document: %w", err)
	}

	userTurn, err := domconv.New(req.DocumentID, p.UserID, domconv.RoleUser, req.Message, s.clock.Now())
	if err != nil {
		return Result{}, domain.NewValidationError("message", err.Error())
	}
	if err = s.conv.Append(ctx, &userTurn); err != nil {
		return Result{}, fmt.Errorf("record user turn: %w: %w", domain.ErrPersistence, err)
	}
	log.Debug("user turn recorded", zap.String("turn_id", userTurn.ID()))

	passages, history, err := s.gather(ctx, req.DocumentID, req.Message, userTurn.ID())
	if err != nil {
		return Result{UserTurnID: userTurn.ID()}, err
	}
	log.Debug("context gathered", zap.Int("passages", len(passages)), zap.Int("history", len(history)))

	stages := planStages(prompt.Answer(passages, history, req.Message), lang, s.cfg.DefaultLanguage)
	text, err := runChain(ctx, s.model, stages, sink)
	if err != nil {
		return Result{UserTurnID: userTurn.ID()}, err
	}

	res = Result{Text: text, UserTurnID: userTurn.ID()}
	assistantTurn, err := domconv.New(
		req.DocumentID, p.UserID, domconv.RoleAssistant, text, s.clock.After(userTurn.CreatedAt()),
	)
	if err != nil {
		return res, fmt.Errorf("build assistant turn: %w", err)
	}
	res.AssistantTurnID = assistantTurn.ID()
	res.Persisted = s.recordAssistant(ctx, &assistantTurn, log)
	return res, nil
}

// gather runs retrieval and history loading concurrently. The current user turn is
// dropped from the history so the question is not repeated as its own context.
func (s *Service) gather(
	ctx context.Context, documentID, question, currentTurnID string,
) ([]dompassage.Passage, []domconv.Turn, error) {
	var (
		passages []dompassage.Passage
		history  []domconv.Turn
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		passages, err = s.retriever.Retrieve(gctx, documentID, question, s.cfg.TopK)
		if err != nil && !errors.Is(err, domain.ErrRetrieval) {
			err = fmt.Errorf("%w: %w", domain.ErrRetrieval, err)
		}
		return err
	})
	g.Go(func() error {
		if s.cfg.HistoryLimit == 0 {
			return nil
		}
		turns, err := s.conv.Recent(gctx, documentID, s.cfg.HistoryLimit+1)
		if err != nil {
			return fmt.Errorf("load history: %w: %w", domain.ErrPersistence, err)
		}
		history = boundHistory(turns, currentTurnID, s.cfg.HistoryLimit)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err //nolint:wrapcheck // both branches wrap with a domain sentinel
	}
	return passages, history, nil
}

// boundHistory removes excludeID and keeps the newest limit turns, oldest first.
func boundHistory(turns []domconv.Turn, excludeID string, limit int) []domconv.Turn {
	out := make([]domconv.Turn, 0, len(turns))
	for i := range turns {
		if turns[i].ID() == excludeID {
			continue
		}
		out = append(out, turns[i])
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// recordAssistant writes the answer on a context detached from caller cancellation.
// Failure is logged and counted; the delivered output stands.
func (s *Service) recordAssistant(ctx context.Context, t *domconv.Turn, log *zap.Logger) bool {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancel()

	if err := s.conv.Append(wctx, t); err != nil {
		metrics.AssistantPersistFailuresTotal.Inc()
		log.Error("assistant turn not recorded after delivery",
			zap.String("turn_id", t.ID()),
			zap.Int("text_len", len(t.Text())),
			zap.Error(err),
		)
		return false
	}
	return true
}

func outcome(err error, res Result) string {
	switch {
	case err == nil && !res.Persisted:
		return "delivered_unpersisted"
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence_error"
	case errors.Is(err, domain.ErrRetrieval):
		return "retrieval_error"
	case errors.Is(err, ErrCallerGone):
		return "caller_gone"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrGeneration):
		return "generation_error"
	default:
		return "error"
	}
}
