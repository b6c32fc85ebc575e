package textop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docchat/internal/domain"
	"github.com/kailas-cloud/docchat/internal/domain/prompt"
	domtextop "github.com/kailas-cloud/docchat/internal/domain/textop"
	"github.com/kailas-cloud/docchat/internal/logger"
)

// Completer runs a non-streaming model completion.
type Completer interface {
	Complete(ctx context.Context, p prompt.Prompt) (string, error)
}

// Service rewrites message text (summary, paraphrase) outside the conversation.
// Stored turns are never modified.
type Service struct {
	model   Completer
	timeout time.Duration
}

// New creates a text option service. timeout <= 0 means 60s.
func New(model Completer, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{model: model, timeout: timeout}
}

// Apply validates the input and returns the rewritten text.
func (s *Service) Apply(ctx context.Context, text, option string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.NewValidationError("text", "is required")
	}
	if len(text) > domtextop.MaxTextLength {
		return "", domain.NewValidationError("text", fmt.Sprintf("exceeds %d bytes", domtextop.MaxTextLength))
	}
	opt, err := domtextop.Parse(option)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUnsupportedOption, domain.NewValidationError("option", err.Error()))
	}

	var p prompt.Prompt
	switch opt {
	case domtextop.Summarize:
		p = prompt.Summarize(text)
	case domtextop.Paraphrase:
		p = prompt.Paraphrase(text)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.model.Complete(ctx, p)
	if err != nil {
		logger.FromContext(ctx).Warn("text option failed", zap.String("option", string(opt)), zap.Error(err))
		return "", domain.NewStageError(string(opt), err)
	}
	return out, nil
}
