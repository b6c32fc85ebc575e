package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docchat/internal/domain"
	"github.com/kailas-cloud/docchat/internal/domain/prompt"
	"github.com/kailas-cloud/docchat/internal/metrics"
)

var (
	_ domain.ChatModel     = (*Chat)(nil)
	_ domain.HealthChecker = (*Chat)(nil)
)

const (
	defaultTemperature = 0.3
	defaultMaxRetries  = 2
	defaultBackoff     = 500 * time.Millisecond
)

// ChatConfig holds the chat model settings.
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	// MaxRetries bounds the extra attempts after a transient failure. Negative disables retries.
	MaxRetries int
	// Backoff is the delay before the first retry; it doubles on every further retry.
	Backoff time.Duration
	Logger  *zap.Logger
}

// Chat is a language model reached over an OpenAI-compatible chat completions API.
type Chat struct {
	client      *openai.Client
	model       string
	temperature float32
	maxRetries  int
	backoff     time.Duration
	logger      *zap.Logger
}

// NewChat creates a chat model client. Zero values fall back to temperature 0.3 and two retries.
func NewChat(cfg *ChatConfig) *Chat {
	c := &Chat{
		client:      newClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		backoff:     cfg.Backoff,
		logger:      cfg.Logger,
	}
	if c.temperature == 0 {
		c.temperature = defaultTemperature
	}
	switch {
	case c.maxRetries == 0:
		c.maxRetries = defaultMaxRetries
	case c.maxRetries < 0:
		c.maxRetries = 0
	}
	if c.backoff <= 0 {
		c.backoff = defaultBackoff
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

func (c *Chat) request(p prompt.Prompt) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(p))
	for _, m := range p {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
	}
}

// Stream opens a streaming completion. Opening is retried on transient failures;
// once the first byte is accepted the stream is never replayed.
func (c *Chat) Stream(ctx context.Context, p prompt.Prompt) (domain.ChunkStream, error) {
	req := c.request(p)
	var stream *openai.ChatCompletionStream
	err := c.withRetry(ctx, "stream", func() error {
		var openErr error
		stream, openErr = c.client.CreateChatCompletionStream(ctx, req)
		return openErr
	})
	if err != nil {
		return nil, err
	}
	return &chunkStream{stream: stream, model: c.model}, nil
}

// Complete runs a non-streaming completion and returns the full text.
func (c *Chat) Complete(ctx context.Context, p prompt.Prompt) (string, error) {
	req := c.request(p)
	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, "complete", func() error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion: %w", domain.ErrGeneration)
	}
	return resp.Choices[0].Message.Content, nil
}

// HealthCheck verifies API availability via ListModels.
func (c *Chat) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (c *Chat) withRetry(ctx context.Context, kind string, call func() error) error {
	delay := c.backoff
	for attempt := 0; ; attempt++ {
		err := call()
		if err == nil {
			metrics.ModelRequestsTotal.WithLabelValues(c.model, kind, "success").Inc()
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.ModelRequestsTotal.WithLabelValues(c.model, kind, "canceled").Inc()
			return fmt.Errorf("chat %s: %w: %w", kind, ctxErr, domain.ErrGeneration)
		}
		if attempt >= c.maxRetries || !isTransient(err) {
			metrics.ModelRequestsTotal.WithLabelValues(c.model, kind, "error").Inc()
			return describeAPIError("chat", err, domain.ErrGeneration)
		}

		metrics.ModelRetriesTotal.WithLabelValues(c.model).Inc()
		c.logger.Warn("chat model call failed, retrying",
			zap.String("model", c.model),
			zap.String("kind", kind),
			zap.Int("attempt", attempt+1),
			zap.Int("status", statusCode(err)),
			zap.Duration("backoff", delay),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			metrics.ModelRequestsTotal.WithLabelValues(c.model, kind, "canceled").Inc()
			return fmt.Errorf("chat %s: %w: %w", kind, ctx.Err(), domain.ErrGeneration)
		case <-t.C:
		}
		delay *= 2
	}
}

type chunkStream struct {
	stream *openai.ChatCompletionStream
	model  string
}

func (s *chunkStream) Recv() (string, error) {
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return "", io.EOF
	}
	if err != nil {
		return "", describeAPIError("chat stream", err, domain.ErrGeneration)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *chunkStream) Close() error {
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("close chat stream: %w", err)
	}
	return nil
}
