package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docchat/internal/domain"
	"github.com/kailas-cloud/docchat/internal/domain/language"
	"github.com/kailas-cloud/docchat/internal/domain/prompt"
	"github.com/kailas-cloud/docchat/internal/logger"
	"github.com/kailas-cloud/docchat/internal/metrics"
)

// Stage names.
const (
	StageAnswer    = "answer"
	StageTranslate = "translate"
)

// Stage is one model invocation of the chain. Build receives the full output of the
// previous stage (empty for the first one) and returns the prompt to send.
type Stage struct {
	Name  string
	Build func(input string) prompt.Prompt
}

// planStages lists the stages for one request: the answer always, followed by a
// translation when lang is not the default language.
func planStages(answer prompt.Prompt, lang, defaultLang language.Language) []Stage {
	stages := []Stage{{
		Name:  StageAnswer,
		Build: func(string) prompt.Prompt { return answer },
	}}
	if !lang.Is(defaultLang) {
		stages = append(stages, Stage{
			Name:  StageTranslate,
			Build: func(input string) prompt.Prompt { return prompt.Translation(input, lang) },
		})
	}
	return stages
}

// runChain executes stages in order. Every stage but the last is buffered and feeds the
// next; only the last stage reaches sink. Any stage failure fails the whole chain.
func runChain(ctx context.Context, model Streamer, stages []Stage, sink Sink) (string, error) {
	if len(stages) == 0 {
		return "", fmt.Errorf("empty chain: %w", domain.ErrGeneration)
	}

	var input string
	for i, st := range stages {
		var out Sink
		if i == len(stages)-1 {
			out = sink
		}
		text, err := runStage(ctx, model, st, input, out)
		if err != nil {
			return "", domain.NewStageError(st.Name, err)
		}
		input = text
	}
	return input, nil
}

func runStage(ctx context.Context, model Streamer, st Stage, input string, sink Sink) (string, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	log.Debug("stage started", zap.String("stage", st.Name), zap.Int("input_len", len(input)))

	text, err := streamStage(ctx, model, st, input, sink)

	status := "success"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	metrics.StageDuration.WithLabelValues(st.Name, status).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Warn("stage failed", zap.String("stage", st.Name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", err
	}
	log.Debug("stage finished", zap.String("stage", st.Name), zap.Int("output_len", len(text)))
	return text, nil
}

func streamStage(ctx context.Context, model Streamer, st Stage, input string, sink Sink) (string, error) {
	stream, err := model.Stream(ctx, st.Build(input))
	if err != nil {
		return "", fmt.Errorf("open stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	return relay(ctx, stream, sink, st.Name)
}
