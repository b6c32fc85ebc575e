package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docchat/internal/domain"
	dompassage "github.com/kailas-cloud/docchat/internal/domain/passage"
	"github.com/kailas-cloud/docchat/internal/logger"
	"github.com/kailas-cloud/docchat/internal/metrics"
)

// Service retrieves the passages of a document most relevant to a question.
type Service struct {
	index Index
	embed Embedder
}

// New creates a retrieval service.
func New(index Index, embed Embedder) *Service {
	return &Service{index: index, embed: embed}
}

// Retrieve returns at most k passages of documentID ranked by relevance to query.
// A document without indexed chunks yields an empty slice. Every failure wraps domain.ErrRetrieval.
func (s *Service) Retrieve(
	ctx context.Context, documentID, query string, k int,
) ([]dompassage.Passage, error) {
	if k <= 0 {
		return nil, nil
	}

	emb, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %w", domain.ErrRetrieval, err)
	}

	passages, err := s.index.Nearest(ctx, documentID, emb.Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("nearest passages: %w: %w", domain.ErrRetrieval, err)
	}
	if len(passages) > k {
		passages = passages[:k]
	}

	metrics.RetrievedPassages.Observe(float64(len(passages)))
	logger.FromContext(ctx).Debug("passages retrieved",
		zap.String("document_id", documentID),
		zap.Int("count", len(passages)),
		zap.Int("query_tokens", emb.PromptTokens),
	)
	return passages, nil
}
