package retrieval

import (
	"context"

	"github.com/kailas-cloud/docchat/internal/domain"
	dompassage "github.com/kailas-cloud/docchat/internal/domain/passage"
)

// Index finds the passages of one document nearest to a query vector.
type Index interface {
	Nearest(ctx context.Context, documentID string, vector []float32, k int) ([]dompassage.Passage, error)
}

// Embedder vectorizes the question.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
