package chat

import (
	"context"

	"github.com/kailas-cloud/docchat/internal/domain"
	domconv "github.com/kailas-cloud/docchat/internal/domain/conversation"
	domdoc "github.com/kailas-cloud/docchat/internal/domain/document"
	dompassage "github.com/kailas-cloud/docchat/internal/domain/passage"
	"github.com/kailas-cloud/docchat/internal/domain/prompt"
)

// DocumentReader resolves documents owned by a principal.
type DocumentReader interface {
	FindOwned(ctx context.Context, id, userID string) (domdoc.Document, error)
}

// Conversation stores and reads the turns of a document conversation.
type Conversation interface {
	Append(ctx context.Context, t *domconv.Turn) error
	Recent(ctx context.Context, documentID string, limit int) ([]domconv.Turn, error)
}

// Retriever finds the passages of a document relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, documentID, query string, k int) ([]dompassage.Passage, error)
}

// Streamer invokes the language model and yields its output incrementally.
type Streamer interface {
	Stream(ctx context.Context, p prompt.Prompt) (domain.ChunkStream, error)
}

// RateLimiter admits requests per principal.
type RateLimiter interface {
	TryAcquire(ctx context.Context, userID string) (domain.RateDecision, error)
}

// Sink receives the user-visible chunks in generation order.
// A write error means the caller is gone and generation must stop.
type Sink interface {
	Write(chunk string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(chunk string) error

// Write calls f(chunk).
func (f SinkFunc) Write(chunk string) error { return f(chunk) }
