package domain

import (
	"context"

	"github.com/kailas-cloud/docchat/internal/domain/prompt"
)

// ChunkStream yields generated text incrementally. Recv returns io.EOF once the model is done.
type ChunkStream interface {
	Recv() (string, error)
	Close() error
}

// ChatModel is the language model contract shared by the chat pipeline and text options.
type ChatModel interface {
	Stream(ctx context.Context, p prompt.Prompt) (ChunkStream, error)
	Complete(ctx context.Context, p prompt.Prompt) (string, error)
}
