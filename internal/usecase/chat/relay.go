package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kailas-cloud/docchat/internal/domain"
	"github.com/kailas-cloud/docchat/internal/metrics"
)

// ErrCallerGone signals that the sink refused a chunk, usually a disconnected client.
var ErrCallerGone = errors.New("caller gone")

// relay drains stream, handing every non-empty chunk to sink before accumulating it
// and before receiving the next one. A nil sink only accumulates.
// The accumulated text is returned only when the stream ends cleanly.
func relay(ctx context.Context, stream domain.ChunkStream, sink Sink, stage string) (string, error) {
	var acc strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("relay %s: %w", stage, err)
		}

		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return acc.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("relay %s: %w", stage, err)
		}
		if chunk == "" {
			continue
		}

		if sink != nil {
			if err := sink.Write(chunk); err != nil {
				return "", fmt.Errorf("relay %s: %w: %w", stage, ErrCallerGone, err)
			}
		}
		acc.WriteString(chunk)
		metrics.StreamChunksTotal.WithLabelValues(stage).Inc()
	}
}
