package conversation

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/kailas-cloud/docchat/internal/domain"
	domconv "github.com/kailas-cloud/docchat/internal/domain/conversation"
)

var (
	turnPrefix = domain.KeyPrefix + "turn:"
	convPrefix = domain.KeyPrefix + "conversation:"
)

// store is the consumer interface for conversation turns (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// Repo keeps each turn in a hash and orders a document's turns in a sorted set
// scored by creation time in microseconds.
type Repo struct {
	store store
}

// New creates a Redis conversation repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Append stores a turn. The hash is written before the index entry, so readers
// never see an id whose body is missing.
func (r *Repo) Append(ctx context.Context, t *domconv.Turn) error {
	if err := r.store.HSet(ctx, turnPrefix+t.ID(), turnToHash(t)); err != nil {
		return fmt.Errorf("hset turn %s: %w", t.ID(), err)
	}
	score := float64(t.CreatedAt().UnixMicro())
	if err := r.store.ZAdd(ctx, convPrefix+t.DocumentID(), score, t.ID()); err != nil {
		return fmt.Errorf("zadd turn %s: %w", t.ID(), err)
	}
	return nil
}

// Recent returns up to limit latest turns of a document, oldest first.
func (r *Repo) Recent(ctx context.Context, documentID string, limit int) ([]domconv.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := r.store.ZRevRange(ctx, convPrefix+documentID, 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", documentID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = turnPrefix + id
	}
	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load turns %s: %w", documentID, err)
	}

	turns := make([]domconv.Turn, 0, len(hashes))
	for i, h := range hashes {
		if len(h) == 0 {
			continue // index entry without body
		}
		t, err := turnFromHash(ids[i], h)
		if err != nil {
			return nil, fmt.Errorf("parse turn %s: %w", ids[i], err)
		}
		turns = append(turns, t)
	}
	slices.Reverse(turns)
	return turns, nil
}

func turnToHash(t *domconv.Turn) map[string]string {
	return map[string]string{
		"document_id": t.DocumentID(),
		"user_id":     t.UserID(),
		"role":        string(t.Role()),
		"text":        t.Text(),
		"created_at":  strconv.FormatInt(t.CreatedAt().UnixMicro(), 10),
	}
}

func turnFromHash(id string, h map[string]string) (domconv.Turn, error) {
	role, err := domconv.ParseRole(h["role"])
	if err != nil {
		return domconv.Turn{}, err
	}
	micros, err := strconv.ParseInt(h["created_at"], 10, 64)
	if err != nil {
		return domconv.Turn{}, fmt.Errorf("created_at: %w", err)
	}
	return domconv.Reconstruct(
		id, h["document_id"], h["user_id"], role, h["text"], time.UnixMicro(micros).UTC(),
	), nil
}
