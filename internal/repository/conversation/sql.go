package conversation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kailas-cloud/docchat/internal/db/sqlite"
	domconv "github.com/kailas-cloud/docchat/internal/domain/conversation"
)

// sqlStore is the consumer interface for the SQLite turns table (ISP).
type sqlStore interface {
	InsertTurn(ctx context.Context, t sqlite.TurnRow) error
	RecentTurns(ctx context.Context, documentID string, limit int) ([]sqlite.TurnRow, error)
}

// SQLRepo keeps turns in the SQLite turns table.
type SQLRepo struct {
	store sqlStore
}

// NewSQL creates a SQLite-backed conversation repository.
func NewSQL(s sqlStore) *SQLRepo {
	return &SQLRepo{store: s}
}

// Append stores a turn.
func (r *SQLRepo) Append(ctx context.Context, t *domconv.Turn) error {
	if err := r.store.InsertTurn(ctx, sqlite.TurnRow{
		ID:         t.ID(),
		DocumentID: t.DocumentID(),
		UserID:     t.UserID(),
		Role:       string(t.Role()),
		Text:       t.Text(),
		CreatedAt:  t.CreatedAt().UnixMicro(),
	}); err != nil {
		return fmt.Errorf("insert turn %s: %w", t.ID(), err)
	}
	return nil
}

// Recent returns up to limit latest turns of a document, oldest first.
func (r *SQLRepo) Recent(ctx context.Context, documentID string, limit int) ([]domconv.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.store.RecentTurns(ctx, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent turns %s: %w", documentID, err)
	}

	turns := make([]domconv.Turn, 0, len(rows))
	for _, row := range rows {
		role, err := domconv.ParseRole(row.Role)
		if err != nil {
			return nil, fmt.Errorf("parse turn %s: %w", row.ID, err)
		}
		turns = append(turns, domconv.Reconstruct(
			row.ID, row.DocumentID, row.UserID, role, row.Text, time.UnixMicro(row.CreatedAt).UTC(),
		))
	}
	slices.Reverse(turns)
	return turns, nil
}
