package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kailas-cloud/docchat/internal/db"
)

// TurnRow is the stored form of a conversation turn. CreatedAt is Unix microseconds.
type TurnRow struct {
	ID         string
	DocumentID string
	UserID     string
	Role       string
	Text       string
	CreatedAt  int64
}

// DocumentRow is the stored form of a document.
type DocumentRow struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt int64
}

// InsertTurn appends a turn. Turns are never updated.
func (s *Store) InsertTurn(ctx context.Context, t TurnRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, document_id, user_id, role, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.DocumentID, t.UserID, t.Role, t.Text, t.CreatedAt,
	)
	if err != nil {
		return &db.Error{Op: db.OpInsert, Err: err}
	}
	return nil
}

// RecentTurns returns up to limit turns of a document, newest first.
func (s *Store) RecentTurns(ctx context.Context, documentID string, limit int) ([]TurnRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, user_id, role, text, created_at
		FROM turns WHERE document_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		documentID, limit,
	)
	if err != nil {
		return nil, &db.Error{Op: db.OpSelect, Err: err}
	}
	defer rows.Close()

	var out []TurnRow
	for rows.Next() {
		var t TurnRow
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.UserID, &t.Role, &t.Text, &t.CreatedAt); err != nil {
			return nil, &db.Error{Op: db.OpSelect, Err: err}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpSelect, Err: err}
	}
	return out, nil
}

// UpsertDocument inserts or replaces a document record.
func (s *Store) UpsertDocument(ctx context.Context, d DocumentRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, owner_id, name, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET owner_id = excluded.owner_id, name = excluded.name`,
		d.ID, d.OwnerID, d.Name, d.CreatedAt,
	)
	if err != nil {
		return &db.Error{Op: db.OpInsert, Err: err}
	}
	return nil
}

// GetDocument returns a document by id or db.ErrKeyNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (DocumentRow, error) {
	var d DocumentRow
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, created_at FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.OwnerID, &d.Name, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentRow{}, db.ErrKeyNotFound
	}
	if err != nil {
		return DocumentRow{}, &db.Error{Op: db.OpSelect, Err: err}
	}
	return d, nil
}
