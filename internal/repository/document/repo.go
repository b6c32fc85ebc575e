package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/docchat/internal/db"
	"github.com/kailas-cloud/docchat/internal/db/sqlite"
	"github.com/kailas-cloud/docchat/internal/domain"
	domdoc "github.com/kailas-cloud/docchat/internal/domain/document"
)

var keyPrefix = domain.KeyPrefix + "file:"

// store is the consumer interface for documents kept as hashes (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Repo looks documents up in Redis hashes docchat:file:<id>.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// FindOwned returns the document if it exists and belongs to userID.
// Missing and foreign documents both yield domain.ErrDocumentNotFound.
func (r *Repo) FindOwned(ctx context.Context, id, userID string) (domdoc.Document, error) {
	fields, err := r.store.HGetAll(ctx, keyPrefix+id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("hgetall %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domdoc.Document{}, domain.ErrDocumentNotFound
	}
	doc := domdoc.Reconstruct(id, fields["owner_id"], fields["name"])
	if !doc.OwnedBy(userID) {
		return domdoc.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// Put registers a document (used by the upload side and fixtures).
func (r *Repo) Put(ctx context.Context, doc *domdoc.Document) error {
	if err := r.store.HSet(ctx, keyPrefix+doc.ID(), map[string]string{
		"owner_id": doc.OwnerID(),
		"name":     doc.Name(),
	}); err != nil {
		return fmt.Errorf("hset %s: %w", doc.ID(), err)
	}
	return nil
}

// sqlStore is the consumer interface for the SQLite documents table (ISP).
type sqlStore interface {
	GetDocument(ctx context.Context, id string) (sqlite.DocumentRow, error)
	UpsertDocument(ctx context.Context, d sqlite.DocumentRow) error
}

// SQLRepo looks documents up in the SQLite documents table.
type SQLRepo struct {
	store sqlStore
	now   func() time.Time
}

// NewSQL creates a SQLite-backed document repository.
func NewSQL(s sqlStore) *SQLRepo {
	return &SQLRepo{store: s, now: time.Now}
}

// FindOwned returns the document if it exists and belongs to userID.
func (r *SQLRepo) FindOwned(ctx context.Context, id, userID string) (domdoc.Document, error) {
	row, err := r.store.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domdoc.Document{}, domain.ErrDocumentNotFound
		}
		return domdoc.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	doc := domdoc.Reconstruct(row.ID, row.OwnerID, row.Name)
	if !doc.OwnedBy(userID) {
		return domdoc.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// Put registers a document.
func (r *SQLRepo) Put(ctx context.Context, doc *domdoc.Document) error {
	if err := r.store.UpsertDocument(ctx, sqlite.DocumentRow{
		ID:        doc.ID(),
		OwnerID:   doc.OwnerID(),
		Name:      doc.Name(),
		CreatedAt: r.now().UnixMicro(),
	}); err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID(), err)
	}
	return nil
}
