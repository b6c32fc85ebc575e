package passage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/kailas-cloud/docchat/internal/db"
	"github.com/kailas-cloud/docchat/internal/db/filter"
	"github.com/kailas-cloud/docchat/internal/domain"
	dompassage "github.com/kailas-cloud/docchat/internal/domain/passage"
)

// Index layout shared with the ingestion pipeline that writes the chunks.
const (
	IndexName   = domain.KeyPrefix + "chunks:idx"
	ChunkPrefix = domain.KeyPrefix + "chunk:"

	fieldText       = "text"
	fieldPage       = "page_number"
	fieldDocumentID = "document_id"
	fieldVector     = "vector"
)

// store is the consumer interface for vector search (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo searches the chunk index, one document partition at a time.
type Repo struct {
	store store
}

// New creates a passage repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureIndex creates the chunk index when it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context, dimensions int) error {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     IndexName,
		Prefixes: []string{ChunkPrefix},
		Fields: []db.IndexField{
			{Name: fieldDocumentID, Type: db.IndexFieldTag},
			{Name: fieldText, Type: db.IndexFieldText},
			{Name: fieldPage, Type: db.IndexFieldNumeric},
			{Name: fieldVector, Type: db.IndexFieldVector, VectorDim: dimensions},
		},
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Nearest returns up to k passages of documentID closest to vector, best first.
// A missing index or a document without chunks yields an empty slice.
func (r *Repo) Nearest(
	ctx context.Context, documentID string, vector []float32, k int,
) ([]dompassage.Passage, error) {
	cond, err := filter.NewMatch(fieldDocumentID, documentID)
	if err != nil {
		return nil, fmt.Errorf("document filter: %w", err)
	}
	expr, err := filter.NewExpression(cond)
	if err != nil {
		return nil, fmt.Errorf("document filter: %w", err)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    IndexName,
		Filters:      expr,
		Vector:       vector,
		K:            k,
		ReturnFields: []string{fieldText, fieldPage, fieldDocumentID, "__vector_score"},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("search knn %s: %w", documentID, err)
	}

	return toPassages(sr, documentID, k), nil
}

// toPassages keeps only hits of documentID, orders them by score and assigns ranks.
func toPassages(sr *db.SearchResult, documentID string, k int) []dompassage.Passage {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	entries := make([]db.SearchEntry, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		if e.Fields[fieldDocumentID] != documentID {
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > k {
		entries = entries[:k]
	}

	out := make([]dompassage.Passage, len(entries))
	for i, e := range entries {
		page, _ := strconv.Atoi(e.Fields[fieldPage])
		out[i] = dompassage.New(documentID, e.Fields[fieldText], page, i+1, e.Score)
	}
	return out
}
