package conversation

import (
	"context"
	"sort"
	"testing"
	"time"

	domconv "github.com/kailas-cloud/docchat/internal/domain/conversation"
)

// memStore is an in-memory hash + sorted set store implementing the consumer interface.
type memStore struct {
	hashes map[string]map[string]string
	zsets  map[string]map[string]float64
	err    error
}

func newMemStore() *memStore {
	return &memStore{
		hashes: map[string]map[string]string{},
		zsets:  map[string]map[string]float64{},
	}
}

func (m *memStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if m.err != nil {
		return m.err
	}
	m.hashes[key] = fields
	return nil
}

func (m *memStore) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i] = m.hashes[k]
		if out[i] == nil {
			out[i] = map[string]string{}
		}
	}
	return out, nil
}

func (m *memStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	if m.err != nil {
		return m.err
	}
	if m.zsets[key] == nil {
		m.zsets[key] = map[string]float64{}
	}
	m.zsets[key][member] = score
	return nil
}

func (m *memStore) ZRevRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	members := make([]string, 0, len(m.zsets[key]))
	for member := range m.zsets[key] {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		return m.zsets[key][members[i]] > m.zsets[key][members[j]]
	})
	if start >= int64(len(members)) {
		return nil, nil
	}
	if stop >= int64(len(members)) {
		stop = int64(len(members)) - 1
	}
	return members[start : stop+1], nil
}

func mustTurn(t *testing.T, doc string, role domconv.Role, text string, at time.Time) domconv.Turn {
	t.Helper()
	turn, err := domconv.New(doc, "user-1", role, text, at)
	if err != nil {
		t.Fatalf("new turn: %v", err)
	}
	return turn
}
