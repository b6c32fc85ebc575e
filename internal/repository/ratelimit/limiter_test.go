package ratelimit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type mockStore struct {
	counts   map[string]int64
	expires  map[string]time.Duration
	incrErr  error
	nxValues []bool
}

func newMockStore() *mockStore {
	return &mockStore{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (m *mockStore) Incr(_ context.Context, key string) (int64, error) {
	if m.incrErr != nil {
		return 0, m.incrErr
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *mockStore) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	m.nxValues = append(m.nxValues, nx)
	if _, ok := m.expires[key]; !ok || !nx {
		m.expires[key] = ttl
	}
	return nil
}

func newTestLimiter(ms *mockStore, limit int) *Limiter {
	l := New(ms, limit, time.Minute)
	fixed := time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	return l
}

func TestTryAcquire_WithinLimit(t *testing.T) {
	ms := newMockStore()
	l := newTestLimiter(ms, 2)

	d, err := l.TryAcquire(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Remaining != 1 {
		t.Errorf("unexpected decision: %+v", d)
	}
	if len(ms.expires) != 1 {
		t.Fatalf("expected window expiry to be set, got %v", ms.expires)
	}
	for key, ttl := range ms.expires {
		if !strings.HasPrefix(key, "docchat:ratelimit:user-1:") || ttl != time.Minute {
			t.Errorf("unexpected expiry %q=%v", key, ttl)
		}
	}
	if !ms.nxValues[0] {
		t.Error("expiry must use NX")
	}
	if want := time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC); !d.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", d.ResetAt, want)
	}
}

func TestTryAcquire_OverLimit(t *testing.T) {
	ms := newMockStore()
	l := newTestLimiter(ms, 2)
	ctx := context.Background()

	_, _ = l.TryAcquire(ctx, "user-1")
	_, _ = l.TryAcquire(ctx, "user-1")
	d, err := l.TryAcquire(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("expected denial with 0 remaining, got %+v", d)
	}

	other, _ := l.TryAcquire(ctx, "user-2")
	if !other.Allowed {
		t.Error("limits must be per principal")
	}
}

func TestTryAcquire_StoreError(t *testing.T) {
	ms := newMockStore()
	ms.incrErr = context.DeadlineExceeded
	l := newTestLimiter(ms, 2)

	if _, err := l.TryAcquire(context.Background(), "u"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
