package redis

import "github.com/redis/rueidis"

// NewStoreForTest creates a Store from an existing client (for tests with mock clients).
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c}
}
