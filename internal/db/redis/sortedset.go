package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/docchat/internal/db"
)

// ZAdd adds member with score, updating the score if the member exists.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	cmd := s.b().Arbitrary("ZADD").Keys(key).
		Args(strconv.FormatFloat(score, 'f', -1, 64), member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZAdd, Err: err}
	}
	return nil
}

// ZRevRange returns members ordered by descending score between start and stop (inclusive).
func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	cmd := s.b().Arbitrary("ZREVRANGE").Keys(key).
		Args(strconv.FormatInt(start, 10), strconv.FormatInt(stop, 10)).Build()
	members, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpZRevRange, Err: err}
	}
	return members, nil
}
