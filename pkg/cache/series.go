package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// series addresses one sorted set holding a whole per-metric,
// per-dimension time series. Scores are timestamps, members are JSON
// encoded StoreEntry values. The key's expiry is the series TTL.
type series struct {
	rdb *redis.Client
	key string
}

func newSeries(rdb *redis.Client, key string) series {
	return series{rdb: rdb, key: key}
}

// size returns the number of entries in the series (0 for an absent key).
func (s series) size(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcard: %w", err)
	}
	return n, nil
}

// rangeMembers returns the raw members with start <= timestamp <= end in
// ascending timestamp order.
func (s series) rangeMembers(ctx context.Context, start, end int64) ([]string, error) {
	members, err := s.rdb.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: strconv.FormatInt(start, 10),
		Max: strconv.FormatInt(end, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	return members, nil
}

// get returns the entry stored at timestamp, if any.
func (s series) get(ctx context.Context, timestamp int64) (StoreEntry, bool, error) {
	score := strconv.FormatInt(timestamp, 10)
	members, err := s.rdb.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min:   score,
		Max:   score,
		Count: 1,
	}).Result()
	if err != nil {
		return StoreEntry{}, false, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	if len(members) == 0 {
		return StoreEntry{}, false, nil
	}

	entry, err := decodeEntry(members[0])
	if err != nil {
		return StoreEntry{}, false, err
	}
	return entry, true, nil
}

// add writes a new entry and sets the series TTL. Anything already stored
// at the timestamp is removed in the same transaction, so concurrent first
// writes leave a single entry (the last one to commit).
func (s series) add(ctx context.Context, entry StoreEntry, ttl time.Duration) error {
	if err := s.put(ctx, entry, ttl); err != nil {
		return fmt.Errorf("redis add entry: %w", err)
	}
	return nil
}

// replace removes whatever is stored at the entry's timestamp and writes the
// entry in its place, atomically.
func (s series) replace(ctx context.Context, entry StoreEntry, ttl time.Duration) error {
	if err := s.put(ctx, entry, ttl); err != nil {
		return fmt.Errorf("redis replace entry: %w", err)
	}
	return nil
}

func (s series) put(ctx context.Context, entry StoreEntry, ttl time.Duration) error {
	member, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	score := strconv.FormatInt(entry.Timestamp, 10)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, s.key, score, score)
		pipe.ZAdd(ctx, s.key, redis.Z{Score: float64(entry.Timestamp), Member: member})
		pipe.PExpire(ctx, s.key, ttl)
		return nil
	})
	return err
}

// touch refreshes the expiry of the whole series.
func (s series) touch(ctx context.Context, ttl time.Duration) error {
	if err := s.rdb.PExpire(ctx, s.key, ttl).Err(); err != nil {
		return fmt.Errorf("redis pexpire: %w", err)
	}
	return nil
}
