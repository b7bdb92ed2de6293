package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix      = "session:"
	redisPlayerIndexKey = "session:player:"
)

// RedisStore persists session records as JSON values in redis, with a
// per-player set maintained as a secondary index.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recordKey(id string) string {
	return redisKeyPrefix + id
}

func playerIndexKey(playerID int64) string {
	return fmt.Sprintf("%s%d", redisPlayerIndexKey, playerID)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("session: decode record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode record: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey(rec.ID), data, 0)
	pipe.SAdd(ctx, playerIndexKey(rec.PlayerID), rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis put: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, recordKey(id))
	pipe.SRem(ctx, playerIndexKey(rec.PlayerID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis delete: %w", err)
	}
	return nil
}

func (s *RedisStore) ListByPlayer(ctx context.Context, playerID int64) ([]*Record, error) {
	ids, err := s.client.SMembers(ctx, playerIndexKey(playerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis list: %w", err)
	}
	var out []*Record
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Index entry outlived the record; drop it.
				s.client.SRem(ctx, playerIndexKey(playerID), id)
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return n, fmt.Errorf("session: redis scan: %w", err)
		}
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var rec Record
			if err := json.Unmarshal(data, &rec); err != nil {
				continue
			}
			if rec.Status.Terminal() && rec.UpdatedAt.Before(cutoff) {
				if err := s.Delete(ctx, rec.ID); err == nil {
					n++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return n, nil
		}
	}
}
