// internal/store/redis.go
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jason-s-yu/memorymatch/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key written by RedisStore.
const DefaultKeyPrefix = "memorymatch"

// RedisStore keeps each room as a JSON string under <prefix>:room:<key>
// and tracks live keys in the <prefix>:rooms set. Compare-and-swap uses
// WATCH/MULTI so concurrent writers in other processes are detected.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps an already connected client.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) roomKey(key string) string {
	return fmt.Sprintf("%s:room:%s", s.prefix, key)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":rooms"
}

func (s *RedisStore) Load(ctx context.Context, key string) (*models.Room, error) {
	data, err := s.rdb.Get(ctx, s.roomKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to GET room %q: %w", key, err)
	}
	return decodeRoom(data)
}

func (s *RedisStore) Save(ctx context.Context, r *models.Room) error {
	data, err := encodeRoom(r)
	if err != nil {
		return err
	}
	key := s.roomKey(r.Key)

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		if err := s.checkVersion(ctx, tx, key, r.Version, true); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.indexKey(), r.Key)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return s.mapTxErr("save", r.Key, err)
	}
	r.Version++
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string, version int64) error {
	rk := s.roomKey(key)
	del := func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, rk)
		pipe.SRem(ctx, s.indexKey(), key)
		return nil
	}
	if version < 0 {
		if _, err := s.rdb.TxPipelined(ctx, del); err != nil {
			return fmt.Errorf("failed to delete room %q: %w", key, err)
		}
		return nil
	}

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		if err := s.checkVersion(ctx, tx, rk, version, false); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, del)
		return err
	}, rk)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return s.mapTxErr("delete", key, err)
	}
	return nil
}

// checkVersion compares the watched value's version with expected. A
// missing key matches only a zero version when creating.
func (s *RedisStore) checkVersion(ctx context.Context, tx *redis.Tx, key string, expected int64, create bool) error {
	cur, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		if create && expected == 0 {
			return nil
		}
		if create {
			return ErrVersionConflict
		}
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	v, err := storedVersion(cur)
	if err != nil {
		return err
	}
	if v != expected {
		return ErrVersionConflict
	}
	return nil
}

func (s *RedisStore) mapTxErr(op, key string, err error) error {
	switch {
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, ErrVersionConflict):
		return ErrVersionConflict
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("failed to %s room %q: %w", op, key, err)
	}
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Room, error) {
	keys, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to SMEMBERS %s: %w", s.indexKey(), err)
	}
	if len(keys) == 0 {
		return []*models.Room{}, nil
	}
	roomKeys := make([]string, len(keys))
	for i, k := range keys {
		roomKeys[i] = s.roomKey(k)
	}
	vals, err := s.rdb.MGet(ctx, roomKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to MGET rooms: %w", err)
	}
	out := make([]*models.Room, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			// index entry outlived its room
			continue
		}
		r, err := decodeRoom([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error { return nil }
