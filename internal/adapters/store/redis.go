package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/yogasync/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	fieldCount = "participantCount"
	fieldState = "state"
)

// RedisStore keeps each room as a hash at room:<id>.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func roomKey(id domain.RoomID) string {
	return "room:" + string(id)
}

func (s *RedisStore) GetRoomParticipantCount(ctx context.Context, id domain.RoomID) (int, error) {
	n, err := s.rdb.HGet(ctx, roomKey(id), fieldCount).Int()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrRoomNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get room %s: %w", id, err)
	}
	return n, nil
}

func (s *RedisStore) SetRoomParticipantCount(ctx context.Context, id domain.RoomID, n int) error {
	if err := s.rdb.HSet(ctx, roomKey(id), fieldCount, n).Err(); err != nil {
		return fmt.Errorf("set count of room %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) SetRoomState(ctx context.Context, id domain.RoomID, state domain.RoomState) error {
	if err := s.rdb.HSet(ctx, roomKey(id), fieldState, int(state)).Err(); err != nil {
		return fmt.Errorf("set state of room %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
