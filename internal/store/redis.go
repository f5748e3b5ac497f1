package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sudooom.musicroom/internal/room"
)

const roomKeyPrefix = "musicroom:room:"

// RedisStore Redis 实现，多实例部署时房间可以在重启后恢复
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 快照存储
// ttl 应大于房间的闲置驱逐时长，让驱逐先于过期发生
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func buildRoomKey(code string) string {
	return fmt.Sprintf("%s%s", roomKeyPrefix, code)
}

// Save 保存房间快照
func (s *RedisStore) Save(ctx context.Context, snap *room.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, buildRoomKey(snap.Code), data, s.ttl).Err()
}

// Load 读取房间快照
func (s *RedisStore) Load(ctx context.Context, code string) (*room.Snapshot, error) {
	data, err := s.client.Get(ctx, buildRoomKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}

	var snap room.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Delete 删除房间快照
func (s *RedisStore) Delete(ctx context.Context, code string) error {
	return s.client.Del(ctx, buildRoomKey(code)).Err()
}
