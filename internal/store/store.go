package store

import (
	"context"
	"errors"
	"sync"

	"sudooom.musicroom/internal/room"
)

var ErrSnapshotNotFound = errors.New("SNAPSHOT_NOT_FOUND")

// Store 房间快照的持久化接口
// 服务端是权威，快照只用于进程重启后的尽力恢复和外部只读消费，
// 不在请求路径上读
type Store interface {
	Save(ctx context.Context, snap *room.Snapshot) error
	Load(ctx context.Context, code string) (*room.Snapshot, error)
	Delete(ctx context.Context, code string) error
}

// MemoryStore 进程内实现，单机部署和测试用
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*room.Snapshot
}

// NewMemoryStore 创建内存快照存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snaps: make(map[string]*room.Snapshot),
	}
}

// Save 保存房间快照
func (s *MemoryStore) Save(ctx context.Context, snap *room.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *snap
	s.snaps[snap.Code] = &copied
	return nil
}

// Load 读取房间快照
func (s *MemoryStore) Load(ctx context.Context, code string) (*room.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[code]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	copied := *snap
	return &copied, nil
}

// Delete 删除房间快照
func (s *MemoryStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, code)
	return nil
}
