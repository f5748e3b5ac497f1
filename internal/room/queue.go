package room

import (
	"github.com/google/uuid"
)

// 队列状态机
// 所有变更在房间锁内原子执行，返回变更后的 (playlist, currentTrackIndex)
// currentIndex 恒为 -1 或 playlist 的合法下标；-1 是「队列为空/已播完」的
// 合法终态，不是错误

// QueueResult 队列操作结果
type QueueResult struct {
	Playlist          []QueueEntry
	CurrentTrackIndex int
}

func (r *Instance) queueResultLocked() QueueResult {
	playlist := make([]QueueEntry, len(r.playlist))
	copy(playlist, r.playlist)
	return QueueResult{Playlist: playlist, CurrentTrackIndex: r.currentIndex}
}

// AddTrack 添加曲目
// 插入策略为「下一首播放」：新曲目插在当前播放下标之后，而不是追加到队尾
// 拒绝重复曲目（按 track id）和超出软上限的添加
func (r *Instance) AddTrack(clientID string, track Track) (QueueResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.canControlLocked(clientID); err != nil {
		return QueueResult{}, err
	}
	if len(r.playlist) >= r.opts.QueueCap {
		return QueueResult{}, ErrQueueFull
	}
	for _, e := range r.playlist {
		if e.Track.ID == track.ID {
			return QueueResult{}, ErrDuplicateTrack
		}
	}

	entry := QueueEntry{
		EntryID: uuid.NewString(),
		Track:   track,
		AddedBy: clientID,
		AddedAt: r.nowFn(),
	}

	// currentIndex 为 -1（空队列或已播完）时插到队首
	pos := r.currentIndex + 1
	if pos > len(r.playlist) {
		pos = len(r.playlist)
	}
	r.playlist = append(r.playlist, QueueEntry{})
	copy(r.playlist[pos+1:], r.playlist[pos:])
	r.playlist[pos] = entry

	r.lastActive = r.nowFn()
	return r.queueResultLocked(), nil
}

// RemoveTrack 按曲目 id 移除条目
// 被移除条目位于当前下标之前时下标前移一位；恰好是当前条目时下标保持
// 指向后继条目（收缩到新长度内，队列变空则为 -1）
func (r *Instance) RemoveTrack(clientID, trackID string) (QueueResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.canControlLocked(clientID); err != nil {
		return QueueResult{}, err
	}

	idx := -1
	for i, e := range r.playlist {
		if e.Track.ID == trackID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return QueueResult{}, ErrTrackNotFound
	}

	r.playlist = append(r.playlist[:idx], r.playlist[idx+1:]...)

	switch {
	case len(r.playlist) == 0:
		r.currentIndex = -1
	case idx < r.currentIndex:
		r.currentIndex--
	case idx == r.currentIndex && r.currentIndex >= len(r.playlist):
		r.currentIndex = len(r.playlist) - 1
	}

	r.lastActive = r.nowFn()
	return r.queueResultLocked(), nil
}

// Reorder 调整即将播放部分的顺序
// 只有当前下标之后的区域可重排；正在播放和已播放的条目冻结
func (r *Instance) Reorder(clientID string, from, to int) (QueueResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.canControlLocked(clientID); err != nil {
		return QueueResult{}, err
	}
	if from < 0 || from >= len(r.playlist) || to < 0 || to >= len(r.playlist) {
		return QueueResult{}, ErrIndexOutOfRange
	}
	if from <= r.currentIndex || to <= r.currentIndex {
		return QueueResult{}, ErrIndexFrozen
	}

	entry := r.playlist[from]
	r.playlist = append(r.playlist[:from], r.playlist[from+1:]...)
	r.playlist = append(r.playlist, QueueEntry{})
	copy(r.playlist[to+1:], r.playlist[to:])
	r.playlist[to] = entry

	r.lastActive = r.nowFn()
	return r.queueResultLocked(), nil
}

// Advance 前进或后退
// next 在队尾时：loop=queue 回绕到 0；loop=none 返回 -1（队列播完，合法终态）
// previous 向后移动，最小收缩到 0，永远不会为负或报错
func (r *Instance) Advance(clientID string, direction Direction) (QueueResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.canControlLocked(clientID); err != nil {
		return QueueResult{}, err
	}

	if len(r.playlist) == 0 {
		r.currentIndex = -1
		return r.queueResultLocked(), nil
	}

	switch direction {
	case DirectionNext:
		next := r.currentIndex + 1
		if next >= len(r.playlist) {
			if r.loopMode == LoopQueue {
				next = 0
			} else {
				next = -1 // 队列播完
			}
		}
		r.currentIndex = next
	case DirectionPrevious:
		prev := r.currentIndex - 1
		if prev < 0 {
			prev = 0
		}
		r.currentIndex = prev
	default:
		return QueueResult{}, ErrInvalidDirection
	}

	r.lastActive = r.nowFn()
	return r.queueResultLocked(), nil
}

// Jump 直接跳转到指定下标
// 越界拒绝；目标等于当前下标时不做变更直接返回成功
func (r *Instance) Jump(clientID string, target int) (QueueResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.canControlLocked(clientID); err != nil {
		return QueueResult{}, err
	}
	if target < 0 || target >= len(r.playlist) {
		return QueueResult{}, ErrIndexOutOfRange
	}
	if target == r.currentIndex {
		return r.queueResultLocked(), nil
	}

	r.currentIndex = target
	r.lastActive = r.nowFn()
	return r.queueResultLocked(), nil
}

// SetLoopMode 设置循环模式（纯标志变更，不影响当前位置）
func (r *Instance) SetLoopMode(clientID string, mode LoopMode) (QueueResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.canControlLocked(clientID); err != nil {
		return QueueResult{}, err
	}
	if mode != LoopNone && mode != LoopQueue {
		return QueueResult{}, ErrInvalidLoopMode
	}

	r.loopMode = mode
	r.lastActive = r.nowFn()
	return r.queueResultLocked(), nil
}

// LoopModeValue 返回当前循环模式
func (r *Instance) LoopModeValue() LoopMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loopMode
}
