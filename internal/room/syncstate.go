package room

import (
	"sudooom.musicroom/internal/version"
)

// 播放状态仲裁
// 对同一房间来自任意成员的 play/pause/seek 意图做 Last-Write-Wins 合并，
// 以版本号而非消息到达顺序判定先后

// SyncUpdate 一次播放状态写入意图
// Version 是写入方所知的最新版本，仅用于比较，绝不原样写入存储
// TrackID、Volume 为 nil、Status 为空表示保持当前值不变（seek 只带位置；
// 0 是合法音量，缺省只能用 nil 表达）
type SyncUpdate struct {
	WriterID   string
	TrackID    *string
	Status     PlaybackStatus
	PositionMs int64
	Rate       float64
	Volume     *float64
	Version    int64
}

// ApplySync 应用一次播放状态写入
// 返回值 applied 为 false 表示等版本的同态写入被视为无操作（成功但无需广播）
//
// 规则：
//   - incoming 版本与当前版本相等：同态无操作，返回当前状态
//   - incoming 版本不比当前版本新（按 version.IsNewer，含回绕）：ErrVersionStale
//   - 换曲防抖（前沿触发）：目标曲目非空且与当前不同，且距上次被接受的换曲
//     不足防抖窗口时，返回 ErrTrackChangeDebounce（可区分，调用方可重试）
//   - 接受的写入总是由服务端递增版本、盖上新鲜的服务端时间戳并记录写入者
func (r *Instance) ApplySync(u SyncUpdate) (SyncState, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.canControlLocked(u.WriterID); err != nil {
		return SyncState{}, false, err
	}
	if u.Status == "" {
		u.Status = r.sync.Status
	} else if !validStatus(u.Status) {
		return SyncState{}, false, ErrInvalidStatus
	}

	if u.Version == r.sync.Version {
		// 并发写入撞上同一版本：视为同态，无操作
		return r.sync, false, nil
	}
	if !version.IsNewer(u.Version, r.sync.Version) {
		return SyncState{}, false, ErrVersionStale
	}

	now := r.nowFn()

	// 换曲防抖：抵御多个成员近乎同时按下「切歌」造成的曲目闪烁
	if u.TrackID != nil && (r.sync.TrackID == nil || *u.TrackID != *r.sync.TrackID) {
		if !r.lastTrackChangeAt.IsZero() && now.Sub(r.lastTrackChangeAt) < r.opts.DebounceWindow {
			return SyncState{}, false, ErrTrackChangeDebounce
		}
		r.lastTrackChangeAt = now
	}

	if u.TrackID != nil {
		r.sync.TrackID = u.TrackID
	}
	r.sync.Status = u.Status
	r.sync.PositionMs = u.PositionMs
	if u.Rate > 0 {
		r.sync.Rate = u.Rate
	}
	if u.Volume != nil {
		r.sync.Volume = *u.Volume
	}
	r.sync.LastWriter = u.WriterID
	r.sync.UpdatedAt = now.UnixMilli()
	r.sync.Version = version.Increment(r.sync.Version)

	r.lastActive = now
	return r.sync, true, nil
}

// SyncStateValue 返回当前播放状态的副本
func (r *Instance) SyncStateValue() SyncState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sync
}

func validStatus(s PlaybackStatus) bool {
	switch s {
	case StatusPlaying, StatusPaused, StatusLoading, StatusStopped:
		return true
	}
	return false
}
