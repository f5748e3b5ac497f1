package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"sudooom.musicroom/internal/room"
)

var ErrSnapshotStale = errors.New("SNAPSHOT_STALE")

// ServerClock 服务端时间估计来源（通常是 clock.Synchronizer）
type ServerClock interface {
	ServerTime() int64
}

// SnapshotFetcher 从服务端拉取完整房间快照
// 对账永远基于完整快照，不信任可能跨越了断线期的增量
type SnapshotFetcher func(ctx context.Context) (*room.Snapshot, error)

// LocalState 客户端本地的播放视图，对账时与服务端快照比对
type LocalState struct {
	TrackID    *string
	TrackIndex int
	PositionMs int64
	Playing    bool
	QueueIDs   []string
}

// Changeset 对账差异，四个轴相互独立
// 调用方只应用变了的轴：仅位置漂移时只重新 seek，不重启播放
type Changeset struct {
	TrackChanged     bool
	PositionDrift    bool
	PlayStateChanged bool
	QueueChanged     bool
}

// Any 是否存在任何差异
func (c Changeset) Any() bool {
	return c.TrackChanged || c.PositionDrift || c.PlayStateChanged || c.QueueChanged
}

// Outcome 一次对账的结果
type Outcome struct {
	Applied  bool
	Skipped  bool // 已有对账在途，本次触发被合并
	Snapshot *room.Snapshot
	Changes  Changeset
	Summary  string
}

// ReconcilerOptions 对账配置
type ReconcilerOptions struct {
	Staleness      time.Duration // 快照最大可信年龄
	DriftThreshold time.Duration // 位置漂移判定阈值
}

func DefaultReconcilerOptions() ReconcilerOptions {
	return ReconcilerOptions{
		Staleness:      60 * time.Second,
		DriftThreshold: 3 * time.Second,
	}
}

// Reconciler 断线或回到前台后，把本地状态对齐到服务端权威快照
type Reconciler struct {
	clock    ServerClock
	opts     ReconcilerOptions
	logger   *slog.Logger
	inFlight atomic.Bool
}

func NewReconciler(clk ServerClock, opts ReconcilerOptions, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		clock:  clk,
		opts:   opts,
		logger: logger.With("component", "reconciler"),
	}
}

// Reconcile 执行一次对账
// 已有对账在途时新触发被跳过而不是排队——触发源（网络恢复、回前台）
// 可能密集到来，快照本身已是全量，重复拉取没有意义
//
// 快照年龄超过 Staleness 时拒绝应用并保留本地状态：过老的快照可能
// 让已经前进的客户端倒退
func (r *Reconciler) Reconcile(ctx context.Context, fetch SnapshotFetcher, local *LocalState) (Outcome, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return Outcome{Skipped: true}, nil
	}
	defer r.inFlight.Store(false)

	snap, err := fetch(ctx)
	if err != nil {
		return Outcome{}, err
	}

	age := r.clock.ServerTime() - snap.ServerTimeMs
	if age > r.opts.Staleness.Milliseconds() {
		r.logger.Warn("Rejecting stale snapshot", "code", snap.Code, "age_ms", age)
		return Outcome{Snapshot: snap}, ErrSnapshotStale
	}

	if local == nil {
		// 没有本地状态可保护，无条件应用
		return Outcome{
			Applied:  true,
			Snapshot: snap,
			Changes:  Changeset{TrackChanged: true, PositionDrift: true, PlayStateChanged: true, QueueChanged: true},
			Summary:  "joined room state",
		}, nil
	}

	changes := r.diff(local, snap)
	return Outcome{
		Applied:  true,
		Snapshot: snap,
		Changes:  changes,
		Summary:  summarize(changes, snap),
	}, nil
}

func (r *Reconciler) diff(local *LocalState, snap *room.Snapshot) Changeset {
	var c Changeset

	serverTrack := snap.Sync.TrackID
	switch {
	case local.TrackIndex != snap.CurrentTrackIndex:
		c.TrackChanged = true
	case local.TrackID == nil && serverTrack != nil, local.TrackID != nil && serverTrack == nil:
		c.TrackChanged = true
	case local.TrackID != nil && serverTrack != nil && *local.TrackID != *serverTrack:
		c.TrackChanged = true
	}

	drift := snap.Sync.PositionMs - local.PositionMs
	if drift < 0 {
		drift = -drift
	}
	if drift > r.opts.DriftThreshold.Milliseconds() {
		c.PositionDrift = true
	}

	serverPlaying := snap.Sync.Status == room.StatusPlaying
	if serverPlaying != local.Playing {
		c.PlayStateChanged = true
	}

	if len(local.QueueIDs) != len(snap.Playlist) {
		c.QueueChanged = true
	} else {
		for i, e := range snap.Playlist {
			if local.QueueIDs[i] != e.Track.ID {
				c.QueueChanged = true
				break
			}
		}
	}
	return c
}

// summarize 生成一句给用户看的变更说明，换曲优先于播放状态
func summarize(c Changeset, snap *room.Snapshot) string {
	switch {
	case c.TrackChanged:
		if snap.CurrentTrackIndex >= 0 {
			return fmt.Sprintf("room skipped to track %d", snap.CurrentTrackIndex+1)
		}
		return "room finished the queue"
	case c.PlayStateChanged:
		if snap.Sync.Status == room.StatusPlaying {
			return "room resumed"
		}
		return "room paused"
	case c.PositionDrift:
		return "playback position adjusted"
	case c.QueueChanged:
		return "queue updated"
	}
	return "in sync"
}
