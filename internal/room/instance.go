package room

import (
	"sync"
	"time"
)

// Options 房间实例的行为参数
// 全部来自配置，避免把阈值硬编码在状态机里
type Options struct {
	QueueCap       int           // 队列软上限，默认 50
	DebounceWindow time.Duration // 换曲防抖窗口（前沿触发），默认 300ms
}

// DefaultOptions 返回默认房间参数
func DefaultOptions() Options {
	return Options{
		QueueCap:       50,
		DebounceWindow: 300 * time.Millisecond,
	}
}

// Instance 房间实例对象
// 每个房间持有一把互斥锁：对同一房间的所有状态变更串行化，
// 不同房间之间互不阻塞。房间状态只能通过 Instance 的方法变更
type Instance struct {
	mu sync.Mutex

	code        string
	hostID      string
	controlMode ControlMode
	loopMode    LoopMode

	members      []*Member // 按加入顺序
	playlist     []QueueEntry
	currentIndex int // -1 表示队列为空或已播完（合法的终态，不是错误）

	sync              SyncState
	lastTrackChangeAt time.Time // 最近一次被接受的换曲时间，用于防抖

	createdAt  time.Time
	lastActive time.Time

	opts  Options
	nowFn func() time.Time // 测试时可替换
}

// NewInstance 创建房间实例
// SyncState 随房间创建：status=stopped，version=0
func NewInstance(code, hostID string, controlMode ControlMode, opts Options) *Instance {
	if opts.QueueCap <= 0 {
		opts.QueueCap = 50
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = 300 * time.Millisecond
	}
	now := time.Now()
	return &Instance{
		code:         code,
		hostID:       hostID,
		controlMode:  controlMode,
		loopMode:     LoopNone,
		currentIndex: -1,
		sync: SyncState{
			Status: StatusStopped,
			Rate:   1.0,
			Volume: 1.0,
		},
		createdAt:  now,
		lastActive: now,
		opts:       opts,
		nowFn:      time.Now,
	}
}

// Code 返回房间码
func (r *Instance) Code() string {
	return r.code
}

// Snapshot 获取房间完整快照（深拷贝，只读）
func (r *Instance) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Instance) snapshotLocked() *Snapshot {
	members := make([]Member, len(r.members))
	for i, m := range r.members {
		members[i] = *m
	}
	playlist := make([]QueueEntry, len(r.playlist))
	copy(playlist, r.playlist)

	return &Snapshot{
		Code:              r.code,
		HostID:            r.hostID,
		ControlMode:       r.controlMode,
		LoopMode:          r.loopMode,
		Members:           members,
		Playlist:          playlist,
		CurrentTrackIndex: r.currentIndex,
		Sync:              r.sync,
		CreatedAt:         r.createdAt,
		LastActiveAt:      r.lastActive,
		ServerTimeMs:      r.nowFn().UnixMilli(),
	}
}

// Join 加入房间（幂等：同一 clientId 重复加入视为重连，恢复为 connected）
func (r *Instance) Join(clientID, displayName string) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFn()
	for _, m := range r.members {
		if m.ClientID == clientID {
			m.State = MemberConnected
			m.LastSeen = now
			if displayName != "" {
				m.DisplayName = displayName
			}
			r.lastActive = now
			return r.snapshotLocked()
		}
	}

	r.members = append(r.members, &Member{
		ClientID:    clientID,
		DisplayName: displayName,
		State:       MemberConnected,
		LastSeen:    now,
		JoinedAt:    now,
	})
	r.lastActive = now
	return r.snapshotLocked()
}

// Leave 离开房间
// 返回离开后的快照和房间是否已空；房主离开时把房主转移给最早加入的剩余成员
func (r *Instance) Leave(clientID string) (*Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, m := range r.members {
		if m.ClientID == clientID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, false, ErrNotInRoom
	}

	r.members = append(r.members[:idx], r.members[idx+1:]...)
	r.lastActive = r.nowFn()

	if len(r.members) == 0 {
		return r.snapshotLocked(), true, nil
	}

	// 房主转移
	if clientID == r.hostID {
		r.hostID = r.members[0].ClientID
	}
	return r.snapshotLocked(), false, nil
}

// HasMember 判断客户端是否是房间成员
func (r *Instance) HasMember(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findMemberLocked(clientID) != nil
}

func (r *Instance) findMemberLocked(clientID string) *Member {
	for _, m := range r.members {
		if m.ClientID == clientID {
			return m
		}
	}
	return nil
}

// MarkState 更新成员连接状态（断开、重连中等）
func (r *Instance) MarkState(clientID string, state MemberState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.findMemberLocked(clientID)
	if m == nil {
		return ErrNotInRoom
	}
	m.State = state
	r.lastActive = r.nowFn()
	return nil
}

// Heartbeat 记录成员心跳并刷新在线状态
// 同时更新成员的延迟与时钟偏移测量值（诊断用）
func (r *Instance) Heartbeat(clientID string, latencyMs, clockOffsetMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.findMemberLocked(clientID)
	if m == nil {
		return ErrNotInRoom
	}
	m.LastSeen = r.nowFn()
	m.State = MemberConnected
	if latencyMs > 0 {
		m.LatencyMs = latencyMs
	}
	m.ClockOffsetMs = clockOffsetMs
	return nil
}

// SweepExpired 将心跳超时的成员标记为 disconnected 并返回
// 与传输层的断开处理相互独立：用于捕获传输从未上报断开的僵尸会话
func (r *Instance) SweepExpired(timeout time.Duration) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFn()
	var expired []Member
	for _, m := range r.members {
		if m.State == MemberDisconnected {
			continue
		}
		if now.Sub(m.LastSeen) > timeout {
			m.State = MemberDisconnected
			expired = append(expired, *m)
		}
	}
	return expired
}

// MemberCount 返回成员数
func (r *Instance) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// LastActiveTime 获取最后活跃时间（用于淘汰策略）
func (r *Instance) LastActiveTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActive
}

// canControlLocked 校验控制权限
// open 模式任意成员可控制；host-only 模式仅房主
func (r *Instance) canControlLocked(clientID string) error {
	if r.findMemberLocked(clientID) == nil {
		return ErrNotInRoom
	}
	if r.controlMode == ControlHostOnly && clientID != r.hostID {
		return ErrNotPermitted
	}
	return nil
}
