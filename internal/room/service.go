package room

import (
	"context"
	"log/slog"
	"time"

	"sudooom.musicroom/internal/session"
)

// Broadcaster 房间事件广播接口
// 由传输层实现；excludeClientID 非空时跳过该成员（发起方已通过应答得知结果）
type Broadcaster interface {
	BroadcastToRoom(code, excludeClientID, event string, payload any)
}

// SnapshotStore 房间快照的持久化钩子
// 核心不实现存储本身，只在状态变更后调用钩子
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Delete(ctx context.Context, code string) error
}

// Service 房间服务
// 把会话追踪、房间状态机和广播串起来的唯一入口；
// 对单个房间的变更经由 Instance 的互斥锁串行化
type Service struct {
	manager     *Manager
	tracker     *session.Tracker
	broadcaster Broadcaster
	store       SnapshotStore // 可为 nil
	logger      *slog.Logger
}

// NewService 创建房间服务
func NewService(manager *Manager, tracker *session.Tracker, store SnapshotStore) *Service {
	return &Service{
		manager: manager,
		tracker: tracker,
		store:   store,
		logger:  slog.Default().With("component", "RoomService"),
	}
}

// SetBroadcaster 设置广播实现
// 传输层构造时依赖 Service，Service 的广播又依赖传输层，故后置注入
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func (s *Service) broadcast(code, exclude, event string, payload any) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastToRoom(code, exclude, event, payload)
}

// persist 异步保存房间快照（write-behind，失败只记日志）
func (s *Service) persist(snap *Snapshot) {
	if s.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.store.Save(ctx, snap); err != nil {
			s.logger.Warn("Failed to persist room snapshot", "code", snap.Code, "error", err)
		}
	}()
}

func (s *Service) dropPersisted(code string) {
	if s.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.store.Delete(ctx, code); err != nil {
			s.logger.Warn("Failed to delete persisted room snapshot", "code", code, "error", err)
		}
	}()
}

// ============================================================================
// 房间操作参数定义
// ============================================================================

// CreateRoomParams 创建房间参数
type CreateRoomParams struct {
	ClientID    string
	SessionID   string
	DisplayName string
	ControlMode ControlMode
}

// JoinRoomParams 加入房间参数
type JoinRoomParams struct {
	Code        string
	ClientID    string
	SessionID   string
	DisplayName string
}

// LeaveRoomParams 离开房间参数
type LeaveRoomParams struct {
	Code      string
	ClientID  string
	SessionID string
}

// SyncParams 播放状态写入参数
type SyncParams struct {
	Code   string
	Update SyncUpdate
}

// HeartbeatParams 心跳参数
type HeartbeatParams struct {
	Code          string
	ClientID      string
	LatencyMs     int64
	ClockOffsetMs int64
}

// ============================================================================
// 房间操作方法
// ============================================================================

// CreateRoom 创建房间，房主自动加入
func (s *Service) CreateRoom(params CreateRoomParams) (*Snapshot, error) {
	inst, err := s.manager.Create(params.ClientID, params.ControlMode)
	if err != nil {
		return nil, err
	}

	snap := inst.Join(params.ClientID, params.DisplayName)
	s.tracker.Register(params.ClientID, params.SessionID, params.ClientID, inst.Code())
	s.persist(snap)

	s.logger.Info("Room created", "code", inst.Code(), "host", params.ClientID)
	return snap, nil
}

// JoinRoom 加入房间
func (s *Service) JoinRoom(params JoinRoomParams) (*Snapshot, error) {
	if err := ValidateCode(params.Code); err != nil {
		return nil, err
	}
	inst, ok := s.manager.Get(params.Code)
	if !ok {
		return nil, ErrRoomNotFound
	}

	snap := inst.Join(params.ClientID, params.DisplayName)
	s.tracker.Register(params.ClientID, params.SessionID, params.ClientID, params.Code)
	s.persist(snap)

	s.logger.Info("Member joined room", "code", params.Code, "clientId", params.ClientID)

	var joined Member
	for _, m := range snap.Members {
		if m.ClientID == params.ClientID {
			joined = m
			break
		}
	}
	s.broadcast(params.Code, params.ClientID, EventMemberJoined, MemberPush{
		Code:    params.Code,
		Member:  joined,
		Members: snap.Members,
		HostID:  snap.HostID,
	})

	return snap, nil
}

// RejoinRoom 重连后重新加入
// 成员必须已存在；注册新会话并恢复 connected 状态，返回完整快照供对账
func (s *Service) RejoinRoom(params JoinRoomParams) (*Snapshot, error) {
	if err := ValidateCode(params.Code); err != nil {
		return nil, err
	}
	inst, ok := s.manager.Get(params.Code)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if !inst.HasMember(params.ClientID) {
		return nil, ErrNotInRoom
	}

	snap := inst.Join(params.ClientID, params.DisplayName)
	s.tracker.Register(params.ClientID, params.SessionID, params.ClientID, params.Code)

	s.logger.Info("Member rejoined room", "code", params.Code, "clientId", params.ClientID)
	return snap, nil
}

// VerifyRoom 校验房间存在且客户端是其成员
func (s *Service) VerifyRoom(code, clientID string) (*Snapshot, error) {
	if err := ValidateCode(code); err != nil {
		return nil, err
	}
	inst, ok := s.manager.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if !inst.HasMember(clientID) {
		return nil, ErrNotInRoom
	}
	return inst.Snapshot(), nil
}

// GetSnapshot 获取房间完整快照
func (s *Service) GetSnapshot(code string) (*Snapshot, error) {
	inst, ok := s.manager.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return inst.Snapshot(), nil
}

// LeaveRoom 离开房间
// 最后一名成员离开时销毁房间
func (s *Service) LeaveRoom(params LeaveRoomParams) error {
	inst, ok := s.manager.Get(params.Code)
	if !ok {
		return ErrRoomNotFound
	}

	snap, empty, err := inst.Leave(params.ClientID)
	if err != nil {
		return err
	}
	s.tracker.ReleaseIfCurrent(params.ClientID, params.SessionID)

	s.logger.Info("Member left room", "code", params.Code, "clientId", params.ClientID)

	if empty {
		s.manager.Remove(params.Code)
		s.dropPersisted(params.Code)
		return nil
	}

	s.persist(snap)
	s.broadcast(params.Code, params.ClientID, EventMemberLeft, MemberPush{
		Code:    params.Code,
		Member:  Member{ClientID: params.ClientID},
		Members: snap.Members,
		HostID:  snap.HostID,
	})
	return nil
}

// HandleDisconnect 处理传输层断开通知
// 先问会话追踪器：该会话是否仍是此客户端的当前会话？
// 已被更新会话取代（快速重连抢先）则完全跳过成员移除——幂等且无竞态
func (s *Service) HandleDisconnect(clientID, sessionID string) {
	reg, current := s.tracker.ReleaseIfCurrent(clientID, sessionID)
	if !current {
		s.logger.Debug("Skipping disconnect for superseded session",
			"clientId", clientID, "sessionId", sessionID)
		return
	}

	inst, ok := s.manager.Get(reg.RoomCode)
	if !ok {
		return
	}

	snap, empty, err := inst.Leave(clientID)
	if err != nil {
		return
	}

	s.logger.Info("Member disconnected", "code", reg.RoomCode, "clientId", clientID)

	if empty {
		s.manager.Remove(reg.RoomCode)
		s.dropPersisted(reg.RoomCode)
		return
	}

	s.persist(snap)
	s.broadcast(reg.RoomCode, clientID, EventMemberLeft, MemberPush{
		Code:    reg.RoomCode,
		Member:  Member{ClientID: clientID},
		Members: snap.Members,
		HostID:  snap.HostID,
	})
}

// NotifyMemberTimeout 心跳超时通知（由 LivenessChecker 回调）
func (s *Service) NotifyMemberTimeout(code string, member Member) {
	inst, ok := s.manager.Get(code)
	if !ok {
		return
	}
	snap := inst.Snapshot()
	s.broadcast(code, member.ClientID, EventMemberTimeout, MemberPush{
		Code:    code,
		Member:  member,
		Members: snap.Members,
		HostID:  snap.HostID,
	})
}

// NotifyEvicted 房间被淘汰前的通知（由 Manager 回调）
func (s *Service) NotifyEvicted(code string) {
	s.broadcast(code, "", EventMemberLeft, MemberPush{Code: code})
	s.dropPersisted(code)
}

// ============================================================================
// 队列操作
// ============================================================================

func (s *Service) queueOp(code, clientID string, op func(inst *Instance) (QueueResult, error)) (QueueResult, error) {
	inst, ok := s.manager.Get(code)
	if !ok {
		return QueueResult{}, ErrRoomNotFound
	}

	result, err := op(inst)
	if err != nil {
		return QueueResult{}, err
	}

	snap := inst.Snapshot()
	s.persist(snap)
	s.broadcast(code, clientID, EventQueueUpdated, QueueUpdatedPush{
		Code:              code,
		Playlist:          result.Playlist,
		CurrentTrackIndex: result.CurrentTrackIndex,
		LoopMode:          snap.LoopMode,
	})
	return result, nil
}

// QueueAdd 添加曲目
func (s *Service) QueueAdd(code, clientID string, track Track) (QueueResult, error) {
	return s.queueOp(code, clientID, func(inst *Instance) (QueueResult, error) {
		return inst.AddTrack(clientID, track)
	})
}

// QueueRemove 移除曲目
func (s *Service) QueueRemove(code, clientID, trackID string) (QueueResult, error) {
	return s.queueOp(code, clientID, func(inst *Instance) (QueueResult, error) {
		return inst.RemoveTrack(clientID, trackID)
	})
}

// QueueReorder 重排队列
func (s *Service) QueueReorder(code, clientID string, from, to int) (QueueResult, error) {
	return s.queueOp(code, clientID, func(inst *Instance) (QueueResult, error) {
		return inst.Reorder(clientID, from, to)
	})
}

// QueueJump 跳转到指定下标
func (s *Service) QueueJump(code, clientID string, target int) (QueueResult, error) {
	return s.queueOp(code, clientID, func(inst *Instance) (QueueResult, error) {
		return inst.Jump(clientID, target)
	})
}

// QueueAdvance 前进/后退
func (s *Service) QueueAdvance(code, clientID string, direction Direction) (QueueResult, error) {
	return s.queueOp(code, clientID, func(inst *Instance) (QueueResult, error) {
		return inst.Advance(clientID, direction)
	})
}

// QueueSetLoopMode 设置循环模式
func (s *Service) QueueSetLoopMode(code, clientID string, mode LoopMode) (QueueResult, error) {
	return s.queueOp(code, clientID, func(inst *Instance) (QueueResult, error) {
		return inst.SetLoopMode(clientID, mode)
	})
}

// ============================================================================
// 播放状态
// ============================================================================

// ApplySync 应用播放状态写入并在接受后广播给其他成员
// applied 为 false 表示等版本并发写被吸收（成功但不广播）
func (s *Service) ApplySync(params SyncParams) (SyncState, bool, error) {
	inst, ok := s.manager.Get(params.Code)
	if !ok {
		return SyncState{}, false, ErrRoomNotFound
	}

	state, applied, err := inst.ApplySync(params.Update)
	if err != nil {
		s.logger.Debug("Sync update rejected",
			"code", params.Code,
			"writer", params.Update.WriterID,
			"error", err)
		return SyncState{}, false, err
	}

	if applied {
		s.persist(inst.Snapshot())
		s.broadcast(params.Code, params.Update.WriterID, EventSyncState, SyncStatePush{
			Code: params.Code,
			Sync: state,
		})
	}
	return state, applied, nil
}

// Heartbeat 成员心跳
func (s *Service) Heartbeat(params HeartbeatParams) error {
	inst, ok := s.manager.Get(params.Code)
	if !ok {
		return ErrRoomNotFound
	}
	return inst.Heartbeat(params.ClientID, params.LatencyMs, params.ClockOffsetMs)
}
