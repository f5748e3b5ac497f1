package session

import (
	"log/slog"
	"sync"
	"time"
)

// Registration 记录一个稳定客户端身份当前绑定的传输会话
// ClientID 由客户端持久化保存，跨重连不变；SessionID 每次连接重新分配
type Registration struct {
	ClientID    string
	SessionID   string
	UserID      string
	RoomCode    string
	ConnectedAt time.Time
}

// Tracker 连接身份追踪器
// 核心职责：防止「断开-重连」竞态把仍在线的成员误踢出房间
// 快速重连的新会话可能先于旧会话的断开通知到达，此时旧会话的断开
// 必须被忽略——该成员已由新会话代表
type Tracker struct {
	mu       sync.RWMutex
	byClient map[string]*Registration
	logger   *slog.Logger
}

// NewTracker 创建连接身份追踪器
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		byClient: make(map[string]*Registration),
		logger:   logger.With("component", "SessionTracker"),
	}
}

// Register 注册（或覆盖）客户端当前的传输会话
// 重连时新会话直接覆盖旧会话的注册
func (t *Tracker) Register(clientID, sessionID, userID, roomCode string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, existed := t.byClient[clientID]
	t.byClient[clientID] = &Registration{
		ClientID:    clientID,
		SessionID:   sessionID,
		UserID:      userID,
		RoomCode:    roomCode,
		ConnectedAt: time.Now(),
	}

	if existed && prev.SessionID != sessionID {
		t.logger.Debug("Session replaced",
			"clientId", clientID,
			"oldSession", prev.SessionID,
			"newSession", sessionID)
	}
}

// Current 返回客户端当前的注册信息
func (t *Tracker) Current(clientID string) (Registration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	reg, ok := t.byClient[clientID]
	if !ok {
		return Registration{}, false
	}
	return *reg, true
}

// IsCurrent 判断 sessionID 是否仍是该客户端的当前会话
func (t *Tracker) IsCurrent(clientID, sessionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	reg, ok := t.byClient[clientID]
	return ok && reg.SessionID == sessionID
}

// ReleaseIfCurrent 仅当断开的会话仍是该客户端的当前会话时才移除注册
// 返回 true 表示注册被移除，调用方应继续执行成员移除；
// 返回 false 表示该会话已被更新的会话取代，断开通知应被完全忽略
func (t *Tracker) ReleaseIfCurrent(clientID, sessionID string) (Registration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	reg, ok := t.byClient[clientID]
	if !ok {
		return Registration{}, false
	}
	if reg.SessionID != sessionID {
		t.logger.Debug("Ignoring disconnect for superseded session",
			"clientId", clientID,
			"staleSession", sessionID,
			"currentSession", reg.SessionID)
		return Registration{}, false
	}

	delete(t.byClient, clientID)
	return *reg, true
}

// Count 返回当前注册数
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byClient)
}
