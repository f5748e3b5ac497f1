package server

import (
	"encoding/json"
	"log/slog"

	"sudooom.musicroom/internal/protocol"
	"sudooom.musicroom/internal/workerpool"
)

// EventMirror 房间事件的旁路出口（NATS 桥等），nil 表示不镜像
type EventMirror interface {
	PublishEvent(code, event string, payload any)
}

// Broadcaster 把房间事件下发给房间内的所有连接
// 下发经过 worker pool，房间锁之外执行，慢连接不阻塞房间操作
type Broadcaster struct {
	connMgr *Manager
	pool    *workerpool.Pool
	mirror  EventMirror
	logger  *slog.Logger
}

func NewBroadcaster(connMgr *Manager, pool *workerpool.Pool, mirror EventMirror, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		connMgr: connMgr,
		pool:    pool,
		mirror:  mirror,
		logger:  logger.With("component", "broadcaster"),
	}
}

// BroadcastToRoom 推送事件给房间内除 excludeClientID 外的所有连接
func (b *Broadcaster) BroadcastToRoom(code, excludeClientID, event string, payload any) {
	frame, err := json.Marshal(&protocol.Push{Type: event, Payload: payload})
	if err != nil {
		b.logger.Error("Failed to marshal push", "event", event, "error", err)
		return
	}

	for _, conn := range b.connMgr.GetByRoom(code) {
		if excludeClientID != "" && conn.ClientID() == excludeClientID {
			continue
		}
		c := conn
		if !b.pool.TrySubmit(func() {
			if err := c.Send(frame); err != nil {
				b.logger.Debug("Push dropped", "session_id", c.SessionID(), "event", event)
			}
		}) {
			b.logger.Warn("Broadcast queue full, push dropped", "code", code, "event", event)
		}
	}

	if b.mirror != nil {
		b.mirror.PublishEvent(code, event, payload)
	}
}
