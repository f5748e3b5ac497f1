package server

import (
	"encoding/json"
	"log/slog"
	"time"

	"sudooom.musicroom/internal/protocol"
	"sudooom.musicroom/internal/room"
	"sudooom.musicroom/internal/token"
)

// Handler 请求分发器
// 在传输边界上解码并校验帧，再调用房间服务；所有请求都以 ack/nack 收尾
type Handler struct {
	svc     *room.Service
	tokens  *token.Service
	connMgr *Manager
	logger  *slog.Logger
	nowFn   func() time.Time
}

func NewHandler(svc *room.Service, tokens *token.Service, connMgr *Manager, logger *slog.Logger) *Handler {
	return &Handler{
		svc:     svc,
		tokens:  tokens,
		connMgr: connMgr,
		logger:  logger.With("component", "handler"),
		nowFn:   time.Now,
	}
}

// HandleFrame 处理一帧客户端请求并应答
func (h *Handler) HandleFrame(conn *Connection, data []byte) {
	// time:sync 的 t1 必须在进入任何处理前打点
	receivedAt := h.nowFn()

	req, err := protocol.DecodeRequest(data)
	if err != nil {
		// 无法关联 req_id 的帧只能丢弃
		h.logger.Warn("Dropping bad frame",
			"session_id", conn.SessionID(), "error", err)
		return
	}

	var resp *protocol.Response
	switch req.Type {
	case protocol.TypeTimeSync:
		resp = h.handleTimeSync(req, receivedAt)
	case protocol.TypeRoomCreate:
		resp = h.handleRoomCreate(conn, req)
	case protocol.TypeRoomJoin:
		resp = h.handleRoomJoin(conn, req)
	case protocol.TypeRoomRejoin:
		resp = h.handleRoomRejoin(conn, req)
	case protocol.TypeRoomLeave:
		resp = h.handleRoomLeave(conn, req)
	case protocol.TypeRoomVerify:
		resp = h.handleRoomVerify(conn, req)
	case protocol.TypeQueueAdd:
		resp = h.handleQueueAdd(conn, req)
	case protocol.TypeQueueRemove:
		resp = h.handleQueueRemove(conn, req)
	case protocol.TypeQueueReorder:
		resp = h.handleQueueReorder(conn, req)
	case protocol.TypeQueueJump:
		resp = h.handleQueueJump(conn, req)
	case protocol.TypeQueueAdvance:
		resp = h.handleQueueAdvance(conn, req)
	case protocol.TypeQueueLoopMode:
		resp = h.handleQueueLoopMode(conn, req)
	case protocol.TypeSyncPlay, protocol.TypeSyncPause, protocol.TypeSyncSeek:
		resp = h.handleSync(conn, req)
	case protocol.TypeSyncHeartbeat:
		resp = h.handleHeartbeat(conn, req)
	default:
		resp = protocol.Nack(req, protocol.ErrUnknownType)
	}

	h.reply(conn, resp)
}

func (h *Handler) reply(conn *Connection, resp *protocol.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("Failed to marshal response", "type", resp.Type, "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		h.logger.Debug("Reply dropped, connection gone", "session_id", conn.SessionID())
	}
}

// handleTimeSync NTP 风格时间探测
// t1 在读到帧时打点，t2 在应答构造时打点
func (h *Handler) handleTimeSync(req *protocol.Request, receivedAt time.Time) *protocol.Response {
	var p protocol.TimeSyncPayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}
	return protocol.Ack(req, &protocol.TimeSyncReply{
		ClientSendMs:    p.ClientSendMs,
		ServerReceiveMs: receivedAt.UnixMilli(),
		ServerSendMs:    h.nowFn().UnixMilli(),
	})
}

func (h *Handler) handleRoomCreate(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.CreateRoomPayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}

	mode := room.ControlMode(p.ControlMode)
	if p.ControlMode == "" {
		mode = room.ControlOpen
	}

	snap, err := h.svc.CreateRoom(room.CreateRoomParams{
		ClientID:    conn.ClientID(),
		SessionID:   conn.SessionID(),
		DisplayName: p.DisplayName,
		ControlMode: mode,
	})
	if err != nil {
		return protocol.Nack(req, err)
	}

	h.connMgr.BindRoom(conn.SessionID(), snap.Code)
	return protocol.Ack(req, &protocol.RoomStatePayload{
		Snapshot:    snap,
		RejoinToken: h.issueToken(conn.ClientID(), snap.Code),
	})
}

func (h *Handler) handleRoomJoin(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.JoinRoomPayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}

	snap, err := h.svc.JoinRoom(room.JoinRoomParams{
		Code:        p.Code,
		ClientID:    conn.ClientID(),
		SessionID:   conn.SessionID(),
		DisplayName: p.DisplayName,
	})
	if err != nil {
		return protocol.Nack(req, err)
	}

	h.connMgr.BindRoom(conn.SessionID(), p.Code)
	return protocol.Ack(req, &protocol.RoomStatePayload{
		Snapshot:    snap,
		RejoinToken: h.issueToken(conn.ClientID(), p.Code),
	})
}

// handleRoomRejoin 重连后凭凭证回到房间，应答带完整快照供对账
func (h *Handler) handleRoomRejoin(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.RejoinRoomPayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}

	if h.tokens != nil {
		if _, err := h.tokens.Verify(p.Token, conn.ClientID(), p.Code); err != nil {
			return protocol.Nack(req, err)
		}
	}

	snap, err := h.svc.RejoinRoom(room.JoinRoomParams{
		Code:      p.Code,
		ClientID:  conn.ClientID(),
		SessionID: conn.SessionID(),
	})
	if err != nil {
		return protocol.Nack(req, err)
	}

	h.connMgr.BindRoom(conn.SessionID(), p.Code)

	// 除应答外再推一帧完整快照，走推送通道，供客户端的对账路径消费
	h.pushSnapshot(conn, snap)

	return protocol.Ack(req, &protocol.RoomStatePayload{
		Snapshot:    snap,
		RejoinToken: h.issueToken(conn.ClientID(), p.Code),
	})
}

func (h *Handler) pushSnapshot(conn *Connection, snap *room.Snapshot) {
	frame, err := json.Marshal(&protocol.Push{Type: room.EventStateSnapshot, Payload: snap})
	if err != nil {
		h.logger.Error("Failed to marshal snapshot push", "error", err)
		return
	}
	if err := conn.Send(frame); err != nil {
		h.logger.Debug("Snapshot push dropped", "session_id", conn.SessionID())
	}
}

func (h *Handler) handleRoomLeave(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.RoomCodePayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}

	if err := h.svc.LeaveRoom(room.LeaveRoomParams{
		Code:      p.Code,
		ClientID:  conn.ClientID(),
		SessionID: conn.SessionID(),
	}); err != nil {
		return protocol.Nack(req, err)
	}

	h.connMgr.UnbindRoom(conn.SessionID())
	return protocol.Ack(req, nil)
}

func (h *Handler) handleRoomVerify(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.RoomCodePayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}

	snap, err := h.svc.VerifyRoom(p.Code, conn.ClientID())
	if err != nil {
		if err == room.ErrRoomNotFound || err == room.ErrNotInRoom {
			return protocol.Ack(req, &protocol.VerifyPayload{Exists: false})
		}
		return protocol.Nack(req, err)
	}
	return protocol.Ack(req, &protocol.VerifyPayload{
		Exists:      true,
		MemberCount: len(snap.Members),
	})
}

func (h *Handler) queueAck(req *protocol.Request, code string, result room.QueueResult, err error) *protocol.Response {
	if err != nil {
		return protocol.Nack(req, err)
	}
	mode := room.LoopNone
	if snap, snapErr := h.svc.GetSnapshot(code); snapErr == nil {
		mode = snap.LoopMode
	}
	return protocol.Ack(req, &protocol.QueuePayload{
		Playlist:          result.Playlist,
		CurrentTrackIndex: result.CurrentTrackIndex,
		LoopMode:          mode,
	})
}

func (h *Handler) handleQueueAdd(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.QueueAddPayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}
	result, err := h.svc.QueueAdd(p.Code, conn.ClientID(), p.Track)
	return h.queueAck(req, p.Code, result, err)
}

func (h *Handler) handleQueueRemove(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.QueueRemovePayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}
	result, err := h.svc.QueueRemove(p.Code, conn.ClientID(), p.TrackID)
	return h.queueAck(req, p.Code, result, err)
}

func (h *Handler) handleQueueReorder(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.QueueReorderPayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}
	result, err := h.svc.QueueReorder(p.Code, conn.ClientID(), p.From, p.To)
	return h.queueAck(req, p.Code, result, err)
}

func (h *Handler) handleQueueJump(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.QueueJumpPayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}
	result, err := h.svc.QueueJump(p.Code, conn.ClientID(), p.Index)
	return h.queueAck(req, p.Code, result, err)
}

func (h *Handler) handleQueueAdvance(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.QueueAdvancePayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}
	result, err := h.svc.QueueAdvance(p.Code, conn.ClientID(), room.Direction(p.Direction))
	return h.queueAck(req, p.Code, result, err)
}

func (h *Handler) handleQueueLoopMode(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.QueueLoopModePayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}
	result, err := h.svc.QueueSetLoopMode(p.Code, conn.ClientID(), room.LoopMode(p.LoopMode))
	return h.queueAck(req, p.Code, result, err)
}

// handleSync sync:play / sync:pause / sync:seek
// 播放状态由事件名决定：seek 不带状态，保持当前值
func (h *Handler) handleSync(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.SyncPayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}

	var status room.PlaybackStatus
	switch req.Type {
	case protocol.TypeSyncPlay:
		status = room.StatusPlaying
	case protocol.TypeSyncPause:
		status = room.StatusPaused
	}

	state, applied, err := h.svc.ApplySync(room.SyncParams{
		Code: p.Code,
		Update: room.SyncUpdate{
			WriterID:   conn.ClientID(),
			TrackID:    p.TrackID,
			Status:     status,
			PositionMs: p.PositionMs,
			Rate:       p.Rate,
			Volume:     p.Volume,
			Version:    p.Version,
		},
	})
	if err != nil {
		return protocol.Nack(req, err)
	}
	return protocol.Ack(req, &protocol.SyncAckPayload{Applied: applied, Sync: state})
}

func (h *Handler) handleHeartbeat(conn *Connection, req *protocol.Request) *protocol.Response {
	var p protocol.HeartbeatPayload
	if err := req.Bind(&p); err != nil {
		return protocol.Nack(req, err)
	}

	if err := h.svc.Heartbeat(room.HeartbeatParams{
		Code:          p.Code,
		ClientID:      conn.ClientID(),
		LatencyMs:     p.LatencyMs,
		ClockOffsetMs: p.ClockOffsetMs,
	}); err != nil {
		return protocol.Nack(req, err)
	}
	return protocol.Ack(req, nil)
}

func (h *Handler) issueToken(clientID, code string) string {
	if h.tokens == nil {
		return ""
	}
	tok, err := h.tokens.Issue(clientID, code)
	if err != nil {
		h.logger.Error("Failed to issue rejoin token", "clientId", clientID, "error", err)
		return ""
	}
	return tok
}
