package protocol

import (
	"encoding/json"
	"errors"

	"sudooom.musicroom/internal/room"
)

// 请求事件名，客户端发起、服务端逐条确认
const (
	TypeRoomCreate    = "room:create"
	TypeRoomJoin      = "room:join"
	TypeRoomRejoin    = "room:rejoin"
	TypeRoomLeave     = "room:leave"
	TypeRoomVerify    = "room:verify"
	TypeQueueAdd      = "queue:add"
	TypeQueueRemove   = "queue:remove"
	TypeQueueReorder  = "queue:reorder"
	TypeQueueJump     = "queue:jump"
	TypeQueueAdvance  = "queue:advance"
	TypeQueueLoopMode = "queue:loop_mode"
	TypeSyncPlay      = "sync:play"
	TypeSyncPause     = "sync:pause"
	TypeSyncSeek      = "sync:seek"
	TypeSyncHeartbeat = "sync:heartbeat"
	TypeTimeSync      = "time:sync_request"
)

var (
	ErrUnknownType    = errors.New("UNKNOWN_MESSAGE_TYPE")
	ErrMissingReqID   = errors.New("MISSING_REQ_ID")
	ErrMalformedFrame = errors.New("MALFORMED_FRAME")
	ErrBadPayload     = errors.New("BAD_PAYLOAD")
)

// Request 客户端请求帧
// payload 按 type 区分，到达核心前在边界上解码并校验
type Request struct {
	Type    string          `json:"type"`
	ReqID   string          `json:"req_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response 请求确认帧，req_id 回显用于客户端关联
// 所有请求都以 success/error 收尾，错误是原因令牌而不是自由文本
type Response struct {
	Type    string `json:"type"`
	ReqID   string `json:"req_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Push 服务端推送帧，无 req_id，不要求确认
type Push struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

var knownTypes = map[string]struct{}{
	TypeRoomCreate:    {},
	TypeRoomJoin:      {},
	TypeRoomRejoin:    {},
	TypeRoomLeave:     {},
	TypeRoomVerify:    {},
	TypeQueueAdd:      {},
	TypeQueueRemove:   {},
	TypeQueueReorder:  {},
	TypeQueueJump:     {},
	TypeQueueAdvance:  {},
	TypeQueueLoopMode: {},
	TypeSyncPlay:      {},
	TypeSyncPause:     {},
	TypeSyncSeek:      {},
	TypeSyncHeartbeat: {},
	TypeTimeSync:      {},
}

// DecodeRequest 解析并校验一帧客户端请求
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, ErrMalformedFrame
	}
	if _, ok := knownTypes[req.Type]; !ok {
		return nil, ErrUnknownType
	}
	if req.ReqID == "" {
		return nil, ErrMissingReqID
	}
	return &req, nil
}

// Ack 构造成功确认
func Ack(req *Request, payload any) *Response {
	return &Response{Type: req.Type, ReqID: req.ReqID, Success: true, Payload: payload}
}

// Nack 构造失败确认，错误统一转成原因令牌
func Nack(req *Request, err error) *Response {
	return &Response{Type: req.Type, ReqID: req.ReqID, Success: false, Error: err.Error()}
}

// ============ 请求载荷 ============

// CreateRoomPayload room:create
type CreateRoomPayload struct {
	DisplayName string `json:"display_name"`
	ControlMode string `json:"control_mode,omitempty"`
}

// JoinRoomPayload room:join
type JoinRoomPayload struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
}

// RejoinRoomPayload room:rejoin
// token 证明该 client_id 曾属于这个房间
type RejoinRoomPayload struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}

// RoomCodePayload room:leave / room:verify 只带房间码
type RoomCodePayload struct {
	Code string `json:"code"`
}

// QueueAddPayload queue:add
type QueueAddPayload struct {
	Code  string     `json:"code"`
	Track room.Track `json:"track"`
}

// QueueRemovePayload queue:remove
type QueueRemovePayload struct {
	Code    string `json:"code"`
	TrackID string `json:"track_id"`
}

// QueueJumpPayload queue:jump
type QueueJumpPayload struct {
	Code  string `json:"code"`
	Index int    `json:"index"`
}

// QueueReorderPayload queue:reorder
type QueueReorderPayload struct {
	Code string `json:"code"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

// QueueAdvancePayload queue:advance
type QueueAdvancePayload struct {
	Code      string `json:"code"`
	Direction string `json:"direction"`
}

// QueueLoopModePayload queue:loop_mode
type QueueLoopModePayload struct {
	Code     string `json:"code"`
	LoopMode string `json:"loop_mode"`
}

// SyncPayload sync:play / sync:pause / sync:seek
// 客户端带乐观版本号，服务端按 LWW 仲裁
// track_id、volume 缺省表示保持当前值（0 是合法音量，缺省必须是 null）
type SyncPayload struct {
	Code       string   `json:"code"`
	TrackID    *string  `json:"track_id,omitempty"`
	PositionMs int64    `json:"position_ms"`
	Rate       float64  `json:"rate,omitempty"`
	Volume     *float64 `json:"volume,omitempty"`
	Version    int64    `json:"version"`
}

// HeartbeatPayload sync:heartbeat
type HeartbeatPayload struct {
	Code          string `json:"code"`
	LatencyMs     int64  `json:"latency_ms"`
	ClockOffsetMs int64  `json:"clock_offset_ms"`
}

// TimeSyncPayload time:sync_request，NTP 风格探测的 t0
type TimeSyncPayload struct {
	ClientSendMs int64 `json:"client_send_ms"`
}

// ============ 响应载荷 ============

// RoomStatePayload room:create / room:join / room:rejoin 的确认载荷
type RoomStatePayload struct {
	Snapshot    *room.Snapshot `json:"snapshot"`
	RejoinToken string         `json:"rejoin_token,omitempty"`
}

// VerifyPayload room:verify 的确认载荷
type VerifyPayload struct {
	Exists      bool `json:"exists"`
	MemberCount int  `json:"member_count"`
}

// QueuePayload queue:* 的确认载荷
type QueuePayload struct {
	Playlist          []room.QueueEntry `json:"playlist"`
	CurrentTrackIndex int               `json:"current_track_index"`
	LoopMode          room.LoopMode     `json:"loop_mode"`
}

// SyncAckPayload sync:* 的确认载荷
// applied=false 且 success=true 表示等版本并发写被吸收
type SyncAckPayload struct {
	Applied bool           `json:"applied"`
	Sync    room.SyncState `json:"sync"`
}

// TimeSyncReply time:sync_request 的确认载荷
// t1/t2 由服务端在收到与发出时刻打点
type TimeSyncReply struct {
	ClientSendMs    int64 `json:"client_send_ms"`
	ServerReceiveMs int64 `json:"server_receive_ms"`
	ServerSendMs    int64 `json:"server_send_ms"`
}

// Bind 把请求 payload 解码到目标结构
func (r *Request) Bind(v any) error {
	if len(r.Payload) == 0 {
		return ErrBadPayload
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return ErrBadPayload
	}
	return nil
}
