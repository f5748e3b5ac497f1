package room

import "time"

// PlaybackStatus 播放状态
type PlaybackStatus string

const (
	StatusPlaying PlaybackStatus = "playing"
	StatusPaused  PlaybackStatus = "paused"
	StatusLoading PlaybackStatus = "loading"
	StatusStopped PlaybackStatus = "stopped"
)

// ControlMode 控制模式：open 任意成员可控制，host-only 仅房主可控制
type ControlMode string

const (
	ControlOpen     ControlMode = "open"
	ControlHostOnly ControlMode = "host-only"
)

// LoopMode 循环模式
type LoopMode string

const (
	LoopNone  LoopMode = "none"
	LoopQueue LoopMode = "queue"
)

// Direction 队列前进方向
type Direction string

const (
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
)

// MemberState 成员连接状态
type MemberState string

const (
	MemberConnected    MemberState = "connected"
	MemberReconnecting MemberState = "reconnecting"
	MemberDisconnected MemberState = "disconnected"
)

// SyncState 房间的权威播放状态
// Version 对同一房间的写入严格单调递增（回绕点除外）
type SyncState struct {
	TrackID    *string        `json:"track_id"`    // 当前曲目，nil 表示无
	Status     PlaybackStatus `json:"status"`      // 播放状态
	PositionMs int64          `json:"position_ms"` // 播放位置（毫秒）
	UpdatedAt  int64          `json:"updated_at"`  // 最后一次写入的服务端时间戳（毫秒）
	Rate       float64        `json:"rate"`        // 播放速率
	Volume     float64        `json:"volume"`      // 音量 0.0-1.0
	LastWriter string         `json:"last_writer"` // 最后写入者的 clientId
	Version    int64          `json:"version"`     // 单调版本号
}

// Track 曲目元数据（不可变）
// MediaURL 由外部媒体解析服务提供，核心只存储转发
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	DurationMs int64  `json:"duration_ms"`
	MediaURL   string `json:"media_url"`
}

// QueueEntry 队列条目
// EntryID 与 TrackID 独立，同一曲目可在队列中出现多次
type QueueEntry struct {
	EntryID string    `json:"entry_id"`
	Track   Track     `json:"track"`
	AddedBy string    `json:"added_by"` // 添加者 clientId
	AddedAt time.Time `json:"added_at"`
}

// Member 房间成员
// ClientID 跨重连稳定，与每次连接分配的传输会话 ID 区分
type Member struct {
	ClientID      string      `json:"client_id"`
	DisplayName   string      `json:"display_name"`
	State         MemberState `json:"state"`
	LastSeen      time.Time   `json:"last_seen"`
	LatencyMs     int64       `json:"latency_ms"`
	ClockOffsetMs int64       `json:"clock_offset_ms"`
	JoinedAt      time.Time   `json:"joined_at"`
}

// Snapshot 房间完整快照（只读）
// 重连后的客户端对账总是拉取完整快照，而不是信任增量更新
type Snapshot struct {
	Code              string       `json:"code"`
	HostID            string       `json:"host_id"`
	ControlMode       ControlMode  `json:"control_mode"`
	LoopMode          LoopMode     `json:"loop_mode"`
	Members           []Member     `json:"members"`
	Playlist          []QueueEntry `json:"playlist"`
	CurrentTrackIndex int          `json:"current_track_index"`
	Sync              SyncState    `json:"sync"`
	CreatedAt         time.Time    `json:"created_at"`
	LastActiveAt      time.Time    `json:"last_active_at"`
	ServerTimeMs      int64        `json:"server_time_ms"` // 快照构建时的服务端时间
}

// CurrentTrack 返回快照中当前条目，索引为 -1 或越界时返回 nil
func (s *Snapshot) CurrentTrack() *QueueEntry {
	if s.CurrentTrackIndex < 0 || s.CurrentTrackIndex >= len(s.Playlist) {
		return nil
	}
	return &s.Playlist[s.CurrentTrackIndex]
}
