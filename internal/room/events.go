package room

// 服务端推送事件名
// 推送为 fire-and-forget，不要求确认；正确性不依赖推送的到达顺序，
// 而是依赖 SyncState 的版本号
const (
	EventSyncState     = "sync:state"
	EventQueueUpdated  = "queue:updated"
	EventMemberJoined  = "member:joined"
	EventMemberLeft    = "member:left"
	EventMemberTimeout = "member:timeout"
	EventStateSnapshot = "room:state_snapshot"
)

// SyncStatePush sync:state 推送载荷
type SyncStatePush struct {
	Code string    `json:"code"`
	Sync SyncState `json:"sync"`
}

// QueueUpdatedPush queue:updated 推送载荷
type QueueUpdatedPush struct {
	Code              string       `json:"code"`
	Playlist          []QueueEntry `json:"playlist"`
	CurrentTrackIndex int          `json:"current_track_index"`
	LoopMode          LoopMode     `json:"loop_mode"`
}

// MemberPush member:joined / member:left / member:timeout 推送载荷
// 离开时 HostID 可能已转移给新房主
type MemberPush struct {
	Code    string   `json:"code"`
	Member  Member   `json:"member"`
	Members []Member `json:"members"`
	HostID  string   `json:"host_id"`
}
