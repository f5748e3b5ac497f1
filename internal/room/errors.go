package room

import "errors"

// 房间错误定义
// 冲突类错误（版本过期、换曲防抖）与校验类错误使用不同的哨兵值，
// 调用方据此决定重试还是放弃

var (
	// 校验错误
	ErrRoomNotFound       = errors.New("ROOM_NOT_FOUND")
	ErrInvalidRoomCode    = errors.New("INVALID_ROOM_CODE")
	ErrNotInRoom          = errors.New("NOT_IN_ROOM")
	ErrAlreadyInRoom      = errors.New("ALREADY_IN_ROOM")
	ErrNotPermitted       = errors.New("NOT_PERMITTED")
	ErrInvalidLoopMode    = errors.New("INVALID_LOOP_MODE")
	ErrInvalidStatus      = errors.New("INVALID_STATUS")
	ErrInvalidControlMode = errors.New("INVALID_CONTROL_MODE")
	ErrCodeSpaceExhausted = errors.New("CODE_SPACE_EXHAUSTED")

	// 队列校验错误
	ErrDuplicateTrack   = errors.New("DUPLICATE_TRACK")
	ErrQueueFull        = errors.New("QUEUE_FULL")
	ErrTrackNotFound    = errors.New("TRACK_NOT_FOUND")
	ErrIndexOutOfRange  = errors.New("INDEX_OUT_OF_RANGE")
	ErrIndexFrozen      = errors.New("INDEX_FROZEN") // reorder 触及当前或历史区域
	ErrInvalidDirection = errors.New("INVALID_DIRECTION")

	// 冲突错误（可区分，调用方可选择重试）
	ErrVersionStale        = errors.New("VERSION_STALE")
	ErrTrackChangeDebounce = errors.New("TRACK_CHANGE_DEBOUNCED")
)
