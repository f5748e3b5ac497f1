package room

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"
	"regexp"
	"sync"
	"time"
)

var roomCodePattern = regexp.MustCompile(`^\d{6}$`)

// ValidateCode 校验房间码格式（6 位数字）
func ValidateCode(code string) error {
	if !roomCodePattern.MatchString(code) {
		return ErrInvalidRoomCode
	}
	return nil
}

// Manager 房间管理器
// 管理所有房间实例的生命周期，周期性淘汰不活跃的房间
type Manager struct {
	rooms sync.Map // code -> *Instance

	opts          Options
	evictTimeout  time.Duration
	evictInterval time.Duration

	// 淘汰房间前的通知回调（广播 room 即将销毁等）
	onEvict func(code string)

	logger *slog.Logger
}

// NewManager 创建房间管理器
func NewManager(opts Options, evictTimeout, evictInterval time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if evictTimeout <= 0 {
		evictTimeout = 30 * time.Minute
	}
	if evictInterval <= 0 {
		evictInterval = time.Minute
	}
	return &Manager{
		opts:          opts,
		evictTimeout:  evictTimeout,
		evictInterval: evictInterval,
		logger:        logger.With("component", "RoomManager"),
	}
}

// SetOnEvict 设置淘汰通知回调
func (m *Manager) SetOnEvict(fn func(code string)) {
	m.onEvict = fn
}

// Create 创建房间并生成唯一的 6 位房间码
func (m *Manager) Create(hostID string, controlMode ControlMode) (*Instance, error) {
	if controlMode == "" {
		controlMode = ControlOpen
	}
	if controlMode != ControlOpen && controlMode != ControlHostOnly {
		return nil, ErrInvalidControlMode
	}

	// 碰撞时重新生成，房间码空间 10^6，碰撞概率可忽略
	for attempt := 0; attempt < 16; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		inst := NewInstance(code, hostID, controlMode, m.opts)
		if _, loaded := m.rooms.LoadOrStore(code, inst); !loaded {
			m.logger.Info("Room created", "code", code, "host", hostID)
			return inst, nil
		}
	}
	return nil, ErrCodeSpaceExhausted
}

// Get 获取房间
func (m *Manager) Get(code string) (*Instance, bool) {
	val, ok := m.rooms.Load(code)
	if !ok {
		return nil, false
	}
	return val.(*Instance), true
}

// Remove 移除房间
func (m *Manager) Remove(code string) {
	m.rooms.Delete(code)
	m.logger.Info("Room removed", "code", code)
}

// Count 返回当前房间数
func (m *Manager) Count() int {
	count := 0
	m.rooms.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// Range 遍历所有房间
func (m *Manager) Range(fn func(inst *Instance) bool) {
	m.rooms.Range(func(_, value any) bool {
		return fn(value.(*Instance))
	})
}

// RunEvictLoop 淘汰循环（阻塞，应在 goroutine 中调用）
func (m *Manager) RunEvictLoop(ctx context.Context) {
	ticker := time.NewTicker(m.evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictInactive()
		}
	}
}

// evictInactive 淘汰超过不活跃时限的房间
func (m *Manager) evictInactive() {
	now := time.Now()
	var toEvict []string

	m.rooms.Range(func(key, value any) bool {
		inst := value.(*Instance)
		if now.Sub(inst.LastActiveTime()) > m.evictTimeout {
			toEvict = append(toEvict, key.(string))
		}
		return true
	})

	for _, code := range toEvict {
		if m.onEvict != nil {
			m.onEvict(code)
		}
		m.Remove(code)
		m.logger.Info("Evicted inactive room", "code", code)
	}
}

// generateCode 生成 6 位数字房间码
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	code := n.Int64()
	buf := []byte{
		byte('0' + code/100000%10),
		byte('0' + code/10000%10),
		byte('0' + code/1000%10),
		byte('0' + code/100%10),
		byte('0' + code/10%10),
		byte('0' + code%10),
	}
	return string(buf), nil
}
