package room

import (
	"context"
	"log/slog"
	"time"
)

// LivenessChecker 成员心跳超时检测器
// 与传输层的断开处理（会话追踪）相互独立：
// 专门捕获传输从未上报断开的「僵尸」会话
type LivenessChecker struct {
	manager       *Manager
	timeout       time.Duration
	checkInterval time.Duration
	logger        *slog.Logger
	onTimeout     func(code string, member Member) // 超时回调
}

// NewLivenessChecker 创建心跳检测器
// 默认：检查间隔 5 分钟，超时 10 分钟
func NewLivenessChecker(manager *Manager, timeout, checkInterval time.Duration, logger *slog.Logger, onTimeout func(code string, member Member)) *LivenessChecker {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if checkInterval <= 0 {
		checkInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &LivenessChecker{
		manager:       manager,
		timeout:       timeout,
		checkInterval: checkInterval,
		logger:        logger.With("component", "LivenessChecker"),
		onTimeout:     onTimeout,
	}
}

// Start 启动心跳检测（阻塞，应在 goroutine 中调用）
func (l *LivenessChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(l.checkInterval)
	defer ticker.Stop()

	l.logger.Info("Liveness checker started",
		"timeout", l.timeout,
		"check_interval", l.checkInterval)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Liveness checker stopped")
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep 扫描所有房间，把心跳超时的成员标记为 disconnected 并通知
func (l *LivenessChecker) sweep() {
	l.manager.Range(func(inst *Instance) bool {
		expired := inst.SweepExpired(l.timeout)
		for _, m := range expired {
			l.logger.Info("Member heartbeat timeout",
				"code", inst.Code(),
				"clientId", m.ClientID,
				"lastSeen", m.LastSeen)
			if l.onTimeout != nil {
				l.onTimeout(inst.Code(), m)
			}
		}
		return true
	})
}
