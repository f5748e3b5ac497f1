package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrReconnectExhausted = errors.New("RECONNECT_EXHAUSTED")

// ReconnectState 重连状态机
type ReconnectState string

const (
	ReconnectIdle    ReconnectState = "idle"
	ReconnectRunning ReconnectState = "reconnecting"
	ReconnectFailed  ReconnectState = "failed"
)

// ConnectFunc 完成一轮重建：拨号、room:rejoin、对账
type ConnectFunc func(ctx context.Context) error

// OrchestratorOptions 重连配置
type OrchestratorOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration // 第 n 次重试前等 n*BaseDelay
}

func DefaultOrchestratorOptions() OrchestratorOptions {
	return OrchestratorOptions{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
	}
}

// Orchestrator 重连编排
// 网络恢复和回到前台是两个独立触发源；离线期间绝不尝试，
// 连通性确认恢复后恰好重试一轮。次数耗尽进入 failed 终态，
// 只有用户显式 Reset 才会再试
type Orchestrator struct {
	opts    OrchestratorOptions
	connect ConnectFunc
	logger  *slog.Logger

	mu       sync.Mutex
	state    ReconnectState
	online   bool
	attempts int
	running  bool

	// 测试注入
	sleepFn func(ctx context.Context, d time.Duration) bool
}

func NewOrchestrator(opts OrchestratorOptions, connect ConnectFunc, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		opts:    opts,
		connect: connect,
		logger:  logger.With("component", "reconnect"),
		state:   ReconnectIdle,
		online:  true,
		sleepFn: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// State 当前状态
func (o *Orchestrator) State() ReconnectState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Attempts 已消耗的重试次数
func (o *Orchestrator) Attempts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attempts
}

// NotifyConnectivity 网络连通性变化
// 恢复在线时触发一轮重连；掉线只记状态
func (o *Orchestrator) NotifyConnectivity(ctx context.Context, online bool) {
	o.mu.Lock()
	was := o.online
	o.online = online
	o.mu.Unlock()

	if online && !was {
		o.Trigger(ctx)
	}
}

// NotifyForeground 应用回到前台
func (o *Orchestrator) NotifyForeground(ctx context.Context) {
	o.Trigger(ctx)
}

// Trigger 请求一轮重连
// 已在重连中的触发被合并；failed 状态下忽略一切触发直到 Reset
func (o *Orchestrator) Trigger(ctx context.Context) {
	o.mu.Lock()
	if o.running || o.state == ReconnectFailed || !o.online {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.state = ReconnectRunning
	o.mu.Unlock()

	go o.run(ctx)
}

func (o *Orchestrator) run(ctx context.Context) {
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	for {
		o.mu.Lock()
		if !o.online {
			// 掉线了，等下一次连通性恢复再触发
			o.state = ReconnectIdle
			o.mu.Unlock()
			return
		}
		if o.attempts >= o.opts.MaxAttempts {
			o.state = ReconnectFailed
			o.mu.Unlock()
			o.logger.Warn("Reconnect attempts exhausted", "attempts", o.opts.MaxAttempts)
			return
		}
		o.attempts++
		attempt := o.attempts
		o.mu.Unlock()

		err := o.connect(ctx)
		if err == nil {
			o.mu.Lock()
			o.state = ReconnectIdle
			o.attempts = 0
			o.mu.Unlock()
			o.logger.Info("Reconnected", "attempt", attempt)
			return
		}

		o.logger.Warn("Reconnect attempt failed", "attempt", attempt, "error", err)

		// 退避间隔随次数线性增长
		if !o.sleepFn(ctx, time.Duration(attempt)*o.opts.BaseDelay) {
			o.mu.Lock()
			o.state = ReconnectIdle
			o.mu.Unlock()
			return
		}
	}
}

// Reset 用户显式重试：清零计数并允许再次触发
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = 0
	if o.state == ReconnectFailed {
		o.state = ReconnectIdle
	}
}
