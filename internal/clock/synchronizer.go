package clock

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	ErrNoUsableSamples = errors.New("NO_USABLE_SAMPLES")
)

// Sample 一次往返测量结果
type Sample struct {
	OffsetMs int64     // 本次测量估算的时钟偏移（毫秒）
	DelayMs  int64     // 本次测量的网络往返延迟（毫秒）
	At       time.Time // 采样时间
}

// Prober 发送一次时间同步探测
// 实现方携带客户端发送时间 t0 发起请求，返回服务端的接收时间 t1 和发送时间 t2
// （均为服务端时钟毫秒值）
type Prober interface {
	SyncProbe(ctx context.Context, clientSendMs int64) (serverReceiveMs, serverSendMs int64, err error)
}

// Config 时钟同步配置
type Config struct {
	SampleWindow   int           // 滚动窗口大小，默认 10
	ProbeCount     int           // 每轮同步的探测次数，默认 10
	DelayCeiling   time.Duration // 往返延迟上限，超过则丢弃该样本，默认 500ms
	ResyncInterval time.Duration // 周期性重新同步间隔，默认 60s
}

// DefaultConfig 返回默认时钟同步配置
func DefaultConfig() Config {
	return Config{
		SampleWindow:   10,
		ProbeCount:     10,
		DelayCeiling:   500 * time.Millisecond,
		ResyncInterval: 60 * time.Second,
	}
}

// Synchronizer 客户端时钟同步器
// 通过 NTP 风格的往返探测估算 serverTime = localTime + offset
// 取滚动窗口内样本偏移的中位数而非均值，以抵抗单边网络抖动
type Synchronizer struct {
	mu       sync.RWMutex
	prober   Prober
	cfg      Config
	samples  []Sample // 滚动窗口，最多保留 cfg.SampleWindow 个
	offsetMs int64    // 当前生效的偏移，未同步成功前为 0
	synced   bool
	logger   *slog.Logger
	nowFn    func() int64 // 本地时钟（毫秒），测试时可替换
}

// NewSynchronizer 创建时钟同步器
func NewSynchronizer(prober Prober, cfg Config, logger *slog.Logger) *Synchronizer {
	if cfg.SampleWindow <= 0 {
		cfg.SampleWindow = 10
	}
	if cfg.ProbeCount <= 0 {
		cfg.ProbeCount = 10
	}
	if cfg.DelayCeiling <= 0 {
		cfg.DelayCeiling = 500 * time.Millisecond
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Synchronizer{
		prober: prober,
		cfg:    cfg,
		logger: logger.With("component", "ClockSynchronizer"),
		nowFn:  func() int64 { return time.Now().UnixMilli() },
	}
}

// Run 启动同步循环（阻塞，应在 goroutine 中调用）
// 立即执行一轮同步，之后按 ResyncInterval 周期性重复
func (s *Synchronizer) Run(ctx context.Context) {
	if err := s.Sync(ctx); err != nil {
		s.logger.Warn("Initial clock sync failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Warn("Clock resync failed", "error", err)
			}
		}
	}
}

// Sync 执行一轮同步：发送 ProbeCount 次探测并重新计算偏移
// 往返延迟超过 DelayCeiling 的样本视为不可靠并丢弃
func (s *Synchronizer) Sync(ctx context.Context) error {
	accepted := 0
	ceilingMs := s.cfg.DelayCeiling.Milliseconds()

	for i := 0; i < s.cfg.ProbeCount; i++ {
		t0 := s.nowFn()
		t1, t2, err := s.prober.SyncProbe(ctx, t0)
		t3 := s.nowFn()
		if err != nil {
			s.logger.Debug("Clock probe failed", "probe", i, "error", err)
			continue
		}

		delay := (t3 - t0) - (t2 - t1)
		if delay > ceilingMs {
			s.logger.Debug("Discarding high-delay sample", "probe", i, "delayMs", delay)
			continue
		}

		offset := ((t1 - t0) + (t2 - t3)) / 2
		s.addSample(Sample{OffsetMs: offset, DelayMs: delay, At: time.Now()})
		accepted++
	}

	if accepted == 0 {
		return ErrNoUsableSamples
	}

	s.recompute()
	return nil
}

// addSample 将样本加入滚动窗口，超出容量时淘汰最旧的
func (s *Synchronizer) addSample(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
	if len(s.samples) > s.cfg.SampleWindow {
		s.samples = s.samples[len(s.samples)-s.cfg.SampleWindow:]
	}
}

// recompute 取窗口内样本偏移的中位数作为生效偏移
func (s *Synchronizer) recompute() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return
	}

	offsets := make([]int64, len(s.samples))
	for i, sample := range s.samples {
		offsets[i] = sample.OffsetMs
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	mid := len(offsets) / 2
	if len(offsets)%2 == 1 {
		s.offsetMs = offsets[mid]
	} else {
		s.offsetMs = (offsets[mid-1] + offsets[mid]) / 2
	}
	s.synced = true

	s.logger.Debug("Clock offset updated",
		"offsetMs", s.offsetMs,
		"samples", len(offsets))
}

// Offset 返回当前生效的时钟偏移（毫秒）
// 从未同步成功时返回 0
func (s *Synchronizer) Offset() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offsetMs
}

// Synced 返回是否已至少成功同步过一次
func (s *Synchronizer) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// ServerTime 返回当前估算的服务端时间（毫秒）
// 可在任意时刻同步调用，使用最近一次计算出的偏移
func (s *Synchronizer) ServerTime() int64 {
	return s.nowFn() + s.Offset()
}

// Samples 返回当前窗口内样本的副本（诊断用）
func (s *Synchronizer) Samples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}
