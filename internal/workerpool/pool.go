package workerpool

import (
	"log/slog"
	"sync"
)

// Task 一个下发任务（通常是向单个连接写一帧推送）
type Task func()

// Pool 固定大小的推送下发协程池
// 房间广播在这里与房间锁解耦：任务入队即返回，慢连接最多占住一个
// worker。队列满时入队失败而不是阻塞——推送是 fire-and-forget，
// 丢帧由客户端的对账路径补齐
type Pool struct {
	mu     sync.RWMutex
	closed bool

	tasks  chan Task
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New 创建下发池并立即启动 workers 个工作协程
func New(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		tasks:  make(chan Task, queueSize),
		logger: logger.With("component", "BroadcastPool"),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}

	p.logger.Info("Broadcast pool started",
		"workers", workers,
		"queue_size", queueSize)
	return p
}

// run 工作协程：顺序消费任务直到队列关闭
// 单个任务 panic 不能杀死 worker，否则池容量会悄悄缩水
func (p *Pool) run(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("Push task panic recovered",
						"worker_id", id,
						"panic", r)
				}
			}()
			task()
		}()
	}
}

// TrySubmit 尝试入队一个任务，队列已满或池已关闭时立即返回 false
func (p *Pool) TrySubmit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Shutdown 关闭入队并等待已入队的任务全部执行完
// 幂等，可安全重复调用
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Broadcast pool drained")
}
