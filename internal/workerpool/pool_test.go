package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolExecutesSubmittedTasks(t *testing.T) {
	pool := New(4, 32, nil)

	var done sync.WaitGroup
	var count atomic.Int64
	for i := 0; i < 20; i++ {
		done.Add(1)
		if !pool.TrySubmit(func() {
			count.Add(1)
			done.Done()
		}) {
			t.Fatal("TrySubmit rejected with queue headroom")
		}
	}
	done.Wait()
	pool.Shutdown()

	if got := count.Load(); got != 20 {
		t.Errorf("Expected 20 tasks executed, got %d", got)
	}
}

func TestTrySubmitRejectsWhenSaturated(t *testing.T) {
	pool := New(1, 1, nil)

	release := make(chan struct{})
	running := make(chan struct{})
	if !pool.TrySubmit(func() {
		close(running)
		<-release
	}) {
		t.Fatal("First submit must succeed")
	}
	<-running

	// worker 被占住，队列容量 1：再入一个占满队列
	if !pool.TrySubmit(func() {}) {
		t.Fatal("Queued submit must succeed")
	}
	// 队列已满：必须立即拒绝而不是阻塞
	if pool.TrySubmit(func() {}) {
		t.Error("Expected rejection when queue is full")
	}

	close(release)
	pool.Shutdown()
}

func TestWorkerSurvivesTaskPanic(t *testing.T) {
	pool := New(1, 4, nil)

	pool.TrySubmit(func() { panic("boom") })

	done := make(chan struct{})
	if !pool.TrySubmit(func() { close(done) }) {
		t.Fatal("Submit after panic must succeed")
	}
	<-done
	pool.Shutdown()
}

func TestShutdownDrainsQueuedTasks(t *testing.T) {
	pool := New(1, 16, nil)

	var count atomic.Int64
	for i := 0; i < 10; i++ {
		if !pool.TrySubmit(func() { count.Add(1) }) {
			t.Fatalf("Submit %d rejected", i)
		}
	}

	// Shutdown 返回前必须把已入队的任务消费完
	pool.Shutdown()
	if got := count.Load(); got != 10 {
		t.Errorf("Expected all 10 queued tasks drained, got %d", got)
	}

	if pool.TrySubmit(func() {}) {
		t.Error("Submit after shutdown must be rejected")
	}
	// 幂等
	pool.Shutdown()
}
