package workerpool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shashiranjanraj/filebot/pkg/workerpool"
)

func TestPool_SubmitAndExecute(t *testing.T) {
	pool := workerpool.New(4)

	const n = 100
	var count atomic.Int64

	for i := 0; i < n; i++ {
		err := pool.SubmitWait(context.Background(), func() { count.Add(1) })
		if err != nil {
			t.Fatalf("SubmitWait returned unexpected error: %v", err)
		}
	}

	pool.Shutdown()

	if got := count.Load(); got != n {
		t.Errorf("expected %d tasks to run, got %d", n, got)
	}
}

func TestPool_ErrPoolFull(t *testing.T) {
	pool := workerpool.New(1, workerpool.WithQueueSize(1))
	defer pool.Shutdown()

	blocker := make(chan struct{})
	started := make(chan struct{})

	_ = pool.SubmitWait(context.Background(), func() {
		close(started)
		<-blocker
	})
	<-started

	if err := pool.Submit(func() {}); err != nil {
		t.Fatalf("queue slot should be free: %v", err)
	}

	err := pool.Submit(func() {})
	if !errors.Is(err, workerpool.ErrPoolFull) {
		t.Errorf("expected ErrPoolFull, got %v", err)
	}

	close(blocker)
}

func TestPool_SubmitWaitHonoursContext(t *testing.T) {
	pool := workerpool.New(1, workerpool.WithQueueSize(0))
	defer pool.Shutdown()

	blocker := make(chan struct{})
	defer close(blocker)
	started := make(chan struct{})
	_ = pool.SubmitWait(context.Background(), func() {
		close(started)
		<-blocker
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.SubmitWait(ctx, func() {})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestPool_ErrPoolClosed(t *testing.T) {
	pool := workerpool.New(2)
	pool.Shutdown()
	pool.Shutdown()

	if err := pool.Submit(func() {}); !errors.Is(err, workerpool.ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed after Shutdown, got %v", err)
	}
	if err := pool.SubmitWait(context.Background(), func() {}); !errors.Is(err, workerpool.ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed after Shutdown, got %v", err)
	}
}

func TestPool_PanicRecovery(t *testing.T) {
	var recovered atomic.Value
	pool := workerpool.New(1, workerpool.WithPanicHandler(func(v any) { recovered.Store(v) }))
	defer pool.Shutdown()

	_ = pool.SubmitWait(context.Background(), func() { panic("boom") })

	normal := make(chan struct{})
	_ = pool.SubmitWait(context.Background(), func() { close(normal) })

	select {
	case <-normal:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not recover from panic")
	}

	if recovered.Load() != "boom" {
		t.Errorf("panic handler got %v", recovered.Load())
	}
}

func TestPool_ShutdownWaitsForQueuedTasks(t *testing.T) {
	pool := workerpool.New(3)

	var mu sync.Mutex
	done := 0
	for i := 0; i < 30; i++ {
		_ = pool.SubmitWait(context.Background(), func() {
			time.Sleep(time.Millisecond)
			mu.Lock()
			done++
			mu.Unlock()
		})
	}

	pool.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if done != 30 {
		t.Errorf("Shutdown returned with %d/30 tasks done", done)
	}
}
