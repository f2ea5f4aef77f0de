package preview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWorker_RunsInOrder(t *testing.T) {
	w := NewWorker("test")
	w.Start()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 100; i++ {
		if !w.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}) {
			t.Fatal("Expected Post to succeed")
		}
	}

	w.QuitSafely()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Join(ctx); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if len(order) != 100 {
		t.Fatalf("Expected 100 tasks, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("Expected FIFO order, got %d at %d", v, i)
		}
	}
	if w.Alive() {
		t.Error("Expected worker to be stopped")
	}
}

func TestWorker_DrainsAfterQuit(t *testing.T) {
	w := NewWorker("test")
	w.Start()

	gate := make(chan struct{})
	w.Post(func() { <-gate })

	ran := false
	w.Post(func() { ran = true })

	w.QuitSafely()
	if w.Post(func() {}) {
		t.Error("Expected Post to fail after QuitSafely")
	}

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Join(ctx); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if !ran {
		t.Error("Expected queued task to run before exit")
	}
}

func TestWorker_JoinTimeout(t *testing.T) {
	w := NewWorker("test")
	w.Start()

	gate := make(chan struct{})
	defer close(gate)
	w.Post(func() { <-gate })
	w.QuitSafely()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Join(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestWorker_Call(t *testing.T) {
	w := NewWorker("test")
	w.Start()

	value := 0
	if err := w.Call(context.Background(), func() { value = 42 }); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if value != 42 {
		t.Errorf("Expected 42, got %d", value)
	}

	w.QuitSafely()
	if err := w.Call(context.Background(), func() {}); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Expected ErrWorkerStopped, got %v", err)
	}
	_ = w.Join(context.Background())
}

func TestWorker_NotStarted(t *testing.T) {
	w := NewWorker("idle")

	if w.Alive() {
		t.Error("Expected not alive before Start")
	}
	if err := w.Join(context.Background()); err != nil {
		t.Errorf("Expected Join to return immediately, got %v", err)
	}
	if w.Name() != "idle" {
		t.Errorf("Expected name idle, got %s", w.Name())
	}
}
