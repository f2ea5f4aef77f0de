package preview

import (
	"context"
	"sync"
)

// Worker は投入されたタスクを1つのゴルーチンで順番に実行する
//
// QuitSafely 後は新しいタスクを受け付けないが、投入済みのタスクは全て実行してから終了する。
type Worker struct {
	name string

	mu       sync.Mutex
	queue    []func()
	started  bool
	quitting bool

	wake chan struct{}
	done chan struct{}
}

// NewWorker は新しいWorkerを作成する
func NewWorker(name string) *Worker {
	return &Worker{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Name はワーカー名を返す
func (w *Worker) Name() string {
	return w.name
}

// Start はワーカーのゴルーチンを開始する
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return
	}
	w.started = true
	go w.run()
}

// Post はタスクをキューの末尾に追加する。終了処理開始後は false を返す
func (w *Worker) Post(fn func()) bool {
	w.mu.Lock()
	if w.quitting {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, fn)
	w.mu.Unlock()

	w.signal()
	return true
}

// Call はタスクを投入し、実行が終わるまで待つ
func (w *Worker) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !w.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrWorkerStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QuitSafely は新規タスクの受付を止め、キューを処理し終えたら終了させる
func (w *Worker) QuitSafely() {
	w.mu.Lock()
	w.quitting = true
	w.mu.Unlock()

	w.signal()
}

// Join はゴルーチンの終了を待つ。開始していないワーカーは即座に返る
func (w *Worker) Join(ctx context.Context) error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Alive はゴルーチンが動作中かを返す
func (w *Worker) Alive() bool {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return false
	}

	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Pending はキューに残っているタスク数を返す
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) run() {
	defer close(w.done)

	for {
		w.mu.Lock()
		if len(w.queue) > 0 {
			fn := w.queue[0]
			w.queue[0] = nil
			w.queue = w.queue[1:]
			w.mu.Unlock()

			fn()
			continue
		}
		if w.quitting {
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		<-w.wake
	}
}
