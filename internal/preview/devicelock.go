package preview

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultLockTimeout はデバイスロックの標準待機時間
const DefaultLockTimeout = 2500 * time.Millisecond

// DeviceLock はカメラデバイスの排他所有権を表す二値セマフォ
//
// 同時に保持できるのは1つの LockHold だけ。
type DeviceLock struct {
	sem chan struct{}

	acquired atomic.Int64
	released atomic.Int64
}

// NewDeviceLock は新しいDeviceLockを作成する
func NewDeviceLock() *DeviceLock {
	return &DeviceLock{sem: make(chan struct{}, 1)}
}

// TryAcquire は最大 timeout だけ待ってロックを取得する
//
// 待機がタイムアウトすると ErrLockTimeout、ctx が終了すると ErrInterruptedWait を返す。
func (l *DeviceLock) TryAcquire(ctx context.Context, timeout time.Duration) (*LockHold, error) {
	// 空いていれば待たずに取得
	select {
	case l.sem <- struct{}{}:
		return l.newHold(), nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return l.newHold(), nil
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ErrInterruptedWait
	}
}

func (l *DeviceLock) newHold() *LockHold {
	l.acquired.Add(1)
	return &LockHold{lock: l}
}

// Held はロックが保持されているかを返す
func (l *DeviceLock) Held() bool {
	return len(l.sem) == 1
}

// Acquisitions は取得回数を返す
func (l *DeviceLock) Acquisitions() int64 {
	return l.acquired.Load()
}

// Releases は解放回数を返す
func (l *DeviceLock) Releases() int64 {
	return l.released.Load()
}

// LockHold は取得済みのロック
//
// Release は何度呼んでも一度だけロックを解放する。
type LockHold struct {
	lock *DeviceLock
	once sync.Once
}

// Release はロックを解放する。実際に解放した呼び出しのみ true を返す
func (h *LockHold) Release() bool {
	if h == nil {
		return false
	}

	released := false
	h.once.Do(func() {
		h.lock.released.Add(1)
		<-h.lock.sem
		released = true
	})
	return released
}
