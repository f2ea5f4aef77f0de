package preview

import (
	"sync"

	"arscope/internal/camera"
)

// DefaultMaxImages はFrameSourceが同時に保持できる画像数の標準値
const DefaultMaxImages = 2

// FrameSource はドライバから届いた画像をプールし、最新の1枚をワーカーに渡す
//
// Deliver は決してブロックしない。プールが一杯のときは最も古い未取得の画像を返却して空きを作る。
// 取得済みでまだ Close されていない画像もプールの容量に数える。
type FrameSource struct {
	width     int
	height    int
	format    camera.PixelFormat
	maxImages int

	mu            sync.Mutex
	pending       []*camera.Image
	acquired      int
	closed        bool
	listener      func()
	worker        *Worker
	notifyPending bool

	delivered uint64
	dropped   uint64
}

// FrameSourceStats はFrameSourceの計測値
type FrameSourceStats struct {
	Delivered uint64 // 受け取った画像数
	Dropped   uint64 // 処理されずに返却された画像数
	Pending   int    // 未取得の画像数
	Acquired  int    // 取得済みで未返却の画像数
}

// NewFrameSource は新しいFrameSourceを作成する
func NewFrameSource(width, height int, format camera.PixelFormat, maxImages int) *FrameSource {
	if maxImages < 1 {
		maxImages = DefaultMaxImages
	}
	return &FrameSource{
		width:     width,
		height:    height,
		format:    format,
		maxImages: maxImages,
	}
}

// Spec はドライバに要求するサイズとフォーマットを返す
func (fs *FrameSource) Spec() (camera.Resolution, camera.PixelFormat) {
	return camera.Resolution{Width: fs.width, Height: fs.height}, fs.format
}

// SetOnImageAvailable は画像到着時の通知先を設定する
//
// fn は worker 上で呼ばれる。到着が続いても通知は1回にまとめられる。
func (fs *FrameSource) SetOnImageAvailable(fn func(), worker *Worker) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.listener = fn
	fs.worker = worker
}

// Deliver はドライバから画像を受け取る
func (fs *FrameSource) Deliver(img *camera.Image) {
	if img == nil {
		return
	}

	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		img.Close()
		return
	}

	fs.delivered++
	var evicted []*camera.Image
	capacity := fs.maxImages - fs.acquired
	for len(fs.pending) > 0 && len(fs.pending) >= capacity {
		evicted = append(evicted, fs.pending[0])
		fs.pending[0] = nil
		fs.pending = fs.pending[1:]
	}
	if capacity < 1 {
		// 取得済みの画像で満杯のため、届いた画像をそのまま返却する
		evicted = append(evicted, img)
	} else {
		fs.pending = append(fs.pending, img)
	}
	fs.dropped += uint64(len(evicted))

	var notify func()
	worker := fs.worker
	if fs.listener != nil && worker != nil && !fs.notifyPending && len(fs.pending) > 0 {
		fs.notifyPending = true
		notify = fs.listener
	}
	fs.mu.Unlock()

	for _, e := range evicted {
		e.Close()
	}

	if notify == nil {
		return
	}
	posted := worker.Post(func() {
		fs.mu.Lock()
		fs.notifyPending = false
		fs.mu.Unlock()
		notify()
	})
	if !posted {
		fs.mu.Lock()
		fs.notifyPending = false
		fs.mu.Unlock()
	}
}

// AcquireLatest は最新の画像を取り出し、それより古い画像を全て返却する
//
// 画像がなければ nil を返す。取り出した画像は呼び出し側が Close すること。
func (fs *FrameSource) AcquireLatest() *camera.Image {
	fs.mu.Lock()
	n := len(fs.pending)
	if fs.closed || n == 0 {
		fs.mu.Unlock()
		return nil
	}

	latest := fs.pending[n-1]
	older := fs.pending[:n-1]
	fs.pending = nil
	fs.acquired++
	fs.dropped += uint64(len(older))
	fs.mu.Unlock()

	for _, img := range older {
		img.Close()
	}

	owned := camera.NewImage(latest.Width, latest.Height, latest.Format, latest.Planes, func() {
		latest.Close()
		fs.mu.Lock()
		fs.acquired--
		fs.mu.Unlock()
	})
	owned.Timestamp = latest.Timestamp
	return owned
}

// Close は未取得の画像を全て返却し、以降の画像を受け付けない
func (fs *FrameSource) Close() {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return
	}
	fs.closed = true
	pending := fs.pending
	fs.pending = nil
	fs.listener = nil
	fs.worker = nil
	fs.mu.Unlock()

	for _, img := range pending {
		img.Close()
	}
}

// Closed はCloseされたかを返す
func (fs *FrameSource) Closed() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.closed
}

// Stats は計測値を返す
func (fs *FrameSource) Stats() FrameSourceStats {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return FrameSourceStats{
		Delivered: fs.delivered,
		Dropped:   fs.dropped,
		Pending:   len(fs.pending),
		Acquired:  fs.acquired,
	}
}
