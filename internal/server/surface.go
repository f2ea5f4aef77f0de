package server

import (
	"log"
	"sync"
	"time"

	"arscope/internal/camera"
	"arscope/internal/encoder"
)

// PreviewSurface はHTTPクライアント向けのプレビュー描画先
//
// preview.Surface を実装する。ドライバから届いた画像をJPEGにして最新の1枚だけ保持し、
// MJPEGストリームの購読者へ配る。
type PreviewSurface struct {
	encoder encoder.Encoder

	mu          sync.RWMutex
	width       int
	height      int
	latest      []byte
	updatedAt   time.Time
	frames      uint64
	errors      uint64
	subscribers map[chan []byte]struct{}
}

// SurfaceStats は描画先の統計情報
type SurfaceStats struct {
	Width       int
	Height      int
	Frames      uint64
	Errors      uint64
	Subscribers int
	UpdatedAt   time.Time
}

// NewPreviewSurface は新しいPreviewSurfaceを作成する
func NewPreviewSurface(enc encoder.Encoder) *PreviewSurface {
	return &PreviewSurface{
		encoder:     enc,
		subscribers: make(map[chan []byte]struct{}),
	}
}

// SetDefaultBufferSize は描画バッファのサイズを設定する
func (s *PreviewSurface) SetDefaultBufferSize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
}

// Target はキャプチャの出力先を返す
func (s *PreviewSurface) Target() camera.Target {
	return camera.TargetFunc(s.deliver)
}

// deliver は画像をJPEGにして購読者へ配る。画像はその場で返却する
func (s *PreviewSurface) deliver(img *camera.Image) {
	defer img.Close()

	if len(img.Planes) == 0 {
		return
	}

	data, err := s.encoder.Encode(img.Planes[0], img.Width, img.Height, img.Format)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.errors++
		if s.errors == 1 {
			log.Printf("プレビュー画像の変換に失敗: %v", err)
		}
		return
	}

	s.latest = data
	s.updatedAt = img.Timestamp
	s.frames++

	for ch := range s.subscribers {
		sendLatest(ch, data)
	}
}

// Subscribe は新しいフレームを受け取るチャンネルを返す
//
// 受信が追いつかない場合は古いフレームを捨てる。不要になったら cancel を呼ぶこと。
func (s *PreviewSurface) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	if s.latest != nil {
		ch <- s.latest
	}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// Latest は最新のJPEG画像を返す
func (s *PreviewSurface) Latest() ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}

// Stats は統計情報を返す
func (s *PreviewSurface) Stats() SurfaceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SurfaceStats{
		Width:       s.width,
		Height:      s.height,
		Frames:      s.frames,
		Errors:      s.errors,
		Subscribers: len(s.subscribers),
		UpdatedAt:   s.updatedAt,
	}
}

// sendLatest はバッファ1のチャンネルへ最新の値を送る。古い値は捨てる
func sendLatest(ch chan []byte, data []byte) {
	select {
	case ch <- data:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- data:
	default:
	}
}
