package preview

import (
	"time"

	"arscope/internal/camera"
)

// Frame はシンクに渡される1フレーム
//
// Data は画像の返却後も有効な独立したコピー。
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Format    camera.PixelFormat
	Timestamp time.Time
	Sequence  uint64
}

// FrameSink はフレームの受け取り手
//
// OnFrame はワーカー上で同期的に呼ばれる。長時間ブロックすると後続のフレームは間引かれる。
type FrameSink interface {
	OnFrame(frame Frame)
}

// FrameSinkFunc は関数を FrameSink として扱うアダプタ
type FrameSinkFunc func(frame Frame)

// OnFrame は f(frame) を呼ぶ
func (f FrameSinkFunc) OnFrame(frame Frame) { f(frame) }

// Tee は複数のシンクへ順に同じフレームを渡すシンクを返す
func Tee(sinks ...FrameSink) FrameSink {
	var filtered []FrameSink
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return teeSink(filtered)
}

type teeSink []FrameSink

func (t teeSink) OnFrame(frame Frame) {
	for _, s := range t {
		s.OnFrame(frame)
	}
}
