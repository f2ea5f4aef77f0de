// Package encoder カメラフレームを配信用の画像形式に変換する
package encoder

import "arscope/internal/camera"

// Encoder はフレームのバイト列を画像ファイルに変換する
type Encoder interface {
	Encode(data []byte, width, height int, format camera.PixelFormat) ([]byte, error)
	SetQuality(quality int)
}
