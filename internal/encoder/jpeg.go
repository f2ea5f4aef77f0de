package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"arscope/internal/camera"
)

// ErrUnsupportedFormat は変換できないピクセルフォーマット
var ErrUnsupportedFormat = errors.New("サポートされていないピクセルフォーマット")

// ErrShortBuffer はフレームサイズに対してデータが足りない
var ErrShortBuffer = errors.New("フレームデータが不足しています")

// JPEGEncoder はフレームをJPEGに変換する
//
// YUV420 と GRAY は輝度プレーンのみを使うためグレースケールになる。
type JPEGEncoder struct {
	mu      sync.Mutex
	quality int
}

// NewJPEGEncoder は品質 (1-100) を指定してJPEGEncoderを作成する
func NewJPEGEncoder(quality int) *JPEGEncoder {
	e := &JPEGEncoder{}
	e.SetQuality(quality)
	return e
}

// SetQuality は品質を設定する
func (e *JPEGEncoder) SetQuality(quality int) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}

	e.mu.Lock()
	e.quality = quality
	e.mu.Unlock()
}

// Quality は現在の品質を返す
func (e *JPEGEncoder) Quality() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quality
}

// Encode はフレームをJPEGに変換する。MJPEG はそのまま返す
func (e *JPEGEncoder) Encode(data []byte, width, height int, format camera.PixelFormat) ([]byte, error) {
	var img image.Image
	switch format {
	case camera.FormatMJPEG:
		return data, nil
	case camera.FormatYUV420, camera.FormatGray:
		gray, err := grayFromLuma(data, width, height)
		if err != nil {
			return nil, err
		}
		img = gray
	case camera.FormatYUYV:
		gray, err := grayFromYUYV(data, width, height)
		if err != nil {
			return nil, err
		}
		img = gray
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	var buf bytes.Buffer
	buf.Grow(64 * 1024)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality()}); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// grayFromLuma は輝度プレーンをそのまま Gray 画像として扱う
func grayFromLuma(data []byte, width, height int) (*image.Gray, error) {
	if width <= 0 || height <= 0 || len(data) < width*height {
		return nil, fmt.Errorf("%w: %dx%d に %d バイト", ErrShortBuffer, width, height, len(data))
	}
	return &image.Gray{
		Pix:    data[:width*height],
		Stride: width,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// grayFromYUYV は YUYV から輝度成分を取り出す
func grayFromYUYV(data []byte, width, height int) (*image.Gray, error) {
	if width <= 0 || height <= 0 || len(data) < width*height*2 {
		return nil, fmt.Errorf("%w: %dx%d に %d バイト", ErrShortBuffer, width, height, len(data))
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = data[i*2]
	}
	return img, nil
}
