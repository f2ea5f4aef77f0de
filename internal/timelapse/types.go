package timelapse

import (
	"time"
)

// Frame はタイムラプス用に間引かれた1フレーム
type Frame struct {
	Timestamp time.Time `json:"timestamp"` // 撮影時刻
	Sequence  uint64    `json:"sequence"`  // プレビュー上の通し番号
	Data      []byte    `json:"data"`      // JPEG画像データ
}

// Config はタイムラプス設定
type Config struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`                   // 有効/無効
	OutputDir       string        `json:"output_dir" yaml:"output_dir"`             // 動画出力先
	CaptureInterval time.Duration `json:"capture_interval" yaml:"capture_interval"` // 撮影間隔 (デフォルト: 3秒)
	UpdateInterval  time.Duration `json:"update_interval" yaml:"update_interval"`   // 動画更新間隔 (デフォルト: 1時間)
	Quality         int           `json:"quality" yaml:"quality"`                   // 動画品質 (1-5)
	JPEGQuality     int           `json:"jpeg_quality" yaml:"jpeg_quality"`         // 静止画品質 (1-100)
	MaxFrameBuffer  int           `json:"max_frame_buffer" yaml:"max_frame_buffer"` // 最大バッファサイズ
}

// Video はタイムラプス動画情報
type Video struct {
	Date     time.Time `json:"date"`      // 更新日時
	FilePath string    `json:"file_path"` // ファイルパス
	FileSize int64     `json:"file_size"` // ファイルサイズ
	Status   Status    `json:"status"`    // ステータス
}

// Status はタイムラプス動画のステータス
type Status string

// Status の定数定義
const (
	StatusRecording Status = "recording" // 録画中
	StatusCompleted Status = "completed" // 完了
)

// StatusInfo はレコーダーの状態情報
type StatusInfo struct {
	Enabled         bool      `json:"enabled"`
	Running         bool      `json:"running"`
	CurrentVideo    string    `json:"current_video"`
	FrameBufferSize int       `json:"frame_buffer_size"`
	FramesSampled   uint64    `json:"frames_sampled"`
	FramesSkipped   uint64    `json:"frames_skipped"`
	TotalVideos     int       `json:"total_videos"`
	StorageUsed     int64     `json:"storage_used"`
	LastUpdate      time.Time `json:"last_update"`
	LastError       string    `json:"last_error,omitempty"`
}

// DefaultConfig はデフォルトのタイムラプス設定を返す
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		OutputDir:       "./timelapse",
		CaptureInterval: 3 * time.Second,
		UpdateInterval:  1 * time.Hour,
		Quality:         3,
		JPEGQuality:     85,
		MaxFrameBuffer:  1200, // 1時間分（3秒間隔）
	}
}
