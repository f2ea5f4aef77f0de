package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"arscope/internal/camera"
	"arscope/internal/preview"
	"arscope/internal/timelapse"
)

// EnvConfigPath は設定ファイルのパスを指定する環境変数
const EnvConfigPath = "ARSCOPE_CONFIG"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Camera    CameraConfig     `yaml:"camera"`
	Timelapse timelapse.Config `yaml:"timelapse"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Driver        string         `yaml:"driver"`         // v4l2 または mock
	Devices       []CameraDevice `yaml:"devices"`        // 向きを指定するデバイス
	DefaultFacing string         `yaml:"default_facing"` // 設定にないデバイスの向き

	// プレビュー設定
	PreviewWidth  int           `yaml:"preview_width"`  // 画像幅
	PreviewHeight int           `yaml:"preview_height"` // 画像高さ
	PixelFormat   string        `yaml:"pixel_format"`   // YUV420 / GRAY / YUYV / MJPEG
	MaxImages     int           `yaml:"max_images"`     // FrameSource の最大保持数
	LockTimeout   time.Duration `yaml:"lock_timeout"`   // デバイスロックの待機時間
	JPEGQuality   int           `yaml:"jpeg_quality"`   // 配信用JPEGの品質

	// mock ドライバのフレーム生成間隔
	MockFrameInterval time.Duration `yaml:"mock_frame_interval"`
}

// CameraDevice は個別カメラの設定
type CameraDevice struct {
	ID     string `yaml:"id"`     // カメラID
	Name   string `yaml:"name"`   // カメラ名
	Device string `yaml:"device"` // デバイスパス (例: /dev/video0)
	Facing string `yaml:"facing"` // back / front / external
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Driver:            string(camera.DriverV4L2),
			Devices:           []CameraDevice{},
			DefaultFacing:     string(camera.FacingBack),
			PreviewWidth:      640,
			PreviewHeight:     480,
			PixelFormat:       camera.FormatYUV420.String(),
			MaxImages:         preview.DefaultMaxImages,
			LockTimeout:       preview.DefaultLockTimeout,
			JPEGQuality:       80,
			MockFrameInterval: 33 * time.Millisecond,
		},
		Timelapse: timelapse.DefaultConfig(),
	}
}

// Load は設定を読み込む
//
// デフォルト値に設定ファイル（path または ARSCOPE_CONFIG）を重ね、最後に環境変数で上書きする。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// loadFile はYAMLファイルの内容をデフォルト値に重ねる
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
	}
	return nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("SERVER_PORT", c.Server.Port)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Driver = getEnvOrDefault("CAMERA_DRIVER", c.Camera.Driver)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	switch camera.DriverType(c.Camera.Driver) {
	case camera.DriverV4L2, camera.DriverMock:
	default:
		return fmt.Errorf("無効なカメラドライバ: %q", c.Camera.Driver)
	}
	if !validFacing(c.Camera.DefaultFacing) {
		return fmt.Errorf("無効なカメラの向き: %q", c.Camera.DefaultFacing)
	}
	if c.Camera.PreviewWidth <= 0 || c.Camera.PreviewHeight <= 0 {
		return fmt.Errorf("無効なプレビューサイズ: %dx%d", c.Camera.PreviewWidth, c.Camera.PreviewHeight)
	}
	if camera.ParsePixelFormat(c.Camera.PixelFormat) == camera.FormatUnknown {
		return fmt.Errorf("無効なピクセルフォーマット: %q", c.Camera.PixelFormat)
	}
	if c.Camera.MaxImages < 1 {
		return fmt.Errorf("無効な最大保持数: %d", c.Camera.MaxImages)
	}
	if c.Camera.LockTimeout <= 0 {
		return errors.New("ロック待機時間は正の値である必要があります")
	}

	seen := make(map[string]bool)
	for i, d := range c.Camera.Devices {
		if d.ID == "" {
			return fmt.Errorf("カメラ %d のIDが設定されていません", i)
		}
		if d.Device == "" {
			return fmt.Errorf("カメラ %s のデバイスパスが設定されていません", d.ID)
		}
		if seen[d.ID] {
			return fmt.Errorf("カメラIDが重複しています: %s", d.ID)
		}
		seen[d.ID] = true
		if d.Facing != "" && !validFacing(d.Facing) {
			return fmt.Errorf("カメラ %s の向きが無効です: %q", d.ID, d.Facing)
		}
	}

	// タイムラプス設定の検証
	if c.Timelapse.Enabled && c.Timelapse.OutputDir == "" {
		return errors.New("タイムラプスの出力先が設定されていません")
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ProviderConfig はカメラプロバイダの作成設定を返す
func (c *CameraConfig) ProviderConfig() camera.ProviderConfig {
	devices := make([]camera.DeviceConfig, 0, len(c.Devices))
	for _, d := range c.Devices {
		facing := camera.Facing(d.Facing)
		if facing == "" {
			facing = camera.Facing(c.DefaultFacing)
		}
		devices = append(devices, camera.DeviceConfig{Device: d.Device, Facing: facing})
	}

	return camera.ProviderConfig{
		Devices:       devices,
		DefaultFacing: camera.Facing(c.DefaultFacing),
		Format:        camera.ParsePixelFormat(c.PixelFormat),
		Width:         c.PreviewWidth,
		Height:        c.PreviewHeight,
	}
}

// PreviewOptions はプレビューの設定を返す
func (c *CameraConfig) PreviewOptions() preview.Options {
	return preview.Options{
		Width:       c.PreviewWidth,
		Height:      c.PreviewHeight,
		Format:      camera.ParsePixelFormat(c.PixelFormat),
		MaxImages:   c.MaxImages,
		LockTimeout: c.LockTimeout,
		Facing:      camera.FacingBack,
	}
}

func validFacing(facing string) bool {
	switch camera.Facing(facing) {
	case camera.FacingBack, camera.FacingFront, camera.FacingExternal:
		return true
	}
	return false
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
