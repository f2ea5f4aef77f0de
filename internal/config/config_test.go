package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"arscope/internal/camera"
)

// clearEnv はテストに影響する環境変数を空にする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"SERVER_HOST", "SERVER_PORT", "PORT", "CAMERA_DRIVER", EnvConfigPath} {
		t.Setenv(key, "")
	}
}

// TestConfigLoad は設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg == nil {
		t.Fatal("設定がnilです")
	}

	// サーバー設定の検証
	if cfg.Server.Host == "" {
		t.Error("サーバーホストが設定されていません")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("デフォルトのポート番号が違います: %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 {
		t.Error("読み込みタイムアウトが設定されていません")
	}
	// WriteTimeout は 0（無効）でも正常
	if cfg.Server.WriteTimeout < 0 {
		t.Error("書き込みタイムアウトが負の値です")
	}

	// カメラ設定の検証
	if cfg.Camera.Driver != "v4l2" {
		t.Errorf("デフォルトのドライバが違います: %s", cfg.Camera.Driver)
	}
	if cfg.Camera.PreviewWidth != 640 || cfg.Camera.PreviewHeight != 480 {
		t.Errorf("デフォルトのプレビューサイズが違います: %dx%d", cfg.Camera.PreviewWidth, cfg.Camera.PreviewHeight)
	}
	if cfg.Camera.LockTimeout != 2500*time.Millisecond {
		t.Errorf("デフォルトのロック待機時間が違います: %v", cfg.Camera.LockTimeout)
	}
	if cfg.Camera.MaxImages != 2 {
		t.Errorf("デフォルトの最大保持数が違います: %d", cfg.Camera.MaxImages)
	}
}

// TestConfigLoadFile はYAMLファイルの読み込みをテストする
func TestConfigLoadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "arscope.yaml")
	content := `
server:
  port: 9000
camera:
  driver: mock
  lock_timeout: 1s
  pixel_format: GRAY
  devices:
    - id: rear
      name: 背面カメラ
      device: /dev/video2
      facing: back
timelapse:
  enabled: true
  output_dir: /tmp/arscope-test
  capture_interval: 5s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("設定ファイルの作成に失敗しました: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("ポート番号が反映されていません: %d", cfg.Server.Port)
	}
	// ファイルにない項目はデフォルト値のまま
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("ホストがデフォルト値ではありません: %s", cfg.Server.Host)
	}
	if cfg.Camera.Driver != "mock" {
		t.Errorf("ドライバが反映されていません: %s", cfg.Camera.Driver)
	}
	if cfg.Camera.LockTimeout != time.Second {
		t.Errorf("ロック待機時間が反映されていません: %v", cfg.Camera.LockTimeout)
	}
	if cfg.Camera.PreviewWidth != 640 {
		t.Errorf("プレビュー幅がデフォルト値ではありません: %d", cfg.Camera.PreviewWidth)
	}
	if len(cfg.Camera.Devices) != 1 || cfg.Camera.Devices[0].Device != "/dev/video2" {
		t.Errorf("デバイス設定が反映されていません: %+v", cfg.Camera.Devices)
	}
	if !cfg.Timelapse.Enabled || cfg.Timelapse.CaptureInterval != 5*time.Second {
		t.Errorf("タイムラプス設定が反映されていません: %+v", cfg.Timelapse)
	}

	// 環境変数でも指定できる
	t.Setenv(EnvConfigPath, path)
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("環境変数の設定ファイルが反映されていません: %d", cfg.Server.Port)
	}
}

// TestConfigLoadFileErrors は設定ファイルのエラーをテストする
func TestConfigLoadFileErrors(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("存在しないファイルでエラーが期待されました")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	_ = os.WriteFile(path, []byte("server: [port"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("不正なYAMLでエラーが期待されました")
	}

	path = filepath.Join(t.TempDir(), "invalid.yaml")
	_ = os.WriteFile(path, []byte("camera:\n  driver: usb\n"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("無効なドライバでエラーが期待されました")
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		modify    func(c *Config)
		expectErr bool
	}{
		{
			name:      "正常な設定",
			modify:    func(c *Config) {},
			expectErr: false,
		},
		{
			name: "デバイス指定あり",
			modify: func(c *Config) {
				c.Camera.Devices = []CameraDevice{
					{ID: "camera1", Name: "メインカメラ", Device: "/dev/video0", Facing: "back"},
				}
			},
			expectErr: false,
		},
		{
			name:      "無効なポート番号",
			modify:    func(c *Config) { c.Server.Port = 99999 },
			expectErr: true,
		},
		{
			name:      "無効なドライバ",
			modify:    func(c *Config) { c.Camera.Driver = "usb" },
			expectErr: true,
		},
		{
			name:      "無効な向き",
			modify:    func(c *Config) { c.Camera.DefaultFacing = "up" },
			expectErr: true,
		},
		{
			name:      "無効なプレビューサイズ",
			modify:    func(c *Config) { c.Camera.PreviewWidth = 0 },
			expectErr: true,
		},
		{
			name:      "無効なピクセルフォーマット",
			modify:    func(c *Config) { c.Camera.PixelFormat = "RGB" },
			expectErr: true,
		},
		{
			name:      "最大保持数が0",
			modify:    func(c *Config) { c.Camera.MaxImages = 0 },
			expectErr: true,
		},
		{
			name:      "ロック待機時間が0",
			modify:    func(c *Config) { c.Camera.LockTimeout = 0 },
			expectErr: true,
		},
		{
			name: "カメラIDなし",
			modify: func(c *Config) {
				c.Camera.Devices = []CameraDevice{{ID: "", Device: "/dev/video0"}}
			},
			expectErr: true,
		},
		{
			name: "カメラデバイスパスなし",
			modify: func(c *Config) {
				c.Camera.Devices = []CameraDevice{{ID: "camera1", Device: ""}}
			},
			expectErr: true,
		},
		{
			name: "カメラID重複",
			modify: func(c *Config) {
				c.Camera.Devices = []CameraDevice{
					{ID: "camera1", Device: "/dev/video0"},
					{ID: "camera1", Device: "/dev/video2"},
				}
			},
			expectErr: true,
		},
		{
			name: "タイムラプス出力先なし",
			modify: func(c *Config) {
				c.Timelapse.Enabled = true
				c.Timelapse.OutputDir = ""
			},
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "192.168.1.100",
			Port: 9090,
		},
	}

	expected := "192.168.1.100:9090"
	actual := cfg.ServerAddress()

	if actual != expected {
		t.Errorf("サーバーアドレスが一致しません: got %s, want %s", actual, expected)
	}
}

// TestEnvironmentVariables は環境変数の処理をテストする
// 注意: このテストは環境変数を変更するため、parallelは使わない
func TestEnvironmentVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_HOST", "test.example.com")
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("CAMERA_DRIVER", "mock")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host != "test.example.com" {
		t.Errorf("環境変数のホストが反映されていません: got %s, want test.example.com", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("環境変数のポートが反映されていません: got %d, want 9999", cfg.Server.Port)
	}
	if cfg.Camera.Driver != "mock" {
		t.Errorf("環境変数のドライバが反映されていません: got %s", cfg.Camera.Driver)
	}

	// PORT は SERVER_PORT より優先される
	t.Setenv("PORT", "7000")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("PORT が反映されていません: got %d", cfg.Server.Port)
	}
}

// TestCameraConversions はカメラ設定の変換をテストする
func TestCameraConversions(t *testing.T) {
	cfg := Default()
	cfg.Camera.DefaultFacing = "external"
	cfg.Camera.Devices = []CameraDevice{
		{ID: "rear", Device: "/dev/video0", Facing: "back"},
		{ID: "usb", Device: "/dev/video2"},
	}

	pc := cfg.Camera.ProviderConfig()
	if len(pc.Devices) != 2 {
		t.Fatalf("デバイス数が違います: %d", len(pc.Devices))
	}
	if pc.Devices[0].Facing != camera.FacingBack || pc.Devices[1].Facing != camera.FacingExternal {
		t.Errorf("向きの変換が違います: %+v", pc.Devices)
	}
	if pc.Format != camera.FormatYUV420 {
		t.Errorf("フォーマットが違います: %v", pc.Format)
	}

	opts := cfg.Camera.PreviewOptions()
	if opts.Width != 640 || opts.Height != 480 || opts.LockTimeout != 2500*time.Millisecond {
		t.Errorf("プレビュー設定が違います: %+v", opts)
	}
	if opts.Facing != camera.FacingBack {
		t.Errorf("選択する向きは背面であるべきです: %s", opts.Facing)
	}
}
