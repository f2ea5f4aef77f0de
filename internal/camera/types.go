package camera

import (
	"context"
	"sync"
	"time"
)

// Facing はカメラの向きを表す
type Facing string

const (
	FacingBack     Facing = "back"     // 背面カメラ
	FacingFront    Facing = "front"    // 前面カメラ
	FacingExternal Facing = "external" // 外付けカメラ
)

// PixelFormat は画像のピクセルフォーマット
type PixelFormat int

const (
	FormatUnknown PixelFormat = 0
	FormatYUV420  PixelFormat = 35   // YUV_420_888 相当
	FormatGray    PixelFormat = 0x20 // 8bit 輝度のみ
	FormatYUYV    PixelFormat = 0x14 // YUYV 4:2:2 パック
	FormatMJPEG   PixelFormat = 0x100
)

// String はフォーマット名を返す
func (f PixelFormat) String() string {
	switch f {
	case FormatYUV420:
		return "YUV420"
	case FormatGray:
		return "GRAY"
	case FormatYUYV:
		return "YUYV"
	case FormatMJPEG:
		return "MJPEG"
	default:
		return "UNKNOWN"
	}
}

// ParsePixelFormat はフォーマット名を PixelFormat に変換する
func ParsePixelFormat(name string) PixelFormat {
	switch name {
	case "YUV420", "yuv420":
		return FormatYUV420
	case "GRAY", "gray":
		return FormatGray
	case "YUYV", "yuyv":
		return FormatYUYV
	case "MJPEG", "mjpeg", "MJPG":
		return FormatMJPEG
	default:
		return FormatUnknown
	}
}

// Resolution はカメラの解像度を表す
type Resolution struct {
	Width  int // 幅
	Height int // 高さ
}

// Characteristics はカメラデバイスの特性を表す
type Characteristics struct {
	ID                string
	Name              string
	Facing            Facing
	SensorOrientation int  // センサーの回転角（度）
	FlashAvailable    bool // フラッシュの有無
	Resolutions       []Resolution
	Formats           []PixelFormat
}

// HasStreamConfigurations はストリーム設定が1つ以上あるかを返す
func (c *Characteristics) HasStreamConfigurations() bool {
	return len(c.Resolutions) > 0 && len(c.Formats) > 0
}

// Image はドライバが生成した1フレーム
//
// Planes の中身は Close が呼ばれるまでしか有効でない
type Image struct {
	Width     int
	Height    int
	Format    PixelFormat
	Planes    [][]byte
	Timestamp time.Time

	once    sync.Once
	release func()
}

// NewImage は新しい Image を作成する。release は Close 時に一度だけ呼ばれる
func NewImage(width, height int, format PixelFormat, planes [][]byte, release func()) *Image {
	return &Image{
		Width:     width,
		Height:    height,
		Format:    format,
		Planes:    planes,
		Timestamp: time.Now(),
		release:   release,
	}
}

// Close は画像バッファをドライバに返却する
func (i *Image) Close() {
	i.once.Do(func() {
		if i.release != nil {
			i.release()
		}
		i.Planes = nil
	})
}

// Target はキャプチャの出力先（ストリームターゲット）
type Target interface {
	// Deliver はドライバのゴルーチンから呼ばれる。ブロックしてはならない
	Deliver(img *Image)
}

// TargetFunc は関数を Target として扱うアダプタ
type TargetFunc func(img *Image)

// Deliver は f(img) を呼ぶ
func (f TargetFunc) Deliver(img *Image) { f(img) }

// Template はキャプチャリクエストのテンプレート
type Template int

const (
	TemplatePreview Template = iota + 1
	TemplateStillCapture
)

// AFMode はオートフォーカスモード
type AFMode int

const (
	AFModeOff AFMode = iota
	AFModeAuto
	AFModeContinuousPicture
)

// CaptureRequest は繰り返しキャプチャのリクエスト
type CaptureRequest struct {
	Template Template
	Targets  []Target
	AFMode   AFMode
}

// DeviceCallbacks はデバイス状態の通知先
//
// ドライバは任意のゴルーチンから呼び出してよい
type DeviceCallbacks struct {
	OnOpened       func(dev Device)
	OnDisconnected func(dev Device)
	OnError        func(dev Device, err error)
}

// SessionCallbacks はセッション構成結果の通知先
type SessionCallbacks struct {
	OnConfigured      func(s Session)
	OnConfigureFailed func(s Session, err error)
}

// Provider はカメラドライバへのアクセスを提供する
type Provider interface {
	// CameraIDs は列挙順のデバイスID一覧を返す
	CameraIDs(ctx context.Context) ([]string, error)

	// Characteristics はデバイスの特性を返す
	Characteristics(ctx context.Context, id string) (*Characteristics, error)

	// OpenCamera はデバイスを非同期に開く。結果は cb で通知される
	OpenCamera(id string, cb DeviceCallbacks) error
}

// Device は開かれたカメラデバイス
type Device interface {
	ID() string

	// CreateCaptureSession は targets を出力先とするセッションを非同期に構成する
	CreateCaptureSession(targets []Target, cb SessionCallbacks) error

	Close()
}

// Session は構成済みのキャプチャセッション
type Session interface {
	// SetRepeatingRequest は停止されるまでフレームを出し続ける
	SetRepeatingRequest(req CaptureRequest) error

	Close()
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device      string       // デバイスパス
	Name        string       // デバイス名
	Driver      string       // ドライバー名
	Resolutions []Resolution // サポートされる解像度
	Formats     []string     // サポートされるフォーマット
}
