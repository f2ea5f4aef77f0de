package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"arscope/internal/camera"
)

// Surface はプレビューの描画先
type Surface interface {
	// SetDefaultBufferSize は描画バッファのサイズを設定する
	SetDefaultBufferSize(width, height int)

	// Target はキャプチャの出力先を返す
	Target() camera.Target
}

// Options はControllerの設定
type Options struct {
	Width       int                // プレビュー幅
	Height      int                // プレビュー高さ
	Format      camera.PixelFormat // FrameSource のフォーマット
	MaxImages   int                // FrameSource の最大保持数
	LockTimeout time.Duration      // デバイスロックの待機時間
	Facing      camera.Facing      // 選択するカメラの向き
	Logger      *slog.Logger
}

// DefaultOptions は標準の設定を返す
func DefaultOptions() Options {
	return Options{
		Width:       640,
		Height:      480,
		Format:      camera.FormatYUV420,
		MaxImages:   DefaultMaxImages,
		LockTimeout: DefaultLockTimeout,
		Facing:      camera.FacingBack,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = d.Width, d.Height
	}
	if o.Format == camera.FormatUnknown {
		o.Format = d.Format
	}
	if o.MaxImages <= 0 {
		o.MaxImages = d.MaxImages
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = d.LockTimeout
	}
	if o.Facing == "" {
		o.Facing = d.Facing
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// lifecycle は1回のアクティベーションに属する状態
//
// ワーカー上、またはデバイスロックを保持した呼び出し側からのみ変更する。
type lifecycle struct {
	activation string
	worker     *Worker
	hold       *LockHold

	deviceID        string
	device          camera.Device
	deviceState     DeviceState
	characteristics *camera.Characteristics

	session      camera.Session
	sessionState SessionState
	sessionGen   uint64

	source *FrameSource
}

// Controller はカメラのオープンからフレーム配送までのライフサイクルを調停する
type Controller struct {
	provider camera.Provider
	surface  Surface
	opts     Options
	lock     *DeviceLock
	logger   *slog.Logger

	mu               sync.Mutex
	active           bool
	surfaceAvailable bool
	surfaceWidth     int
	surfaceHeight    int
	sink             FrameSink
	lc               lifecycle
	lastErr          error
	sequence         uint64
	framesDelivered  uint64
	activations      uint64
}

// Stats はControllerの状態のスナップショット
type Stats struct {
	Active            bool
	ActivationID      string
	DeviceID          string
	DeviceState       DeviceState
	SessionState      SessionState
	SurfaceAvailable  bool
	SurfaceWidth      int
	SurfaceHeight     int
	PreviewWidth      int
	PreviewHeight     int
	SensorOrientation int
	FlashAvailable    bool
	LockHeld          bool
	WorkerAlive       bool
	Activations       uint64
	FramesDelivered   uint64
	Source            FrameSourceStats
	LastError         error
}

// NewController は新しいControllerを作成する
func NewController(provider camera.Provider, surface Surface, opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		provider: provider,
		surface:  surface,
		opts:     opts,
		lock:     NewDeviceLock(),
		logger:   opts.Logger,
	}
}

// Start はワーカーを起動し、描画先が利用可能ならカメラを開く
//
// 同期的な失敗の場合は全てのリソースを閉じてエラーを返す。
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrAlreadyActive
	}

	activation := uuid.NewString()
	worker := NewWorker("camera-" + activation[:8])
	worker.Start()

	c.active = true
	c.activations++
	c.lastErr = nil
	c.lc = lifecycle{activation: activation, worker: worker}
	surfaceAvailable := c.surfaceAvailable
	c.mu.Unlock()

	c.logger.Info("プレビューを開始します", "activation", activation, "surface", surfaceAvailable)

	if !surfaceAvailable {
		return nil
	}

	if err := c.openCamera(ctx, activation); err != nil {
		c.abort(ctx, activation)
		return err
	}
	return nil
}

// Stop はセッション・デバイス・FrameSourceを閉じ、ワーカーの終了を待つ
//
// ワーカーの終了待ちが ctx で中断されても、アクティベーションは既に切り離されているため
// 続けて Start できる。残りの後始末は古いワーカーが行う。
func (c *Controller) Stop(ctx context.Context) error {
	activation, err := c.deactivate(ctx, "")
	if err != nil {
		if errors.Is(err, ErrNotActive) {
			return err
		}
		return fmt.Errorf("ワーカーの終了待ちが中断されました: %w", err)
	}

	c.logger.Info("プレビューを停止しました", "activation", activation)
	return nil
}

// abort は Start の失敗時にアクティベーションを破棄する
func (c *Controller) abort(ctx context.Context, activation string) {
	if _, err := c.deactivate(ctx, activation); err != nil && !errors.Is(err, ErrNotActive) {
		c.logger.Warn("ワーカーの終了待ちが中断されました", "activation", activation, "error", err)
	}
}

// deactivate は lifecycle を切り離し、ワーカー上でリソースを閉じてから終了を待つ
//
// activation が空でなければ、そのアクティベーションが現在のものである場合だけ処理する。
func (c *Controller) deactivate(ctx context.Context, activation string) (string, error) {
	c.mu.Lock()
	if !c.active || (activation != "" && c.lc.activation != activation) {
		c.mu.Unlock()
		return "", ErrNotActive
	}
	c.active = false
	activation = c.lc.activation
	worker := c.lc.worker
	res := c.detachCamera()
	c.lc = lifecycle{}
	c.mu.Unlock()

	closeAll := func() { c.closeResources(res) }
	if !worker.Post(closeAll) {
		closeAll()
	}
	worker.QuitSafely()

	return activation, worker.Join(ctx)
}

// SetFrameSink はフレームの配送先を差し替える。nil で配送を止める
func (c *Controller) SetFrameSink(sink FrameSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// OnSurfaceAvailable は描画先が利用可能になったときに呼ぶ
func (c *Controller) OnSurfaceAvailable(ctx context.Context, width, height int) error {
	c.mu.Lock()
	c.surfaceAvailable = true
	c.surfaceWidth, c.surfaceHeight = width, height
	active := c.active
	activation := c.lc.activation
	busy := c.lc.deviceState != DeviceClosed
	c.mu.Unlock()

	if !active || busy {
		return nil
	}
	return c.openCamera(ctx, activation)
}

// OnSurfaceSizeChanged は描画先のサイズ変更を記録する
func (c *Controller) OnSurfaceSizeChanged(width, height int) {
	c.mu.Lock()
	c.surfaceWidth, c.surfaceHeight = width, height
	c.mu.Unlock()

	c.logger.Info("描画先のサイズが変更されました", "width", width, "height", height)
}

// OnSurfaceDestroyed は描画先の破棄時に呼ぶ
//
// カメラは閉じるがワーカーは維持するため、再び OnSurfaceAvailable が呼ばれると開き直す。
// ワーカー上（FrameSink の中）から呼んではならない。
func (c *Controller) OnSurfaceDestroyed(ctx context.Context) error {
	c.mu.Lock()
	c.surfaceAvailable = false
	active := c.active
	activation := c.lc.activation
	worker := c.lc.worker
	c.mu.Unlock()

	if !active {
		return nil
	}
	return worker.Call(ctx, func() { c.closeCamera(activation) })
}

// RestartSession は開いているデバイスでキャプチャセッションを作り直す
//
// ワーカー上（FrameSink の中）から呼んではならない。
func (c *Controller) RestartSession(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotActive
	}
	worker := c.lc.worker
	activation := c.lc.activation
	c.mu.Unlock()

	var err error
	if callErr := worker.Call(ctx, func() {
		err = c.restartSession(activation)
	}); callErr != nil {
		return callErr
	}
	return err
}

// Stats は現在の状態を返す
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Active:           c.active,
		ActivationID:     c.lc.activation,
		DeviceID:         c.lc.deviceID,
		DeviceState:      c.lc.deviceState,
		SessionState:     c.lc.sessionState,
		SurfaceAvailable: c.surfaceAvailable,
		SurfaceWidth:     c.surfaceWidth,
		SurfaceHeight:    c.surfaceHeight,
		PreviewWidth:     c.opts.Width,
		PreviewHeight:    c.opts.Height,
		LockHeld:         c.lock.Held(),
		Activations:      c.activations,
		FramesDelivered:  c.framesDelivered,
		LastError:        c.lastErr,
	}
	if c.lc.characteristics != nil {
		s.SensorOrientation = c.lc.characteristics.SensorOrientation
		s.FlashAvailable = c.lc.characteristics.FlashAvailable
	}
	if c.lc.worker != nil {
		s.WorkerAlive = c.lc.worker.Alive()
	}
	if c.lc.source != nil {
		s.Source = c.lc.source.Stats()
	}
	return s
}

// Lock はデバイスロックを返す
func (c *Controller) Lock() *DeviceLock {
	return c.lock
}

// recordError は非同期の失敗を記録する。呼び出し側が c.mu を保持していること
func (c *Controller) recordError(err error) {
	c.lastErr = err
}
