package camera

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

// V4L2 の制御ID
const cidFocusAuto webcam.ControlID = 0x009a090c

// V4L2 のピクセルフォーマット (fourcc)
const (
	v4l2FormatYUYV webcam.PixelFormat = 0x56595559
	v4l2FormatMJPG webcam.PixelFormat = 0x47504a4d
	v4l2FormatGREY webcam.PixelFormat = 0x59455247
	v4l2FormatYU12 webcam.PixelFormat = 0x32315559
)

// TargetSpec は出力先が要求するサイズとフォーマットを公開する
type TargetSpec interface {
	Spec() (Resolution, PixelFormat)
}

// V4L2Options は V4L2Provider の設定
type V4L2Options struct {
	Facings       map[string]Facing // デバイスパス毎の向き
	DefaultFacing Facing            // Facings に無いデバイスの向き
	BufferCount   uint32
	FrameTimeout  uint32 // WaitForFrame のタイムアウト（秒）
}

// V4L2Provider は blackjack/webcam を使う Provider 実装
type V4L2Provider struct {
	discovery Discovery
	opts      V4L2Options
}

// NewV4L2Provider は新しいV4L2Providerを作成する
func NewV4L2Provider(discovery Discovery, opts V4L2Options) *V4L2Provider {
	if opts.DefaultFacing == "" {
		opts.DefaultFacing = FacingExternal
	}
	if opts.BufferCount == 0 {
		opts.BufferCount = 2
	}
	if opts.FrameTimeout == 0 {
		opts.FrameTimeout = 5
	}
	return &V4L2Provider{discovery: discovery, opts: opts}
}

// CameraIDs はデバイスパスを列挙順に返す
func (p *V4L2Provider) CameraIDs(ctx context.Context) ([]string, error) {
	return p.discovery.ScanDevices(ctx)
}

// Characteristics はデバイス情報と設定上の向きから特性を組み立てる
func (p *V4L2Provider) Characteristics(ctx context.Context, id string) (*Characteristics, error) {
	info, err := p.discovery.GetDeviceInfo(ctx, id)
	if err != nil {
		return nil, err
	}

	facing, ok := p.opts.Facings[id]
	if !ok {
		facing = p.opts.DefaultFacing
	}

	var formats []PixelFormat
	for _, name := range info.Formats {
		switch name {
		case "YUYV":
			// ソフトウェア変換で YUV420 / GRAY も出力できる
			formats = append(formats, FormatYUYV, FormatYUV420, FormatGray)
		case "YU12":
			formats = append(formats, FormatYUV420)
		case "GREY":
			formats = append(formats, FormatGray)
		case "MJPG":
			formats = append(formats, FormatMJPEG)
		}
	}

	return &Characteristics{
		ID:          id,
		Name:        info.Name,
		Facing:      facing,
		Resolutions: info.Resolutions,
		Formats:     formats,
	}, nil
}

// OpenCamera はデバイスを開き、結果を別ゴルーチンから通知する
func (p *V4L2Provider) OpenCamera(id string, cb DeviceCallbacks) error {
	cam, err := webcam.Open(id)
	if err != nil {
		return errors.Wrap(err, "Can not open device")
	}

	dev := &v4l2Device{id: id, cam: cam, opts: p.opts, callbacks: cb}
	go func() {
		if cb.OnOpened != nil {
			cb.OnOpened(dev)
		}
	}()
	return nil
}

type v4l2Device struct {
	id        string
	cam       *webcam.Webcam
	opts      V4L2Options
	callbacks DeviceCallbacks

	mu       sync.Mutex
	closed   bool
	sessions []*v4l2Session
}

func (d *v4l2Device) ID() string { return d.id }

func (d *v4l2Device) CreateCaptureSession(targets []Target, cb SessionCallbacks) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.Errorf("device %s is closed", d.id)
	}

	s := &v4l2Session{device: d, targets: targets, stopCh: make(chan struct{})}
	d.sessions = append(d.sessions, s)

	go func() {
		if err := s.configure(); err != nil {
			if cb.OnConfigureFailed != nil {
				cb.OnConfigureFailed(s, err)
			}
			return
		}
		if cb.OnConfigured != nil {
			cb.OnConfigured(s)
		}
	}()
	return nil
}

func (d *v4l2Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	sessions := d.sessions
	d.sessions = nil
	d.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	_ = d.cam.Close()
}

type v4l2Session struct {
	device  *v4l2Device
	targets []Target

	mu        sync.Mutex
	size      Resolution
	devFormat webcam.PixelFormat
	outFormat PixelFormat
	streaming bool
	closed    bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// configure はターゲットの要求に最も近いフォーマットをデバイスに設定する
func (s *v4l2Session) configure() error {
	size := Resolution{Width: 640, Height: 480}
	out := FormatYUV420
	for _, t := range s.targets {
		if spec, ok := t.(TargetSpec); ok {
			size, out = spec.Spec()
			break
		}
	}

	supported := s.device.cam.GetSupportedFormats()
	devFormat, ok := chooseDeviceFormat(supported, out)
	if !ok {
		return errors.Errorf("no device format can produce %s", out)
	}

	code, w, h, err := s.device.cam.SetImageFormat(devFormat, uint32(size.Width), uint32(size.Height))
	if err != nil {
		return errors.Wrap(err, "Can not set image format")
	}
	if code != devFormat {
		return errors.Errorf("device changed pixel format from %s to %s", supported[devFormat], supported[code])
	}
	if int(w) != size.Width || int(h) != size.Height {
		// 要求サイズに非対応のデバイスは近いサイズに丸める
		log.Printf("警告: %s は %dx%d に対応していないため %dx%d で撮影します",
			s.device.id, size.Width, size.Height, w, h)
	}
	if err := s.device.cam.SetBufferCount(s.device.opts.BufferCount); err != nil {
		return errors.Wrap(err, "Can not set buffer count")
	}

	s.mu.Lock()
	s.size = Resolution{Width: int(w), Height: int(h)}
	s.devFormat = code
	s.outFormat = out
	s.mu.Unlock()
	return nil
}

// chooseDeviceFormat は出力フォーマットに対応するデバイスフォーマットを選ぶ
func chooseDeviceFormat(supported map[webcam.PixelFormat]string, out PixelFormat) (webcam.PixelFormat, bool) {
	var candidates []webcam.PixelFormat
	switch out {
	case FormatYUV420:
		candidates = []webcam.PixelFormat{v4l2FormatYU12, v4l2FormatYUYV}
	case FormatGray:
		candidates = []webcam.PixelFormat{v4l2FormatGREY, v4l2FormatYUYV}
	case FormatYUYV:
		candidates = []webcam.PixelFormat{v4l2FormatYUYV}
	case FormatMJPEG:
		candidates = []webcam.PixelFormat{v4l2FormatMJPG}
	}
	for _, c := range candidates {
		if _, ok := supported[c]; ok {
			return c, true
		}
	}
	return 0, false
}

func (s *v4l2Session) SetRepeatingRequest(req CaptureRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("session is closed")
	}
	if s.streaming {
		return nil
	}

	cam := s.device.cam
	if req.AFMode == AFModeContinuousPicture {
		// オートフォーカス非対応のカメラもあるためエラーは無視する
		_ = cam.SetControl(cidFocusAuto, 1)
	}
	if err := cam.StartStreaming(); err != nil {
		return errors.Wrap(err, "Can not start streaming")
	}

	s.streaming = true
	targets := req.Targets
	if len(targets) == 0 {
		targets = s.targets
	}
	s.wg.Add(1)
	go s.loop(targets, s.size, s.devFormat, s.outFormat)
	return nil
}

// loop はフレームを読み出してターゲットへ配送する
func (s *v4l2Session) loop(targets []Target, size Resolution, devFormat webcam.PixelFormat, out PixelFormat) {
	defer s.wg.Done()
	cam := s.device.cam

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		err := cam.WaitForFrame(s.device.opts.FrameTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			select {
			case <-s.stopCh:
				return
			default:
			}
			if cb := s.device.callbacks.OnError; cb != nil {
				cb(s.device, errors.Wrap(err, "Frame wait failed"))
			}
			return
		}

		frame, index, err := cam.GetFrame()
		if err != nil {
			if cb := s.device.callbacks.OnError; cb != nil {
				cb(s.device, errors.Wrap(err, "Read frame failed"))
			}
			return
		}
		if len(frame) == 0 {
			continue
		}

		planes := convertFrame(frame, size, devFormat, out)
		_ = cam.ReleaseFrame(index)
		if planes == nil {
			continue
		}

		// ターゲット毎に独立したバッファを渡す
		for _, t := range targets {
			copied := make([][]byte, len(planes))
			for i, p := range planes {
				copied[i] = append([]byte(nil), p...)
			}
			t.Deliver(NewImage(size.Width, size.Height, out, copied, nil))
		}
	}
}

func (s *v4l2Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	streaming := s.streaming
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	if streaming {
		_ = s.device.cam.StopStreaming()
	}
}

// convertFrame はデバイスのフレームを出力フォーマットのプレーンに変換する
func convertFrame(frame []byte, size Resolution, devFormat webcam.PixelFormat, out PixelFormat) [][]byte {
	w, h := size.Width, size.Height
	switch {
	case devFormat == v4l2FormatMJPG && out == FormatMJPEG:
		return [][]byte{frame}
	case devFormat == v4l2FormatGREY && out == FormatGray:
		return [][]byte{frame}
	case devFormat == v4l2FormatYU12 && out == FormatYUV420:
		ySize := w * h
		cSize := ySize / 4
		if len(frame) < ySize+2*cSize {
			return nil
		}
		return [][]byte{frame[:ySize], frame[ySize : ySize+cSize], frame[ySize+cSize : ySize+2*cSize]}
	case devFormat == v4l2FormatYUYV && out == FormatYUYV:
		return [][]byte{frame}
	case devFormat == v4l2FormatYUYV && out == FormatGray:
		stride := yuyvStride(frame, w, h)
		if stride == 0 {
			return nil
		}
		y := make([]byte, w*h)
		for row := 0; row < h; row++ {
			src := frame[row*stride:]
			for col := 0; col < w; col++ {
				y[row*w+col] = src[col*2]
			}
		}
		return [][]byte{y}
	case devFormat == v4l2FormatYUYV && out == FormatYUV420:
		return yuyvToI420(frame, w, h, yuyvStride(frame, w, h))
	}
	return nil
}

// yuyvStride は1行のバイト数を返す。行末に詰め物があるデバイスではフレーム長から求める。
// フレームが短すぎる場合は0
func yuyvStride(frame []byte, w, h int) int {
	if h <= 0 || w <= 0 {
		return 0
	}
	stride := len(frame) / h
	if stride < w*2 {
		return 0
	}
	return stride
}

// yuyvToI420 は YUYV 4:2:2 を Y/U/V の3プレーンに変換する。stride は1行のバイト数
func yuyvToI420(frame []byte, w, h, stride int) [][]byte {
	if stride < w*2 || len(frame) < stride*(h-1)+w*2 || w%2 != 0 || h%2 != 0 {
		return nil
	}

	y := make([]byte, w*h)
	u := make([]byte, w*h/4)
	v := make([]byte, w*h/4)
	for row := 0; row < h; row++ {
		src := frame[row*stride : row*stride+w*2]
		for col := 0; col < w; col += 2 {
			y[row*w+col] = src[col*2]
			y[row*w+col+1] = src[col*2+2]
			if row%2 == 0 {
				ci := (row/2)*(w/2) + col/2
				u[ci] = src[col*2+1]
				v[ci] = src[col*2+3]
			}
		}
	}
	return [][]byte{y, u, v}
}

// String はデバッグ用の表示
func (d *v4l2Device) String() string {
	return fmt.Sprintf("v4l2Device(%s)", d.id)
}
