package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrMockConfigure はモックのセッション構成失敗
var ErrMockConfigure = errors.New("モック: セッション構成に失敗")

// MockProvider はテスト用のモック Provider 実装
type MockProvider struct {
	mu      sync.Mutex
	devices []Characteristics

	// テスト制御用
	openErr         error
	manualOpen      bool
	manualConfigure bool
	failConfigure   int
	frameSize       Resolution
	frameFormat     PixelFormat

	// 保留中のコールバック
	pendingOpen      []func()
	pendingConfigure []func()

	// リソース計測用
	current      *mockDevice
	openDevices  int
	liveSessions int
	outstanding  int
	repeating    *mockSession
	openCalls    int
	sequence     uint8
}

// NewMockProvider は新しいMockProviderを作成する
func NewMockProvider(devices ...Characteristics) *MockProvider {
	return &MockProvider{
		devices:     devices,
		frameSize:   Resolution{Width: 640, Height: 480},
		frameFormat: FormatYUV420,
	}
}

// NewMockBackCamera はテスト用の背面カメラ特性を返す
func NewMockBackCamera(id string) Characteristics {
	return Characteristics{
		ID:                id,
		Name:              fmt.Sprintf("Mock Camera %s", id),
		Facing:            FacingBack,
		SensorOrientation: 90,
		FlashAvailable:    true,
		Resolutions:       []Resolution{{Width: 640, Height: 480}, {Width: 1280, Height: 720}},
		Formats:           []PixelFormat{FormatYUV420},
	}
}

// CameraIDs はデバイスID一覧を返す
func (m *MockProvider) CameraIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.devices))
	for _, d := range m.devices {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// Characteristics はデバイス特性を返す
func (m *MockProvider) Characteristics(_ context.Context, id string) (*Characteristics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.devices {
		if d.ID == id {
			result := d
			return &result, nil
		}
	}
	return nil, fmt.Errorf("デバイスが見つかりません: %s", id)
}

// OpenCamera はモックデバイスを開く
func (m *MockProvider) OpenCamera(id string, cb DeviceCallbacks) error {
	m.mu.Lock()
	m.openCalls++
	if m.openErr != nil {
		err := m.openErr
		m.mu.Unlock()
		return err
	}

	found := false
	for _, d := range m.devices {
		if d.ID == id {
			found = true
			break
		}
	}
	if !found {
		m.mu.Unlock()
		return fmt.Errorf("デバイスが見つかりません: %s", id)
	}

	dev := &mockDevice{provider: m, id: id}
	m.current = dev
	m.openDevices++
	dev.callbacks = cb

	fire := func() {
		if cb.OnOpened != nil {
			cb.OnOpened(dev)
		}
	}
	if m.manualOpen {
		m.pendingOpen = append(m.pendingOpen, fire)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	fire()
	return nil
}

// CompleteOpen は保留中のオープン完了通知を配送する
func (m *MockProvider) CompleteOpen() int {
	m.mu.Lock()
	pending := m.pendingOpen
	m.pendingOpen = nil
	m.mu.Unlock()

	for _, fire := range pending {
		fire()
	}
	return len(pending)
}

// CompleteConfigure は保留中のセッション構成通知を配送する
func (m *MockProvider) CompleteConfigure() int {
	m.mu.Lock()
	pending := m.pendingConfigure
	m.pendingConfigure = nil
	m.mu.Unlock()

	for _, fire := range pending {
		fire()
	}
	return len(pending)
}

// Disconnect は現在のデバイスの切断を通知する
func (m *MockProvider) Disconnect() bool {
	m.mu.Lock()
	dev := m.current
	m.mu.Unlock()

	if dev == nil || dev.callbacks.OnDisconnected == nil {
		return false
	}
	dev.callbacks.OnDisconnected(dev)
	return true
}

// FailDevice は現在のデバイスのエラーを通知する
func (m *MockProvider) FailDevice(err error) bool {
	m.mu.Lock()
	dev := m.current
	m.mu.Unlock()

	if dev == nil || dev.callbacks.OnError == nil {
		return false
	}
	dev.callbacks.OnError(dev, err)
	return true
}

// EmitFrames は繰り返しリクエストの出力先へ n フレームを配送する
func (m *MockProvider) EmitFrames(n int) int {
	m.mu.Lock()
	s := m.repeating
	if s == nil {
		m.mu.Unlock()
		return 0
	}
	targets := append([]Target(nil), s.request.Targets...)
	size := m.frameSize
	format := m.frameFormat
	m.mu.Unlock()

	for i := 0; i < n; i++ {
		for _, t := range targets {
			t.Deliver(m.newImage(size, format))
		}
	}
	return n
}

// newImage は計測付きのモック画像を作成する
func (m *MockProvider) newImage(size Resolution, format PixelFormat) *Image {
	m.mu.Lock()
	m.outstanding++
	m.sequence++
	seq := m.sequence
	m.mu.Unlock()

	luma := make([]byte, size.Width*size.Height)
	for i := range luma {
		luma[i] = seq
	}
	chroma := size.Width * size.Height / 4
	planes := [][]byte{luma, make([]byte, chroma), make([]byte, chroma)}

	return NewImage(size.Width, size.Height, format, planes, func() {
		m.mu.Lock()
		m.outstanding--
		m.mu.Unlock()
	})
}

// SetOpenError はテスト用にOpenCameraの失敗を設定する
func (m *MockProvider) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// SetManualOpen はテスト用にオープン完了通知を保留するか設定する
func (m *MockProvider) SetManualOpen(manual bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manualOpen = manual
}

// SetManualConfigure はテスト用にセッション構成通知を保留するか設定する
func (m *MockProvider) SetManualConfigure(manual bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manualConfigure = manual
}

// SetFailConfigure はテスト用に次の n 回のセッション構成を失敗させる
func (m *MockProvider) SetFailConfigure(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failConfigure = n
}

// SetFrameSize はモックが生成するフレームのサイズを設定する
func (m *MockProvider) SetFrameSize(width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameSize = Resolution{Width: width, Height: height}
}

// SetFrameFormat はモックが生成するフレームのフォーマットを設定する
func (m *MockProvider) SetFrameFormat(format PixelFormat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameFormat = format
}

// RunFrames は ctx が終了するまで interval 毎に1フレームを配送する
func (m *MockProvider) RunFrames(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.EmitFrames(1)
		}
	}
}

// OpenDevices は開いているデバイス数を返す
func (m *MockProvider) OpenDevices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openDevices
}

// LiveSessions は構成済みで閉じられていないセッション数を返す
func (m *MockProvider) LiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveSessions
}

// OutstandingImages は返却されていない画像数を返す
func (m *MockProvider) OutstandingImages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outstanding
}

// OpenCalls はOpenCameraの呼び出し回数を返す
func (m *MockProvider) OpenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls
}

// Repeating は繰り返しリクエストが動作中かを返す
func (m *MockProvider) Repeating() (CaptureRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.repeating == nil {
		return CaptureRequest{}, false
	}
	return m.repeating.request, true
}

type mockDevice struct {
	provider  *MockProvider
	id        string
	callbacks DeviceCallbacks
	closed    bool
	sessions  []*mockSession
}

func (d *mockDevice) ID() string { return d.id }

func (d *mockDevice) CreateCaptureSession(targets []Target, cb SessionCallbacks) error {
	m := d.provider
	m.mu.Lock()
	if d.closed {
		m.mu.Unlock()
		return fmt.Errorf("デバイス %s は閉じられています", d.id)
	}

	s := &mockSession{device: d, targets: targets}
	var fire func()
	if m.failConfigure > 0 {
		m.failConfigure--
		fire = func() {
			if cb.OnConfigureFailed != nil {
				cb.OnConfigureFailed(s, ErrMockConfigure)
			}
		}
	} else {
		fire = func() {
			m.mu.Lock()
			if d.closed {
				m.mu.Unlock()
				if cb.OnConfigureFailed != nil {
					cb.OnConfigureFailed(s, fmt.Errorf("デバイス %s は閉じられています", d.id))
				}
				return
			}
			s.configured = true
			d.sessions = append(d.sessions, s)
			m.liveSessions++
			m.mu.Unlock()
			if cb.OnConfigured != nil {
				cb.OnConfigured(s)
			}
		}
	}

	if m.manualConfigure {
		m.pendingConfigure = append(m.pendingConfigure, fire)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	fire()
	return nil
}

func (d *mockDevice) Close() {
	m := d.provider
	m.mu.Lock()
	if d.closed {
		m.mu.Unlock()
		return
	}
	d.closed = true
	m.openDevices--
	if m.current == d {
		m.current = nil
	}
	sessions := d.sessions
	d.sessions = nil
	m.mu.Unlock()

	// デバイスを閉じると紐づくセッションも閉じる
	for _, s := range sessions {
		s.Close()
	}
}

type mockSession struct {
	device     *mockDevice
	targets    []Target
	request    CaptureRequest
	configured bool
	closed     bool
}

func (s *mockSession) SetRepeatingRequest(req CaptureRequest) error {
	m := s.device.provider
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.closed || !s.configured {
		return fmt.Errorf("セッションが利用できません")
	}
	s.request = req
	m.repeating = s
	return nil
}

func (s *mockSession) Close() {
	m := s.device.provider
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.configured {
		m.liveSessions--
	}
	if m.repeating == s {
		m.repeating = nil
	}
}
