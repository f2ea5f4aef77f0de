package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blackjack/webcam"
)

var deviceNumberPattern = regexp.MustCompile(`^/dev/video(\d+)$`)

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
type LinuxDiscovery struct{}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() Discovery {
	return &LinuxDiscovery{}
}

// ScanDevices はキャプチャ可能な /dev/video* を番号順に返す
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []string
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if !d.IsDeviceAvailable(ctx, match) {
			continue
		}

		// メタデータ専用ノードはフォーマットを持たない
		formats, _ := probeFormats(match)
		if len(formats) == 0 {
			continue
		}
		devices = append(devices, match)
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	if !deviceNumberPattern.MatchString(device) {
		return false
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

// GetDeviceInfo はデバイスの詳細情報を取得する
func (d *LinuxDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !d.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("デバイスが利用できません: %s", device)
	}

	formats, resolutions := probeFormats(device)
	if len(formats) == 0 {
		return nil, fmt.Errorf("デバイス %s はキャプチャフォーマットを持ちません", device)
	}

	return &DeviceInfo{
		Device:      device,
		Name:        generateDeviceName(ctx, device),
		Driver:      "v4l2",
		Resolutions: resolutions,
		Formats:     formats,
	}, nil
}

// probeFormats はデバイスを一時的に開いてフォーマットと離散解像度を取得する
func probeFormats(device string) ([]string, []Resolution) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, nil
	}
	defer func() {
		_ = cam.Close()
	}()

	var formats []string
	seen := make(map[Resolution]bool)
	var resolutions []Resolution
	for code := range cam.GetSupportedFormats() {
		formats = append(formats, fourCC(code))
		for _, size := range cam.GetSupportedFrameSizes(code) {
			if size.MinWidth != size.MaxWidth || size.MinHeight != size.MaxHeight {
				continue
			}
			r := Resolution{Width: int(size.MaxWidth), Height: int(size.MaxHeight)}
			if !seen[r] {
				seen[r] = true
				resolutions = append(resolutions, r)
			}
		}
	}

	sort.Strings(formats)
	sort.Slice(resolutions, func(i, j int) bool {
		return resolutions[i].Width*resolutions[i].Height < resolutions[j].Width*resolutions[j].Height
	})
	return formats, resolutions
}

// fourCC は V4L2 のピクセルフォーマットコードを4文字に変換する
func fourCC(code webcam.PixelFormat) string {
	b := []byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)}
	return strings.TrimSpace(string(b))
}

// generateDeviceName はデバイスパスから表示名を生成する
func generateDeviceName(ctx context.Context, device string) string {
	if realName := v4l2DeviceName(ctx, device); realName != "" {
		return realName
	}
	return fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
}

// v4l2DeviceName はv4l2-ctlの "Card type" 行からカメラ名を取得する
func v4l2DeviceName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info").Output()
	if err != nil {
		return ""
	}

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Card type") {
			continue
		}
		if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberPattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	mu          sync.RWMutex
	devices     []string
	deviceInfos map[string]*DeviceInfo
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices []string) *MockDiscovery {
	m := &MockDiscovery{deviceInfos: make(map[string]*DeviceInfo)}
	for _, device := range devices {
		m.AddDevice(device)
	}
	return m
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.devices...), nil
}

// IsDeviceAvailable はモックデバイスが利用可能かチェックする
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.deviceInfos[device]
	return exists
}

// GetDeviceInfo はモックデバイス情報を取得する
func (m *MockDiscovery) GetDeviceInfo(_ context.Context, device string) (*DeviceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, exists := m.deviceInfos[device]
	if !exists {
		return nil, fmt.Errorf("デバイスが見つかりません: %s", device)
	}

	// コピーを返す
	result := *info
	return &result, nil
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.deviceInfos[device]; exists {
		return
	}

	m.devices = append(m.devices, device)
	m.deviceInfos[device] = &DeviceInfo{
		Device: device,
		Name:   fmt.Sprintf("テストカメラ %d", len(m.devices)),
		Driver: "mock",
		Resolutions: []Resolution{
			{Width: 640, Height: 480},
			{Width: 1280, Height: 720},
		},
		Formats: []string{"MJPG", "YUYV"},
	}
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.devices {
		if d == device {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	delete(m.deviceInfos, device)
}
