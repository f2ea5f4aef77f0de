package camera

import (
	"context"
	"testing"

	"github.com/blackjack/webcam"
)

func TestV4L2Provider_Characteristics(t *testing.T) {
	ctx := context.Background()
	discovery := NewMockDiscovery([]string{"/dev/video0", "/dev/video2"})
	provider := NewV4L2Provider(discovery, V4L2Options{
		Facings: map[string]Facing{"/dev/video2": FacingBack},
	})

	ids, err := provider.CameraIDs(ctx)
	if err != nil {
		t.Fatalf("CameraIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Expected 2 ids, got %d", len(ids))
	}

	// 設定のないデバイスは外付け扱い
	c0, err := provider.Characteristics(ctx, "/dev/video0")
	if err != nil {
		t.Fatalf("Characteristics failed: %v", err)
	}
	if c0.Facing != FacingExternal {
		t.Errorf("Expected facing external, got %s", c0.Facing)
	}

	c2, err := provider.Characteristics(ctx, "/dev/video2")
	if err != nil {
		t.Fatalf("Characteristics failed: %v", err)
	}
	if c2.Facing != FacingBack {
		t.Errorf("Expected facing back, got %s", c2.Facing)
	}
	if !c2.HasStreamConfigurations() {
		t.Error("Expected stream configurations")
	}

	// YUYV はソフトウェア変換で YUV420 を提供する
	found := false
	for _, f := range c2.Formats {
		if f == FormatYUV420 {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected YUV420 in formats, got %v", c2.Formats)
	}

	if _, err := provider.Characteristics(ctx, "/dev/video9"); err == nil {
		t.Error("Expected error for unknown device")
	}
}

func TestV4L2Provider_DefaultFacing(t *testing.T) {
	provider := NewV4L2Provider(NewMockDiscovery([]string{"/dev/video0"}), V4L2Options{
		DefaultFacing: FacingBack,
	})

	c, err := provider.Characteristics(context.Background(), "/dev/video0")
	if err != nil {
		t.Fatalf("Characteristics failed: %v", err)
	}
	if c.Facing != FacingBack {
		t.Errorf("Expected facing back, got %s", c.Facing)
	}
}

func TestV4L2Provider_OpenMissingDevice(t *testing.T) {
	provider := NewV4L2Provider(NewMockDiscovery(nil), V4L2Options{})

	err := provider.OpenCamera("/dev/video-missing", DeviceCallbacks{
		OnOpened: func(Device) { t.Error("OnOpened must not be called") },
	})
	if err == nil {
		t.Error("Expected error opening a missing device")
	}
}

func TestChooseDeviceFormat(t *testing.T) {
	supported := map[webcam.PixelFormat]string{
		v4l2FormatYUYV: "YUYV 4:2:2",
		v4l2FormatMJPG: "Motion-JPEG",
	}

	tests := []struct {
		name string
		out  PixelFormat
		want webcam.PixelFormat
		ok   bool
	}{
		{"YUV420 from YUYV", FormatYUV420, v4l2FormatYUYV, true},
		{"GRAY from YUYV", FormatGray, v4l2FormatYUYV, true},
		{"MJPEG passthrough", FormatMJPEG, v4l2FormatMJPG, true},
		{"unknown", FormatUnknown, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := chooseDeviceFormat(supported, tt.out)
			if ok != tt.ok || got != tt.want {
				t.Errorf("chooseDeviceFormat() = %v, %v, want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestYUYVToI420(t *testing.T) {
	// 2x2 画素: Y0 U Y1 V の並び
	frame := []byte{
		10, 100, 20, 200,
		30, 101, 40, 201,
	}

	planes := yuyvToI420(frame, 2, 2, 4)
	if len(planes) != 3 {
		t.Fatalf("Expected 3 planes, got %d", len(planes))
	}

	wantY := []byte{10, 20, 30, 40}
	for i, v := range wantY {
		if planes[0][i] != v {
			t.Errorf("Y[%d] = %d, want %d", i, planes[0][i], v)
		}
	}
	if planes[1][0] != 100 || planes[2][0] != 200 {
		t.Errorf("Expected U=100 V=200, got U=%d V=%d", planes[1][0], planes[2][0])
	}

	// バッファが足りない場合は nil
	if yuyvToI420(frame[:4], 2, 2, 4) != nil {
		t.Error("Expected nil for short frame")
	}
}

func TestConvertFrame_PaddedYUYV(t *testing.T) {
	// 2x2 画素で各行の末尾に4バイトの詰め物がある
	frame := []byte{
		10, 100, 20, 200, 0xEE, 0xEE, 0xEE, 0xEE,
		30, 101, 40, 201, 0xEE, 0xEE, 0xEE, 0xEE,
	}
	size := Resolution{Width: 2, Height: 2}

	if stride := yuyvStride(frame, 2, 2); stride != 8 {
		t.Fatalf("yuyvStride() = %d, want 8", stride)
	}

	planes := convertFrame(frame, size, v4l2FormatYUYV, FormatYUV420)
	if len(planes) != 3 {
		t.Fatalf("Expected 3 planes, got %d", len(planes))
	}
	wantY := []byte{10, 20, 30, 40}
	for i, v := range wantY {
		if planes[0][i] != v {
			t.Errorf("Y[%d] = %d, want %d", i, planes[0][i], v)
		}
	}
	if planes[1][0] != 100 || planes[2][0] != 200 {
		t.Errorf("Expected U=100 V=200, got U=%d V=%d", planes[1][0], planes[2][0])
	}

	gray := convertFrame(frame, size, v4l2FormatYUYV, FormatGray)
	if len(gray) != 1 {
		t.Fatalf("Expected 1 plane, got %d", len(gray))
	}
	for i, v := range wantY {
		if gray[0][i] != v {
			t.Errorf("Gray[%d] = %d, want %d", i, gray[0][i], v)
		}
	}

	// 1行分に満たないフレームは変換しない
	if convertFrame(frame[:6], size, v4l2FormatYUYV, FormatGray) != nil {
		t.Error("Expected nil for short frame")
	}
}

func TestConvertFrame_YUYVToGray(t *testing.T) {
	frame := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	planes := convertFrame(frame, Resolution{Width: 2, Height: 2}, v4l2FormatYUYV, FormatGray)
	if len(planes) != 1 {
		t.Fatalf("Expected 1 plane, got %d", len(planes))
	}
	for i, want := range []byte{1, 2, 3, 4} {
		if planes[0][i] != want {
			t.Errorf("Y[%d] = %d, want %d", i, planes[0][i], want)
		}
	}

	if convertFrame(frame, Resolution{Width: 2, Height: 2}, v4l2FormatMJPG, FormatGray) != nil {
		t.Error("Expected nil for unsupported conversion")
	}
}
