package camera

import (
	"context"
	"errors"
	"testing"
)

func TestMockProvider_OpenConfigureStream(t *testing.T) {
	provider := NewMockProvider(NewMockBackCamera("0"))

	var opened Device
	err := provider.OpenCamera("0", DeviceCallbacks{
		OnOpened: func(dev Device) { opened = dev },
	})
	if err != nil {
		t.Fatalf("OpenCamera failed: %v", err)
	}
	if opened == nil {
		t.Fatal("Expected OnOpened to be called")
	}
	if provider.OpenDevices() != 1 {
		t.Errorf("Expected 1 open device, got %d", provider.OpenDevices())
	}

	var received []*Image
	target := TargetFunc(func(img *Image) { received = append(received, img) })

	var session Session
	err = opened.CreateCaptureSession([]Target{target}, SessionCallbacks{
		OnConfigured: func(s Session) { session = s },
	})
	if err != nil {
		t.Fatalf("CreateCaptureSession failed: %v", err)
	}
	if session == nil {
		t.Fatal("Expected OnConfigured to be called")
	}

	if err := session.SetRepeatingRequest(CaptureRequest{
		Template: TemplatePreview,
		Targets:  []Target{target},
		AFMode:   AFModeContinuousPicture,
	}); err != nil {
		t.Fatalf("SetRepeatingRequest failed: %v", err)
	}

	req, ok := provider.Repeating()
	if !ok || req.AFMode != AFModeContinuousPicture {
		t.Errorf("Expected repeating request with continuous AF, got %+v (%v)", req, ok)
	}

	provider.EmitFrames(3)
	if len(received) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(received))
	}
	if provider.OutstandingImages() != 3 {
		t.Errorf("Expected 3 outstanding images, got %d", provider.OutstandingImages())
	}

	// 二重 Close でも返却は1回
	for _, img := range received {
		img.Close()
		img.Close()
	}
	if provider.OutstandingImages() != 0 {
		t.Errorf("Expected 0 outstanding images, got %d", provider.OutstandingImages())
	}

	opened.Close()
	if provider.OpenDevices() != 0 {
		t.Errorf("Expected 0 open devices, got %d", provider.OpenDevices())
	}
	if provider.LiveSessions() != 0 {
		t.Errorf("Expected 0 live sessions, got %d", provider.LiveSessions())
	}
	if _, ok := provider.Repeating(); ok {
		t.Error("Expected no repeating request after close")
	}
}

func TestMockProvider_ManualOpen(t *testing.T) {
	provider := NewMockProvider(NewMockBackCamera("0"))
	provider.SetManualOpen(true)

	called := 0
	if err := provider.OpenCamera("0", DeviceCallbacks{
		OnOpened: func(Device) { called++ },
	}); err != nil {
		t.Fatalf("OpenCamera failed: %v", err)
	}
	if called != 0 {
		t.Fatal("Expected OnOpened to be pending")
	}

	if n := provider.CompleteOpen(); n != 1 {
		t.Errorf("Expected 1 pending open, got %d", n)
	}
	if called != 1 {
		t.Errorf("Expected OnOpened once, got %d", called)
	}
}

func TestMockProvider_Errors(t *testing.T) {
	provider := NewMockProvider(NewMockBackCamera("0"))

	openErr := errors.New("busy")
	provider.SetOpenError(openErr)
	if err := provider.OpenCamera("0", DeviceCallbacks{}); !errors.Is(err, openErr) {
		t.Errorf("Expected open error, got %v", err)
	}
	provider.SetOpenError(nil)

	if err := provider.OpenCamera("missing", DeviceCallbacks{}); err == nil {
		t.Error("Expected error for unknown device")
	}

	var dev Device
	var lost error
	if err := provider.OpenCamera("0", DeviceCallbacks{
		OnOpened: func(d Device) { dev = d },
		OnError:  func(_ Device, err error) { lost = err },
	}); err != nil {
		t.Fatalf("OpenCamera failed: %v", err)
	}

	provider.SetFailConfigure(1)
	var failed error
	_ = dev.CreateCaptureSession(nil, SessionCallbacks{
		OnConfigureFailed: func(_ Session, err error) { failed = err },
	})
	if !errors.Is(failed, ErrMockConfigure) {
		t.Errorf("Expected ErrMockConfigure, got %v", failed)
	}

	fault := errors.New("fault")
	if !provider.FailDevice(fault) {
		t.Fatal("Expected FailDevice to reach the device")
	}
	if !errors.Is(lost, fault) {
		t.Errorf("Expected fault, got %v", lost)
	}
}

func TestMockProvider_Characteristics(t *testing.T) {
	front := NewMockBackCamera("1")
	front.Facing = FacingFront
	provider := NewMockProvider(front, NewMockBackCamera("0"))

	ids, err := provider.CameraIDs(context.Background())
	if err != nil {
		t.Fatalf("CameraIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "0" {
		t.Errorf("Expected enumeration order [1 0], got %v", ids)
	}

	c, err := provider.Characteristics(context.Background(), "0")
	if err != nil {
		t.Fatalf("Characteristics failed: %v", err)
	}
	if c.Facing != FacingBack || c.SensorOrientation != 90 || !c.FlashAvailable {
		t.Errorf("Unexpected characteristics: %+v", c)
	}
}
