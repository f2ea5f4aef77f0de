package camera

import (
	"context"
	"testing"
)

func TestProviderFactory(t *testing.T) {
	factory := NewProviderFactory()

	drivers := factory.SupportedDrivers()
	if len(drivers) != 2 || drivers[0] != DriverMock || drivers[1] != DriverV4L2 {
		t.Errorf("Expected [mock v4l2], got %v", drivers)
	}

	if _, err := factory.Create("unknown", ProviderConfig{}); err == nil {
		t.Error("Expected error for unknown driver")
	}

	// V4L2 はデバイスパスが必須
	if _, err := factory.Create(DriverV4L2, ProviderConfig{
		Devices: []DeviceConfig{{Facing: FacingBack}},
	}); err == nil {
		t.Error("Expected error for empty device path")
	}

	p, err := factory.Create(DriverV4L2, ProviderConfig{
		Devices: []DeviceConfig{{Device: "/dev/video0", Facing: FacingBack}},
	})
	if err != nil {
		t.Fatalf("Create v4l2 failed: %v", err)
	}
	if _, ok := p.(*V4L2Provider); !ok {
		t.Errorf("Expected *V4L2Provider, got %T", p)
	}
}

func TestNewMockProviderFromConfig(t *testing.T) {
	p, err := NewMockProviderFromConfig(ProviderConfig{})
	if err != nil {
		t.Fatalf("NewMockProviderFromConfig failed: %v", err)
	}

	ids, _ := p.CameraIDs(context.Background())
	if len(ids) != 1 || ids[0] != "mock0" {
		t.Errorf("Expected default mock0, got %v", ids)
	}

	p, err = NewMockProviderFromConfig(ProviderConfig{
		Devices: []DeviceConfig{
			{Device: "front", Facing: FacingFront},
			{Facing: FacingBack},
		},
	})
	if err != nil {
		t.Fatalf("NewMockProviderFromConfig failed: %v", err)
	}

	c, err := p.Characteristics(context.Background(), "mock1")
	if err != nil {
		t.Fatalf("Characteristics failed: %v", err)
	}
	if c.Facing != FacingBack {
		t.Errorf("Expected back, got %s", c.Facing)
	}

	c, _ = p.Characteristics(context.Background(), "front")
	if c.Facing != FacingFront {
		t.Errorf("Expected front, got %s", c.Facing)
	}
}
