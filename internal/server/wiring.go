package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"arscope/internal/camera"
	"arscope/internal/config"
	"arscope/internal/encoder"
	"arscope/internal/preview"
	"arscope/internal/timelapse"
)

// NewFromConfig は設定から全ての部品を組み立ててServerを作成する
func NewFromConfig(cfg *config.Config) (*Server, error) {
	factory := camera.NewProviderFactory()
	provider, err := factory.Create(camera.DriverType(cfg.Camera.Driver), cfg.Camera.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("カメラプロバイダの作成に失敗: %w", err)
	}

	enc := encoder.NewJPEGEncoder(cfg.Camera.JPEGQuality)
	surface := NewPreviewSurface(enc)
	hub := NewFrameHub(enc)

	opts := cfg.Camera.PreviewOptions()
	opts.Logger = slog.Default().With("component", "preview")
	controller := preview.NewController(provider, surface, opts)

	sinks := []preview.FrameSink{hub}
	var recorder *timelapse.Recorder
	if cfg.Timelapse.Enabled {
		if err := timelapse.ValidateFFmpeg(context.Background()); err != nil {
			log.Printf("警告: %v", err)
		}
		recorder = timelapse.NewRecorder(cfg.Timelapse, nil, nil)
		sinks = append(sinks, recorder)
	}
	controller.SetFrameSink(preview.Tee(sinks...))

	s := New(cfg, Deps{
		Provider:   provider,
		Controller: controller,
		Surface:    surface,
		Hub:        hub,
		Recorder:   recorder,
	})

	if mock, ok := provider.(*camera.MockProvider); ok {
		interval := cfg.Camera.MockFrameInterval
		if interval <= 0 {
			interval = config.Default().Camera.MockFrameInterval
		}
		s.frameLoop = func(ctx context.Context) {
			mock.RunFrames(ctx, interval)
		}
	}

	log.Printf("カメラドライバ: %s (対応: %v)", cfg.Camera.Driver, factory.SupportedDrivers())
	return s, nil
}
