package preview

import (
	"fmt"

	"arscope/internal/camera"
)

// createSession は描画先とFrameSourceを出力先とするセッションを構成する。ワーカー上で呼ぶ
func (c *Controller) createSession(activation string) {
	c.mu.Lock()
	if c.lc.activation != activation || c.lc.deviceState != DeviceOpen || c.lc.source == nil {
		c.mu.Unlock()
		return
	}
	dev := c.lc.device
	source := c.lc.source
	worker := c.lc.worker
	c.lc.sessionGen++
	gen := c.lc.sessionGen
	c.lc.sessionState = SessionConfiguring
	c.mu.Unlock()

	c.surface.SetDefaultBufferSize(c.opts.Width, c.opts.Height)
	targets := []camera.Target{c.surface.Target(), source}

	err := dev.CreateCaptureSession(targets, c.sessionCallbacks(activation, gen, worker, targets))
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSessionConfigureFailed, err)
		c.logger.Warn("セッションを作成できません", "activation", activation, "camera", dev.ID(), "error", err)

		c.mu.Lock()
		if c.lc.sessionGen == gen {
			c.lc.sessionState = SessionFailed
		}
		c.recordError(err)
		c.mu.Unlock()
	}
}

// sessionCallbacks はセッションの通知をワーカーへ転送するコールバックを作る
func (c *Controller) sessionCallbacks(activation string, gen uint64, worker *Worker, targets []camera.Target) camera.SessionCallbacks {
	return camera.SessionCallbacks{
		OnConfigured: func(s camera.Session) {
			if !worker.Post(func() { c.handleConfigured(activation, gen, s, targets) }) {
				s.Close()
			}
		},
		OnConfigureFailed: func(s camera.Session, err error) {
			if !worker.Post(func() { c.handleConfigureFailed(activation, gen, s, err) }) {
				s.Close()
			}
		},
	}
}

// currentSession はセッション世代が現在のものかを返す。呼び出し側が c.mu を保持していること
func (c *Controller) currentSession(activation string, gen uint64) bool {
	return c.lc.activation == activation &&
		c.lc.sessionGen == gen &&
		c.lc.deviceState == DeviceOpen &&
		c.lc.device != nil
}

// handleConfigured は構成完了をワーカー上で処理し、繰り返しリクエストを開始する
func (c *Controller) handleConfigured(activation string, gen uint64, s camera.Session, targets []camera.Target) {
	c.mu.Lock()
	if !c.currentSession(activation, gen) || c.lc.sessionState != SessionConfiguring {
		// デバイスが既に閉じられている
		c.mu.Unlock()
		s.Close()
		return
	}
	c.lc.session = s
	c.mu.Unlock()

	err := s.SetRepeatingRequest(camera.CaptureRequest{
		Template: camera.TemplatePreview,
		Targets:  targets,
		AFMode:   camera.AFModeContinuousPicture,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentSession(activation, gen) {
		return
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSessionConfigureFailed, err)
		c.lc.sessionState = SessionFailed
		c.recordError(err)
		c.logger.Warn("プレビューを開始できません", "activation", activation, "error", err)
		return
	}
	c.lc.sessionState = SessionActive
	c.logger.Info("プレビューを開始しました", "activation", activation, "camera", c.lc.deviceID)
}

// handleConfigureFailed は構成失敗を記録する。デバイスは開いたまま維持し再試行はしない
func (c *Controller) handleConfigureFailed(activation string, gen uint64, s camera.Session, cause error) {
	s.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentSession(activation, gen) {
		return
	}

	err := fmt.Errorf("%w: %w", ErrSessionConfigureFailed, cause)
	c.lc.sessionState = SessionFailed
	c.recordError(err)
	c.logger.Warn("セッションの構成に失敗しました", "activation", activation, "camera", c.lc.deviceID, "error", err)
}

// restartSession は現在のセッションを閉じて作り直す。ワーカー上で呼ぶ
func (c *Controller) restartSession(activation string) error {
	c.mu.Lock()
	if c.lc.activation != activation || c.lc.deviceState != DeviceOpen {
		c.mu.Unlock()
		return ErrDeviceNotOpen
	}
	session := c.lc.session
	c.lc.session = nil
	c.lc.sessionGen++
	c.mu.Unlock()

	if session != nil {
		session.Close()
	}

	c.logger.Info("セッションを再構成します", "activation", activation)
	c.createSession(activation)
	return nil
}

// frameAvailable は最新の画像を取り出してシンクへ渡す処理を返す
func (c *Controller) frameAvailable(activation string, source *FrameSource) func() {
	return func() {
		c.mu.Lock()
		if c.lc.activation != activation || c.lc.source != source {
			c.mu.Unlock()
			return
		}
		sink := c.sink
		c.mu.Unlock()

		img := source.AcquireLatest()
		if img == nil {
			return
		}
		defer img.Close()

		if sink == nil || len(img.Planes) == 0 {
			return
		}

		// 画像は返却されるためシンクにはコピーを渡す
		data := make([]byte, len(img.Planes[0]))
		copy(data, img.Planes[0])

		c.mu.Lock()
		c.sequence++
		c.framesDelivered++
		seq := c.sequence
		c.mu.Unlock()

		sink.OnFrame(Frame{
			Data:      data,
			Width:     img.Width,
			Height:    img.Height,
			Format:    img.Format,
			Timestamp: img.Timestamp,
			Sequence:  seq,
		})
	}
}
