package preview

import (
	"context"
	"fmt"

	"arscope/internal/camera"
)

// openCamera はデバイスロックを取得し、条件に合うカメラを非同期に開く
//
// 呼び出し側のゴルーチンで実行される。オープン完了はワーカー上で handleOpened が処理する。
func (c *Controller) openCamera(ctx context.Context, activation string) error {
	hold, err := c.lock.TryAcquire(ctx, c.opts.LockTimeout)
	if err != nil {
		c.logger.Error("カメラのロックを取得できません", "activation", activation, "error", err)
		c.mu.Lock()
		c.recordError(err)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if !c.active || c.lc.activation != activation {
		c.mu.Unlock()
		hold.Release()
		return ErrNotActive
	}
	if c.lc.deviceState != DeviceClosed {
		// 別の呼び出しで既に開いている
		c.mu.Unlock()
		hold.Release()
		return nil
	}
	c.mu.Unlock()

	chars, err := c.selectDevice(ctx)
	if err != nil {
		hold.Release()
		c.logger.Error("カメラを選択できません", "activation", activation, "error", err)
		c.mu.Lock()
		c.recordError(err)
		c.mu.Unlock()
		return err
	}

	source := NewFrameSource(c.opts.Width, c.opts.Height, c.opts.Format, c.opts.MaxImages)

	c.mu.Lock()
	if !c.active || c.lc.activation != activation || c.lc.worker == nil || c.lc.deviceState != DeviceClosed {
		// デバイス選択中に停止された
		c.mu.Unlock()
		source.Close()
		hold.Release()
		c.logger.Info("停止されたためカメラを開きません", "activation", activation, "camera", chars.ID)
		return ErrNotActive
	}
	worker := c.lc.worker
	source.SetOnImageAvailable(c.frameAvailable(activation, source), worker)
	c.lc.hold = hold
	c.lc.deviceID = chars.ID
	c.lc.characteristics = chars
	c.lc.deviceState = DeviceOpening
	c.lc.sessionState = SessionIdle
	c.lc.source = source
	c.mu.Unlock()

	c.logger.Info("カメラを開きます",
		"activation", activation,
		"camera", chars.ID,
		"orientation", chars.SensorOrientation,
		"flash", chars.FlashAvailable,
	)

	if err := c.provider.OpenCamera(chars.ID, c.deviceCallbacks(activation, worker)); err != nil {
		err = fmt.Errorf("%w: %w", ErrDriverAccess, err)
		c.logger.Error("カメラを開けません", "activation", activation, "camera", chars.ID, "error", err)

		c.mu.Lock()
		if c.lc.source == source {
			c.lc.source = nil
			c.lc.hold = nil
			c.lc.deviceState = DeviceClosed
		}
		c.recordError(err)
		c.mu.Unlock()

		source.Close()
		hold.Release()
		return err
	}
	return nil
}

// selectDevice は列挙順で最初に条件を満たすカメラを返す
func (c *Controller) selectDevice(ctx context.Context) (*camera.Characteristics, error) {
	ids, err := c.provider.CameraIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDriverAccess, err)
	}

	for _, id := range ids {
		chars, err := c.provider.Characteristics(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDriverAccess, err)
		}
		if chars.Facing != c.opts.Facing || !chars.HasStreamConfigurations() {
			continue
		}
		return chars, nil
	}
	return nil, ErrNoSuitableDevice
}

// deviceCallbacks はドライバの通知をワーカーへ転送するコールバックを作る
//
// ワーカーが既に終了処理に入っている場合、渡されたデバイスはその場で閉じる。
func (c *Controller) deviceCallbacks(activation string, worker *Worker) camera.DeviceCallbacks {
	return camera.DeviceCallbacks{
		OnOpened: func(dev camera.Device) {
			if !worker.Post(func() { c.handleOpened(activation, dev) }) {
				dev.Close()
			}
		},
		OnDisconnected: func(dev camera.Device) {
			if !worker.Post(func() { c.handleDeviceLost(activation, dev, ErrDeviceDisconnected) }) {
				dev.Close()
			}
		},
		OnError: func(dev camera.Device, err error) {
			cause := fmt.Errorf("%w: %w", ErrDeviceError, err)
			if !worker.Post(func() { c.handleDeviceLost(activation, dev, cause) }) {
				dev.Close()
			}
		},
	}
}

// handleOpened はオープン完了をワーカー上で処理する
func (c *Controller) handleOpened(activation string, dev camera.Device) {
	c.mu.Lock()
	if c.lc.activation != activation || c.lc.deviceState != DeviceOpening {
		c.mu.Unlock()
		c.logger.Debug("不要になったカメラを閉じます", "activation", activation, "camera", dev.ID())
		dev.Close()
		return
	}
	c.lc.device = dev
	c.lc.deviceState = DeviceOpen
	hold := c.lc.hold
	c.lc.hold = nil
	c.mu.Unlock()

	hold.Release()
	c.logger.Info("カメラを開きました", "activation", activation, "camera", dev.ID())

	c.createSession(activation)
}

// handleDeviceLost は切断・エラーをワーカー上で処理する。再オープンはしない
func (c *Controller) handleDeviceLost(activation string, dev camera.Device, cause error) {
	c.mu.Lock()
	current := c.lc.activation == activation &&
		(c.lc.device == dev || (c.lc.device == nil && c.lc.deviceState == DeviceOpening))
	if !current {
		c.mu.Unlock()
		dev.Close()
		return
	}

	session := c.lc.session
	source := c.lc.source
	hold := c.lc.hold
	c.lc.session = nil
	c.lc.source = nil
	c.lc.hold = nil
	c.lc.device = nil
	c.lc.deviceState = DeviceError
	if c.lc.sessionState != SessionIdle {
		c.lc.sessionState = SessionClosed
	}
	c.lc.sessionGen++
	c.recordError(cause)
	c.mu.Unlock()

	c.logger.Warn("カメラが利用できなくなりました", "activation", activation, "camera", dev.ID(), "error", cause)

	if session != nil {
		session.Close()
	}
	dev.Close()
	if source != nil {
		source.Close()
	}
	hold.Release()

	c.mu.Lock()
	if c.lc.activation == activation && c.lc.deviceState == DeviceError {
		c.lc.deviceState = DeviceClosed
	}
	c.mu.Unlock()
}

// cameraResources は lifecycle から切り離したカメラ関連のリソース
type cameraResources struct {
	activation string
	session    camera.Session
	device     camera.Device
	source     *FrameSource
	hold       *LockHold
}

// detachCamera はセッション・デバイス・FrameSource・ロックを lifecycle から外す。呼び出し側が c.mu を保持していること
func (c *Controller) detachCamera() cameraResources {
	res := cameraResources{
		activation: c.lc.activation,
		session:    c.lc.session,
		device:     c.lc.device,
		source:     c.lc.source,
		hold:       c.lc.hold,
	}

	c.lc.session = nil
	c.lc.device = nil
	c.lc.source = nil
	c.lc.hold = nil
	if res.device != nil {
		c.lc.deviceState = DeviceClosing
	} else {
		c.lc.deviceState = DeviceClosed
	}
	if c.lc.sessionState != SessionIdle {
		c.lc.sessionState = SessionClosed
	}
	c.lc.sessionGen++
	return res
}

// closeResources はセッション・デバイス・FrameSourceの順に閉じ、ロックを解放する
//
// オープン完了前に呼ばれた場合は完了を待たずにロックを解放する。遅れて届いたデバイスは handleOpened が閉じる。
func (c *Controller) closeResources(res cameraResources) {
	if res.session != nil {
		res.session.Close()
	}
	if res.device != nil {
		res.device.Close()
	}
	if res.source != nil {
		res.source.Close()
	}
	res.hold.Release()

	if res.device != nil {
		c.logger.Info("カメラを閉じました", "activation", res.activation, "camera", res.device.ID())
	}
}

// closeCamera は activation のカメラを閉じる。ワーカーは維持する
//
// 既に別のアクティベーションに切り替わっている場合は何もしない。
func (c *Controller) closeCamera(activation string) {
	c.mu.Lock()
	if c.lc.activation != activation {
		c.mu.Unlock()
		return
	}
	res := c.detachCamera()
	c.mu.Unlock()

	c.closeResources(res)

	c.mu.Lock()
	if c.lc.activation == activation {
		c.lc.deviceState = DeviceClosed
	}
	c.mu.Unlock()
}
