package preview

// DeviceState はカメラデバイスハンドルの状態
type DeviceState int

const (
	DeviceClosed  DeviceState = iota // 閉じている
	DeviceOpening                    // オープン完了待ち
	DeviceOpen                       // 使用可能
	DeviceClosing                    // クローズ処理中
	DeviceError                      // 切断またはエラー
)

// String は状態名を返す
func (s DeviceState) String() string {
	switch s {
	case DeviceClosed:
		return "closed"
	case DeviceOpening:
		return "opening"
	case DeviceOpen:
		return "open"
	case DeviceClosing:
		return "closing"
	case DeviceError:
		return "error"
	default:
		return "unknown"
	}
}

// SessionState はキャプチャセッションの状態
type SessionState int

const (
	SessionIdle        SessionState = iota // 未作成
	SessionConfiguring                     // 構成完了待ち
	SessionActive                          // 繰り返しリクエスト実行中
	SessionClosed                          // 閉じた
	SessionFailed                          // 構成に失敗
)

// String は状態名を返す
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConfiguring:
		return "configuring"
	case SessionActive:
		return "active"
	case SessionClosed:
		return "closed"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}
