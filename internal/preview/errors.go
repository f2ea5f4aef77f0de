package preview

import "errors"

var (
	// ErrLockTimeout はデバイスロックを制限時間内に取得できなかった
	ErrLockTimeout = errors.New("カメラのロック取得がタイムアウトしました")

	// ErrInterruptedWait はロック待機中にコンテキストが終了した
	ErrInterruptedWait = errors.New("カメラのロック待機が中断されました")

	// ErrNoSuitableDevice は背面カメラが見つからない
	ErrNoSuitableDevice = errors.New("利用可能な背面カメラがありません")

	// ErrDriverAccess はドライバへのアクセスが拒否された
	ErrDriverAccess = errors.New("カメラドライバへのアクセスに失敗しました")

	// ErrDeviceDisconnected はデバイスが切断された
	ErrDeviceDisconnected = errors.New("カメラが切断されました")

	// ErrDeviceError はデバイスがエラーを通知した
	ErrDeviceError = errors.New("カメラデバイスでエラーが発生しました")

	// ErrSessionConfigureFailed はキャプチャセッションの構成に失敗した
	ErrSessionConfigureFailed = errors.New("キャプチャセッションの構成に失敗しました")

	// ErrNotActive はプレビューが開始されていない、または処理中に停止された
	ErrNotActive = errors.New("プレビューは開始されていません")

	// ErrAlreadyActive はプレビューが既に開始されている
	ErrAlreadyActive = errors.New("プレビューは既に開始されています")

	// ErrDeviceNotOpen はセッション操作の時点でデバイスが開かれていない
	ErrDeviceNotOpen = errors.New("カメラデバイスが開かれていません")

	// ErrWorkerStopped は終了済みのワーカーに処理を依頼した
	ErrWorkerStopped = errors.New("ワーカーは停止しています")
)
