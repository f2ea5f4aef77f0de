// Package preview カメラセッションのライフサイクルとフレーム配送を担う
//
// # 責務
// - カメラデバイスの排他的な所有（DeviceLock）
// - デバイスのオープン・クローズと切断への対応
// - 描画先とFrameSourceを出力先とするキャプチャセッションの構成
// - 最新フレームのみをFrameSinkへ渡すバックプレッシャー制御
//
// # 仕様
//   - DeviceLock: 二値セマフォ。待機は最大 LockTimeout（標準 2500ms）で、
//     取得・タイムアウト・中断の3通りの結果を返す
//   - デバイス状態: closed → opening → open → closing → closed。
//     切断・エラー時は error を経て closed に戻り、自動での再オープンはしない
//   - セッション状態: idle → configuring → active。構成失敗時は failed となり
//     デバイスは開いたまま残る。RestartSession で再試行できる
//   - FrameSource: 最大2枚を保持し、満杯時は古い画像から返却する
//   - ドライバからのコールバックは全てワーカーへのメッセージとして処理される。
//     ワーカーで状態を確認してから遷移するため、停止後に届いた通知は無視され、
//     渡されたデバイス・セッションはその場で閉じられる
//   - FrameSink はワーカー上で同期的に呼ばれる。渡される Data は画像の
//     最初のプレーンのコピー
package preview
