// Package camera カメラドライバへのアクセスを抽象化する
//
// # 責務
// - カメラデバイスの列挙と特性（向き・解像度・フォーマット）の取得
// - デバイスの非同期オープンとキャプチャセッションの構成
// - 繰り返しキャプチャによるフレームのターゲットへの配送
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 実機のV4L2カメラからフレームを取得したい (V4L2Provider)
// - ハードウェアなしでライフサイクルを検証したい (MockProvider)
// - 設定のドライバ名からプロバイダを選びたい (ProviderFactory)
//
// # 仕様
// - Provider / Device / Session: ドライバの非同期API。結果はコールバックで通知される
// - コールバックは任意のゴルーチンから呼ばれる。呼び出し側でシリアライズすること
// - Target.Deliver はブロックしてはならない
// - Image は Close でドライバへ返却する。Close 後の Planes は参照しない
// - Discovery: V4L2デバイスの自動検出・実名取得
//
// # 前提要件
//   - v4l-utils: カメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//     Red Hat/Fedora: sudo dnf install v4l-utils
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
