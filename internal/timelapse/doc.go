// Package timelapse プレビューのフレームからタイムラプス動画を作る
//
// # 責務
// - プレビューのフレームを撮影間隔で間引いてJPEGとして蓄積する
// - 蓄積したフレームでFFmpegにより動画を延長する
// - 日付毎の動画ファイルへのローテーション
//
// # 仕様
// - Recorder は preview.FrameSink を実装する
// - 撮影間隔の標準は3秒、動画更新間隔は1時間
// - 停止時に残りのフレームを書き出す
//
// # 前提要件
//   - ffmpeg: 動画の生成に使用
//     Ubuntu/Debian: sudo apt install ffmpeg
package timelapse
