// Package server は、カメラプレビューのHTTP APIと映像配信を管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// プレビューの描画先とフレーム配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - プレビューの開始・停止・セッション再構成のAPI
//   - 描画先（PreviewSurface）のJPEG化とMJPEGストリーミング
//   - シンクに届いたフレームのWebSocket配信（FrameHub）
//   - タイムラプスの状態取得
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - WebSocketはgorilla/websocketを使用
//   - 遅いクライアントには最新のフレームだけを送る
//   - 複数クライアントの同時接続をサポート
package server
