package server

import (
	"time"

	"arscope/internal/preview"
)

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerInfo はサーバー情報
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// CameraStatus はプレビューの状態
type CameraStatus struct {
	Active            bool   `json:"active"`
	ActivationID      string `json:"activation_id,omitempty"`
	CameraID          string `json:"camera_id,omitempty"`
	DeviceState       string `json:"device_state"`
	SessionState      string `json:"session_state"`
	SurfaceAvailable  bool   `json:"surface_available"`
	SurfaceWidth      int    `json:"surface_width"`
	SurfaceHeight     int    `json:"surface_height"`
	PreviewWidth      int    `json:"preview_width"`
	PreviewHeight     int    `json:"preview_height"`
	SensorOrientation int    `json:"sensor_orientation"`
	FlashAvailable    bool   `json:"flash_available"`
	LockHeld          bool   `json:"lock_held"`
	WorkerAlive       bool   `json:"worker_alive"`
	Activations       uint64 `json:"activations"`
	FramesDelivered   uint64 `json:"frames_delivered"`
	FramesDropped     uint64 `json:"frames_dropped"`
	LastError         string `json:"last_error,omitempty"`
}

// StreamStatus は配信の状態
type StreamStatus struct {
	SurfaceFrames    uint64 `json:"surface_frames"`
	SurfaceErrors    uint64 `json:"surface_errors"`
	MJPEGClients     int    `json:"mjpeg_clients"`
	WebSocketClients int    `json:"websocket_clients"`
	WebSocketFrames  uint64 `json:"websocket_frames"`
}

// StatusResponse はシステム状態のレスポンス
type StatusResponse struct {
	Status    string       `json:"status"`
	Server    ServerInfo   `json:"server"`
	Camera    CameraStatus `json:"camera"`
	Stream    StreamStatus `json:"stream"`
	Timelapse bool         `json:"timelapse"`
	Timestamp time.Time    `json:"timestamp"`
}

// CameraInfo はカメラ一覧の1件
type CameraInfo struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Facing            string   `json:"facing"`
	SensorOrientation int      `json:"sensor_orientation"`
	FlashAvailable    bool     `json:"flash_available"`
	Resolutions       []string `json:"resolutions"`
	Formats           []string `json:"formats"`
}

// CamerasResponse はカメラ一覧のレスポンス
type CamerasResponse struct {
	Cameras []CameraInfo `json:"cameras"`
}

// SurfaceRequest は描画先の通知リクエスト
type SurfaceRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ErrorResponse はエラーレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// convertStats はプレビューの状態をレスポンス形式に変換する
func convertStats(s preview.Stats) CameraStatus {
	status := CameraStatus{
		Active:            s.Active,
		ActivationID:      s.ActivationID,
		CameraID:          s.DeviceID,
		DeviceState:       s.DeviceState.String(),
		SessionState:      s.SessionState.String(),
		SurfaceAvailable:  s.SurfaceAvailable,
		SurfaceWidth:      s.SurfaceWidth,
		SurfaceHeight:     s.SurfaceHeight,
		PreviewWidth:      s.PreviewWidth,
		PreviewHeight:     s.PreviewHeight,
		SensorOrientation: s.SensorOrientation,
		FlashAvailable:    s.FlashAvailable,
		LockHeld:          s.LockHeld,
		WorkerAlive:       s.WorkerAlive,
		Activations:       s.Activations,
		FramesDelivered:   s.FramesDelivered,
		FramesDropped:     s.Source.Dropped,
	}
	if s.LastError != nil {
		status.LastError = s.LastError.Error()
	}
	return status
}
