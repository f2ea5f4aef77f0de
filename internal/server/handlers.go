package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"arscope/internal/camera"
	"arscope/internal/preview"
)

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/cameras", s.handleCameras)

	api.POST("/camera/start", s.handleCameraStart)
	api.POST("/camera/stop", s.handleCameraStop)
	api.POST("/camera/session", s.handleSessionRestart)
	api.GET("/camera/stream", s.handleStream)
	api.GET("/camera/snapshot", s.handleSnapshot)
	api.GET("/camera/ws", s.handleWebSocket)

	api.POST("/surface", s.handleSurfaceAvailable)
	api.DELETE("/surface", s.handleSurfaceDestroyed)

	api.GET("/timelapse/status", s.handleTimelapseStatus)
	api.GET("/timelapse/videos", s.handleTimelapseVideos)
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	surface := s.surface.Stats()

	c.JSON(http.StatusOK, StatusResponse{
		Status: "running",
		Server: ServerInfo{
			Host: s.config.Server.Host,
			Port: s.config.Server.Port,
		},
		Camera: convertStats(s.controller.Stats()),
		Stream: StreamStatus{
			SurfaceFrames:    surface.Frames,
			SurfaceErrors:    surface.Errors,
			MJPEGClients:     surface.Subscribers,
			WebSocketClients: s.hub.Clients(),
			WebSocketFrames:  s.hub.Frames(),
		},
		Timelapse: s.recorder != nil,
		Timestamp: time.Now(),
	})
}

// handleCameras はカメラ一覧取得エンドポイント
func (s *Server) handleCameras(c *gin.Context) {
	ctx := c.Request.Context()

	ids, err := s.provider.CameraIDs(ctx)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "camera_unavailable", "カメラ一覧を取得できません", err)
		return
	}

	cameras := make([]CameraInfo, 0, len(ids))
	for _, id := range ids {
		chars, err := s.provider.Characteristics(ctx, id)
		if err != nil {
			respondError(c, http.StatusServiceUnavailable, "camera_unavailable", "カメラ特性を取得できません", err)
			return
		}
		cameras = append(cameras, convertCharacteristics(chars))
	}

	c.JSON(http.StatusOK, CamerasResponse{Cameras: cameras})
}

// handleCameraStart はプレビュー開始エンドポイント
func (s *Server) handleCameraStart(c *gin.Context) {
	if err := s.controller.Start(c.Request.Context()); err != nil {
		respondControllerError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertStats(s.controller.Stats()))
}

// handleCameraStop はプレビュー停止エンドポイント
func (s *Server) handleCameraStop(c *gin.Context) {
	if err := s.controller.Stop(c.Request.Context()); err != nil {
		respondControllerError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertStats(s.controller.Stats()))
}

// handleSessionRestart はキャプチャセッション再構成エンドポイント
func (s *Server) handleSessionRestart(c *gin.Context) {
	if err := s.controller.RestartSession(c.Request.Context()); err != nil {
		respondControllerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, convertStats(s.controller.Stats()))
}

// handleSurfaceAvailable は描画先の利用開始・サイズ変更エンドポイント
func (s *Server) handleSurfaceAvailable(c *gin.Context) {
	req := SurfaceRequest{
		Width:  s.config.Camera.PreviewWidth,
		Height: s.config.Camera.PreviewHeight,
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", "リクエストの形式が不正です", err)
			return
		}
	}
	if req.Width <= 0 || req.Height <= 0 {
		respondError(c, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("無効な描画先サイズ: %dx%d", req.Width, req.Height), nil)
		return
	}

	if s.controller.Stats().SurfaceAvailable {
		s.controller.OnSurfaceSizeChanged(req.Width, req.Height)
	} else if err := s.controller.OnSurfaceAvailable(c.Request.Context(), req.Width, req.Height); err != nil {
		respondControllerError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertStats(s.controller.Stats()))
}

// handleSurfaceDestroyed は描画先の破棄エンドポイント
func (s *Server) handleSurfaceDestroyed(c *gin.Context) {
	if err := s.controller.OnSurfaceDestroyed(c.Request.Context()); err != nil {
		respondControllerError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertStats(s.controller.Stats()))
}

// handleStream はMJPEGストリーミングエンドポイント
func (s *Server) handleStream(c *gin.Context) {
	if !s.controller.Stats().Active {
		respondError(c, http.StatusServiceUnavailable, "camera_not_active", "カメラがアクティブではありません", nil)
		return
	}
	s.streamMJPEG(c)
}

// handleSnapshot は最新のプレビュー画像を1枚返す
func (s *Server) handleSnapshot(c *gin.Context) {
	data, ok := s.surface.Latest()
	if !ok {
		respondError(c, http.StatusNotFound, "no_frame", "プレビュー画像がまだありません", nil)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/jpeg", data)
}

// handleWebSocket はWebSocketストリーミングエンドポイント
func (s *Server) handleWebSocket(c *gin.Context) {
	s.hub.ServeHTTP(c.Writer, c.Request)
}

// handleTimelapseStatus はタイムラプス状態取得エンドポイント
func (s *Server) handleTimelapseStatus(c *gin.Context) {
	if s.recorder == nil {
		respondError(c, http.StatusNotFound, "timelapse_disabled", "タイムラプスは無効です", nil)
		return
	}
	c.JSON(http.StatusOK, s.recorder.GetStatus())
}

// handleTimelapseVideos はタイムラプス動画一覧取得エンドポイント
func (s *Server) handleTimelapseVideos(c *gin.Context) {
	if s.recorder == nil {
		respondError(c, http.StatusNotFound, "timelapse_disabled", "タイムラプスは無効です", nil)
		return
	}
	videos, err := s.recorder.GetVideos()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "internal_error", "動画一覧を取得できません", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

// streamMJPEG は描画先のJPEGをMJPEGストリームとして配信する
func (s *Server) streamMJPEG(c *gin.Context) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	frames, cancel := s.surface.Subscribe()
	defer cancel()

	// 最初のフレームより先にヘッダーを送る
	c.Status(http.StatusOK)
	flusher.Flush()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return
		case <-s.done:
			return
		case frame := <-frames:
			if _, err := writer.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
				return
			}
			if _, err := writer.Write(frame); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ヘルパー関数

// respondControllerError はプレビューのエラーをHTTPステータスに変換して返す
func respondControllerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, preview.ErrAlreadyActive):
		respondError(c, http.StatusConflict, "already_active", "プレビューは既に開始されています", err)
	case errors.Is(err, preview.ErrNotActive):
		respondError(c, http.StatusConflict, "not_active", "プレビューは開始されていません", err)
	case errors.Is(err, preview.ErrDeviceNotOpen):
		respondError(c, http.StatusConflict, "device_not_open", "カメラデバイスが開かれていません", err)
	case errors.Is(err, preview.ErrLockTimeout):
		respondError(c, http.StatusServiceUnavailable, "camera_busy", "カメラが他の処理で使用中です", err)
	case errors.Is(err, preview.ErrNoSuitableDevice):
		respondError(c, http.StatusNotFound, "camera_not_found", "利用可能なカメラが見つかりません", err)
	case errors.Is(err, preview.ErrDriverAccess):
		respondError(c, http.StatusBadGateway, "driver_error", "カメラドライバへのアクセスに失敗しました", err)
	case errors.Is(err, preview.ErrInterruptedWait), errors.Is(err, preview.ErrWorkerStopped):
		respondError(c, http.StatusServiceUnavailable, "interrupted", "処理が中断されました", err)
	default:
		respondError(c, http.StatusInternalServerError, "internal_error", "内部エラーが発生しました", err)
	}
}

// respondError はエラーレスポンスを返す
func respondError(c *gin.Context, status int, code, message string, err error) {
	resp := ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err != nil {
		resp.Details = stringPtr(err.Error())
	}
	c.AbortWithStatusJSON(status, resp)
}

// convertCharacteristics はカメラ特性をレスポンス形式に変換する
func convertCharacteristics(chars *camera.Characteristics) CameraInfo {
	info := CameraInfo{
		ID:                chars.ID,
		Name:              chars.Name,
		Facing:            string(chars.Facing),
		SensorOrientation: chars.SensorOrientation,
		FlashAvailable:    chars.FlashAvailable,
		Resolutions:       make([]string, 0, len(chars.Resolutions)),
		Formats:           make([]string, 0, len(chars.Formats)),
	}
	for _, r := range chars.Resolutions {
		info.Resolutions = append(info.Resolutions, fmt.Sprintf("%dx%d", r.Width, r.Height))
	}
	for _, f := range chars.Formats {
		info.Formats = append(info.Formats, f.String())
	}
	return info
}

// stringPtr は文字列のポインタを返すヘルパー関数
func stringPtr(s string) *string {
	return &s
}
