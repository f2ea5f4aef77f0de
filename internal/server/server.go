package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"arscope/internal/camera"
	"arscope/internal/config"
	"arscope/internal/preview"
	"arscope/internal/timelapse"
)

// Server はプレビューとHTTP APIを管理する構造体
type Server struct {
	config     *config.Config
	provider   camera.Provider
	controller *preview.Controller
	surface    *PreviewSurface
	hub        *FrameHub
	recorder   *timelapse.Recorder

	// frameLoop はモックドライバのフレーム生成ループ
	frameLoop func(ctx context.Context)

	engine     *gin.Engine
	httpServer *http.Server

	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Deps はServerが使う部品
type Deps struct {
	Provider   camera.Provider
	Controller *preview.Controller
	Surface    *PreviewSurface
	Hub        *FrameHub
	Recorder   *timelapse.Recorder // nil ならタイムラプス無効
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, deps Deps) *Server {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	s := &Server{
		config:     cfg,
		provider:   deps.Provider,
		controller: deps.Controller,
		surface:    deps.Surface,
		hub:        deps.Hub,
		recorder:   deps.Recorder,
		engine:     engine,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Ready はリッスンを開始すると閉じられるチャンネルを返す
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Start はプレビューとHTTPサーバーを起動し、シグナルかコンテキストの終了まで待つ
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.recorder != nil {
		if err := s.recorder.Start(ctx); err != nil {
			return fmt.Errorf("タイムラプスの開始に失敗: %w", err)
		}
	}
	if s.frameLoop != nil {
		go s.frameLoop(ctx)
	}

	// HTTPクライアントが描画先になるため、起動時から利用可能として扱う
	if err := s.controller.OnSurfaceAvailable(ctx, s.config.Camera.PreviewWidth, s.config.Camera.PreviewHeight); err != nil {
		log.Printf("描画先の通知に失敗: %v", err)
	}
	if err := s.controller.Start(ctx); err != nil {
		// API から再度開始できるため起動は続ける
		log.Printf("プレビューの開始に失敗: %v", err)
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.stopPreview()
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", listener.Addr())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()
	close(s.ready)

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		s.stopPreview()
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	// ストリーミング中のハンドラを終わらせる
	s.closeOnce.Do(func() { close(s.done) })
	s.hub.Close()

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.stopPreview()

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}

// stopPreview はプレビューとタイムラプスを停止する
func (s *Server) stopPreview() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.controller.Stop(ctx); err != nil && !errors.Is(err, preview.ErrNotActive) {
		log.Printf("プレビューの停止に失敗: %v", err)
	}
	if s.recorder != nil {
		if err := s.recorder.Stop(ctx); err != nil {
			log.Printf("タイムラプスの停止に失敗: %v", err)
		}
	}
}
