package main

import (
	"context"
	"log"
	"os"

	"arscope/internal/config"
	"arscope/internal/server"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// サーバーを作成
	srv, err := server.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("サーバーの作成に失敗しました: %v", err)
	}

	// コンテキストを作成
	ctx := context.Background()

	// サーバーを起動
	if err := srv.Start(ctx); err != nil {
		log.Printf("サーバーの起動に失敗しました: %v", err)
		os.Exit(1)
	}
}
