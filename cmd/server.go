// Package main はMonomiサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"monomi/internal/camera"
	"monomi/internal/config"
	"monomi/internal/detect"
	"monomi/internal/pipeline"
	"monomi/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host      = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port      = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		cameraURL = flag.String("camera-url", "", "カメラのMJPEGストリームURL")
		discover  = flag.String("discover", "", "カメラを探索するホスト")
		model     = flag.String("model", "", "YOLOv8モデルバリアント (yolov8n/s/m/l/x)")
		help      = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Monomi")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *cameraURL != "" {
		cfg.Camera.URL = *cameraURL
	}
	if *discover != "" {
		cfg.Camera.DiscoverHost = *discover
	}
	if *model != "" {
		variant, err := detect.ParseVariant(*model)
		if err != nil {
			log.Fatalf("モデルの指定が不正です: %v", err)
		}
		cfg.Detector.Variant = variant
	}

	// コンテキストを作成
	ctx := context.Background()

	// カメラURLを解決する
	scanner := camera.NewNetworkScanner(camera.DefaultScanTimeout)
	sourceURL := cfg.Camera.URL
	if sourceURL == "" {
		if cfg.Camera.DiscoverHost == "" {
			log.Fatal("-camera-urlまたは-discoverを指定してください")
		}
		urls, err := scanner.ScanHost(ctx, cfg.Camera.DiscoverHost)
		if err != nil {
			log.Fatalf("カメラの探索に失敗しました: %v", err)
		}
		if len(urls) == 0 {
			log.Fatalf("カメラが見つかりませんでした: host=%s", cfg.Camera.DiscoverHost)
		}
		sourceURL = urls[0]
		log.Printf("カメラを検出しました: %s", sourceURL)
	}

	// 検出器を作成
	detector, err := detect.NewYOLODetector(cfg.Detector)
	if err != nil {
		log.Fatalf("検出器の初期化に失敗しました: %v", err)
	}
	defer detector.Close()

	// パイプラインを組み立てる
	factory := camera.NewSourceFactory()
	creator := func(sc camera.SourceConfig) (camera.Source, error) {
		return camera.NewMJPEGSource(sc.URL, cfg.Camera.ReadTimeout), nil
	}
	factory.Register("http", creator)
	factory.Register("https", creator)

	pl := pipeline.NewPipeline(cfg.Pipeline, sourceURL, factory,
		camera.NewTCPProber(), detector)

	// サーバーを作成して起動
	srv := server.New(cfg, pl, scanner)
	log.Printf("Monomi サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
