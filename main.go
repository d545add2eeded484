package main

import (
	"context"
	"fmt"
	"log"

	"monomi/internal/camera"
	"monomi/internal/config"
	"monomi/internal/detect"
	"monomi/internal/pipeline"
	"monomi/internal/server"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コンテキストを作成
	ctx := context.Background()

	// カメラURLを解決する（未指定ならLANを探索）
	scanner := camera.NewNetworkScanner(camera.DefaultScanTimeout)
	sourceURL, err := resolveSourceURL(ctx, cfg, scanner)
	if err != nil {
		log.Fatalf("カメラソースの解決に失敗しました: %v", err)
	}

	// 検出器を作成
	detector, err := detect.NewYOLODetector(cfg.Detector)
	if err != nil {
		log.Fatalf("検出器の初期化に失敗しました: %v", err)
	}
	defer detector.Close()

	// パイプラインを組み立てる
	pl := pipeline.NewPipeline(cfg.Pipeline, sourceURL,
		newSourceFactory(cfg), camera.NewTCPProber(), detector)

	// サーバーを作成して起動
	srv := server.New(cfg, pl, scanner)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}

// newSourceFactory は設定の読み取りタイムアウトを適用したファクトリーを作る
func newSourceFactory(cfg *config.Config) *camera.SourceFactory {
	factory := camera.NewSourceFactory()
	creator := func(sc camera.SourceConfig) (camera.Source, error) {
		return camera.NewMJPEGSource(sc.URL, cfg.Camera.ReadTimeout), nil
	}
	factory.Register("http", creator)
	factory.Register("https", creator)
	return factory
}

// resolveSourceURL はカメラURLを決定する
// URLが未設定で探索ホストが指定されていれば、既知ポートのスキャンで
// 最初に見つかった候補を使う
func resolveSourceURL(ctx context.Context, cfg *config.Config, scanner camera.Scanner) (string, error) {
	if cfg.Camera.URL != "" {
		return cfg.Camera.URL, nil
	}
	if cfg.Camera.DiscoverHost == "" {
		return "", fmt.Errorf("CAMERA_URLまたはCAMERA_DISCOVER_HOSTを設定してください")
	}

	log.Printf("カメラを探索しています: host=%s", cfg.Camera.DiscoverHost)
	urls, err := scanner.ScanHost(ctx, cfg.Camera.DiscoverHost)
	if err != nil {
		return "", err
	}
	if len(urls) == 0 {
		return "", fmt.Errorf("カメラが見つかりませんでした: host=%s（候補: %v）",
			cfg.Camera.DiscoverHost, camera.CandidateURLs(cfg.Camera.DiscoverHost))
	}

	log.Printf("カメラを検出しました: %s", urls[0])
	return urls[0], nil
}
