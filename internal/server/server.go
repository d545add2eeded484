package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"monomi/internal/camera"
	"monomi/internal/config"
	"monomi/internal/detect"
	"monomi/internal/pipeline"
)

// PipelineController はサーバーが操作するパイプラインを統一するインターフェース
type PipelineController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() pipeline.State
	ConnectionState() camera.ConnectionState
	Session() string
	SourceURL() string
	Snapshot() pipeline.Snapshot
	LatestResult() *detect.Result
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	pipeline   PipelineController
	scanner    camera.Scanner
	engine     *gin.Engine
	httpServer *http.Server
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, pl PipelineController, scanner camera.Scanner) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		config:   cfg,
		pipeline: pl,
		scanner:  scanner,
		engine:   engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)

	// APIエンドポイント
	api := s.engine.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/stats", s.handleStats)
	api.GET("/result", s.handleResult)
	api.GET("/result/image", s.handleResultImage)
	api.GET("/discover", s.handleDiscover)
	api.POST("/pipeline/start", s.handlePipelineStart)
	api.POST("/pipeline/stop", s.handlePipelineStop)

	// アノテーション済みフレームのMJPEGストリーミング
	s.engine.GET("/stream", s.handleStream)
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// ルートを設定
	s.setupRoutes()

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーとパイプラインをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 先にパイプラインを止めてカメラリソースを解放する
	if err := s.pipeline.Stop(ctx); err != nil {
		log.Printf("パイプラインの停止でエラーが発生しました: %v", err)
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}
