package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"monomi/internal/detect"
	"monomi/internal/pipeline"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Camera   CameraConfig    `yaml:"camera"`
	Detector detect.Config   `yaml:"detector"`
	Pipeline pipeline.Config `yaml:"pipeline"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラソースの設定
type CameraConfig struct {
	// URL はMJPEGストリームのURL（例: http://192.168.1.20:4747/video）
	URL string `yaml:"url"`

	// ReadTimeout は1フレーム読み取りのタイムアウト
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// DiscoverHost はURL未指定時にポートスキャンするホスト
	// 空の場合は自動探索を行わない
	DiscoverHost string `yaml:"discover_host"`
}

// Load は設定を読み込む
// 環境変数で上書きできるデフォルト値ベースの実装
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsIntOrDefault("PORT", 8080),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			URL:          getEnvOrDefault("CAMERA_URL", ""),
			ReadTimeout:  getEnvAsDurationOrDefault("CAMERA_READ_TIMEOUT", 5*time.Second),
			DiscoverHost: getEnvOrDefault("CAMERA_DISCOVER_HOST", ""),
		},
		Detector: detect.DefaultConfig(),
		Pipeline: pipeline.DefaultConfig(),
	}

	// 検出器設定の環境変数上書き
	if v := os.Getenv("MODEL_VARIANT"); v != "" {
		variant, err := detect.ParseVariant(v)
		if err != nil {
			return nil, fmt.Errorf("MODEL_VARIANTの解析に失敗: %w", err)
		}
		cfg.Detector.Variant = variant
	}
	if v := os.Getenv("WEIGHTS_DIR"); v != "" {
		cfg.Detector.WeightsDir = v
	}
	cfg.Detector.Confidence = getEnvAsFloatOrDefault("CONFIDENCE_THRESHOLD", cfg.Detector.Confidence)
	cfg.Detector.IoU = getEnvAsFloatOrDefault("IOU_THRESHOLD", cfg.Detector.IoU)

	// パイプライン設定の環境変数上書き
	cfg.Pipeline.TargetFPS = getEnvAsIntOrDefault("TARGET_FPS", cfg.Pipeline.TargetFPS)
	cfg.Pipeline.FrameQueueCapacity = getEnvAsIntOrDefault("FRAME_QUEUE_CAPACITY", cfg.Pipeline.FrameQueueCapacity)
	cfg.Pipeline.ReconnectMaxAttempts = getEnvAsIntOrDefault("RECONNECT_MAX_ATTEMPTS", cfg.Pipeline.ReconnectMaxAttempts)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	if c.Camera.ReadTimeout <= 0 {
		return fmt.Errorf("カメラの読み取りタイムアウトは正の値が必要です: %s", c.Camera.ReadTimeout)
	}

	// 検出器設定の検証
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("検出器設定が無効です: %w", err)
	}

	// パイプライン設定の検証
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("パイプライン設定が無効です: %w", err)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsFloatOrDefault は環境変数を浮動小数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault は環境変数をDurationとして取得し、設定されていない場合はデフォルト値を返す
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
