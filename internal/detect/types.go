package detect

import (
	"context"
	"fmt"
	"time"
)

// ModelVariant はYOLOv8モデルの速度・精度トレードオフを表す
type ModelVariant string

const (
	// VariantNano は最速・最低精度
	VariantNano ModelVariant = "yolov8n"
	// VariantSmall は速度と精度のバランス型
	VariantSmall ModelVariant = "yolov8s"
	// VariantMedium は中程度の精度重視
	VariantMedium ModelVariant = "yolov8m"
	// VariantLarge は高精度
	VariantLarge ModelVariant = "yolov8l"
	// VariantXLarge は最高精度・最低速度
	VariantXLarge ModelVariant = "yolov8x"
)

// Variants は利用可能なモデルバリアント一覧を返す
func Variants() []ModelVariant {
	return []ModelVariant{VariantNano, VariantSmall, VariantMedium, VariantLarge, VariantXLarge}
}

// Valid はバリアントが既知のものかどうかを返す
func (v ModelVariant) Valid() bool {
	switch v {
	case VariantNano, VariantSmall, VariantMedium, VariantLarge, VariantXLarge:
		return true
	default:
		return false
	}
}

// WeightsFile はバリアントに対応するONNX重みファイル名を返す
func (v ModelVariant) WeightsFile() string {
	return string(v) + ".onnx"
}

// ParseVariant は文字列からModelVariantを解析する
func ParseVariant(s string) (ModelVariant, error) {
	v := ModelVariant(s)
	if !v.Valid() {
		return "", fmt.Errorf("不明なモデルバリアント: %s", s)
	}
	return v, nil
}

// Config は検出器の設定
type Config struct {
	Variant       ModelVariant `yaml:"variant"`        // モデルバリアント
	Confidence    float64      `yaml:"confidence"`     // 信頼度閾値 (0, 1]
	IoU           float64      `yaml:"iou"`            // NMSのIoU閾値
	MaxDetections int          `yaml:"max_detections"` // 1フレームあたりの最大検出数
	WeightsDir    string       `yaml:"weights_dir"`    // 重みファイルのディレクトリ
}

// DefaultConfig はデフォルトの検出器設定を返す
func DefaultConfig() Config {
	return Config{
		Variant:       VariantNano,
		Confidence:    0.5,
		IoU:           0.45,
		MaxDetections: 300,
		WeightsDir:    ".",
	}
}

// Validate は設定の妥当性を検証する
func (c Config) Validate() error {
	if !c.Variant.Valid() {
		return fmt.Errorf("不明なモデルバリアント: %s", c.Variant)
	}
	if c.Confidence <= 0 || c.Confidence > 1 {
		return fmt.Errorf("無効な信頼度閾値: %g", c.Confidence)
	}
	if c.IoU <= 0 || c.IoU > 1 {
		return fmt.Errorf("無効なIoU閾値: %g", c.IoU)
	}
	if c.MaxDetections <= 0 {
		return fmt.Errorf("無効な最大検出数: %d", c.MaxDetections)
	}
	return nil
}

// Box はバウンディングボックス（元画像のピクセル座標）
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Detection は1件の検出結果
type Detection struct {
	Label      string  `json:"label"`      // クラス名
	Confidence float64 `json:"confidence"` // 信頼度 [0, 1]
	Box        Box     `json:"box"`        // バウンディングボックス
}

// Summary は1フレームの検出結果の集計
type Summary struct {
	TotalObjects  int            `json:"total_objects"`  // 検出総数
	Classes       map[string]int `json:"classes"`        // クラス別件数
	AvgConfidence float64        `json:"avg_confidence"` // 平均信頼度
}

// Summarize は検出結果一覧からサマリーを生成する
func Summarize(detections []Detection) Summary {
	summary := Summary{
		TotalObjects: len(detections),
		Classes:      make(map[string]int),
	}

	if len(detections) == 0 {
		return summary
	}

	total := 0.0
	for _, d := range detections {
		summary.Classes[d.Label]++
		total += d.Confidence
	}
	summary.AvgConfidence = total / float64(len(detections))

	return summary
}

// Result は1回の推論の出力
// 生成後は不変。シーケンス番号で元フレームと紐づく
type Result struct {
	Session    string        `json:"session"`     // キャプチャセッションID
	Seq        uint64        `json:"seq"`         // 元フレームのシーケンス番号
	CapturedAt time.Time     `json:"captured_at"` // 元フレームの取得時刻
	Detections []Detection   `json:"detections"`  // 検出結果一覧
	Summary    Summary       `json:"summary"`     // 集計サマリー
	Latency    time.Duration `json:"latency_ns"`  // 推論時間
	Annotated  []byte        `json:"-"`           // アノテーション済みJPEG
}

// Detector はフレーム単位の物体検出を統一するインターフェース
// 推論の待ち時間は可変かつ上限がないものとして扱う
type Detector interface {
	// Detect はJPEGフレームに対して推論を実行し、
	// 検出結果とアノテーション済みJPEGを返す
	Detect(ctx context.Context, jpegData []byte) ([]Detection, []byte, error)

	// Close はモデルリソースを解放する
	Close() error
}

// DetectionError は推論呼び出しの失敗を表す
// 該当フレームはスキップされ、パイプラインは継続する
type DetectionError struct {
	Err error
}

// Error はエラーメッセージを返す
func (e *DetectionError) Error() string {
	return fmt.Sprintf("物体検出に失敗: %v", e.Err)
}

// Unwrap はラップされたエラーを返す
func (e *DetectionError) Unwrap() error { return e.Err }
