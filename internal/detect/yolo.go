package detect

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"
)

// inputSize はYOLOv8モデルの入力解像度
const inputSize = 640

// YOLODetector はOpenCV DNN経由のYOLOv8 ONNX検出器
type YOLODetector struct {
	// gocv.Netはスレッドセーフではないため、cgo呼び出しを直列化する
	mu  sync.Mutex
	net gocv.Net
	cfg Config
}

// NewYOLODetector は重みファイルを読み込んで新しいYOLODetectorを作成する
func NewYOLODetector(cfg Config) (*YOLODetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("検出器の設定が無効: %w", err)
	}

	weightsPath := filepath.Join(cfg.WeightsDir, cfg.Variant.WeightsFile())
	if _, err := os.Stat(weightsPath); err != nil {
		return nil, fmt.Errorf("重みファイルが見つかりません: %s: %w", weightsPath, err)
	}

	net := gocv.ReadNetFromONNX(weightsPath)
	if net.Empty() {
		return nil, fmt.Errorf("モデルの読み込みに失敗: %s", weightsPath)
	}

	return &YOLODetector{net: net, cfg: cfg}, nil
}

// Detect はJPEGフレームに対して推論を実行する
func (d *YOLODetector) Detect(ctx context.Context, jpegData []byte) ([]Detection, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpegData, gocv.IMReadColor)
	if err != nil {
		return nil, nil, &DetectionError{Err: fmt.Errorf("JPEGのデコードに失敗: %w", err)}
	}
	defer func() {
		_ = img.Close()
	}()
	if img.Empty() {
		return nil, nil, &DetectionError{Err: fmt.Errorf("空のフレームを受信しました")}
	}

	// 前処理: モデル入力サイズへのリサイズと正規化
	resized := gocv.NewMat()
	defer func() {
		_ = resized.Close()
	}()
	gocv.Resize(img, &resized, image.Pt(inputSize, inputSize), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0/255.0,
		image.Pt(inputSize, inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer func() {
		_ = blob.Close()
	}()
	if blob.Ptr() == nil {
		return nil, nil, &DetectionError{Err: fmt.Errorf("入力blobの作成に失敗しました")}
	}

	// 推論
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer func() {
		_ = output.Close()
	}()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, nil, &DetectionError{Err: fmt.Errorf("DNN出力の取得に失敗: %w", err)}
	}

	// 出力のデコードとNMS
	cols := 4 + NumClasses()
	rows := output.Total() / cols
	candidates := decodeOutput(data, rows, NumClasses(), float32(d.cfg.Confidence))

	boxes := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		boxes[i] = c.box
		scores[i] = c.score
	}
	indices := gocv.NMSBoxes(boxes, scores, float32(d.cfg.Confidence), float32(d.cfg.IoU))

	if len(indices) > d.cfg.MaxDetections {
		indices = indices[:d.cfg.MaxDetections]
	}

	// 元画像のピクセル座標への逆変換
	scaleX := float64(img.Cols()) / float64(inputSize)
	scaleY := float64(img.Rows()) / float64(inputSize)

	detections := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		c := candidates[idx]
		detections = append(detections, Detection{
			Label:      LabelName(c.classID),
			Confidence: float64(c.score),
			Box:        scaleBox(c.box, scaleX, scaleY, img.Cols(), img.Rows()),
		})
	}

	annotated, err := annotate(&img, detections)
	if err != nil {
		return nil, nil, &DetectionError{Err: err}
	}

	return detections, annotated, nil
}

// Close はモデルリソースを解放する
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// annotate は検出結果を画像に描画してJPEGとして返す
func annotate(img *gocv.Mat, detections []Detection) ([]byte, error) {
	boxColor := color.RGBA{R: 0, G: 255, B: 0, A: 0}
	textColor := color.RGBA{R: 255, G: 0, B: 0, A: 255}

	for _, det := range detections {
		rect := image.Rect(det.Box.X1, det.Box.Y1, det.Box.X2, det.Box.Y2)
		gocv.Rectangle(img, rect, boxColor, 2)

		label := fmt.Sprintf("%s %.2f", det.Label, det.Confidence)
		gocv.PutText(img, label, image.Pt(det.Box.X1, det.Box.Y1-5),
			gocv.FontHersheySimplex, 0.6, textColor, 2)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *img)
	if err != nil {
		return nil, fmt.Errorf("アノテーション画像のエンコードに失敗: %w", err)
	}
	defer buf.Close()

	encoded := make([]byte, len(buf.GetBytes()))
	copy(encoded, buf.GetBytes())
	return encoded, nil
}
