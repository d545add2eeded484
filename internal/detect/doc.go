// Package detect フレーム単位の物体検出を担う
//
// # 責務
// - YOLOv8 ONNXモデルによる物体検出（OpenCV DNN経由）
// - モデルバリアント（速度・精度のトレードオフ）の管理
// - 検出結果（クラス・信頼度・バウンディングボックス）の型定義
// - 検出結果のアノテーション描画（矩形・ラベル）
// - クラス別集計サマリーの生成
//
// # 仕様
// - 入力: JPEGエンコード済みフレーム
// - 前処理: 640x640へのリサイズと 1/255 正規化
// - 出力: 84x8400のDNN出力をデコードし、NMSで重複を除去
// - バウンディングボックスは元画像のピクセル座標に逆変換される
// - 信頼度閾値とIoU閾値は設定で指定する
//
// # 前提要件
//   - OpenCV 4.x (gocv経由)
//     Ubuntu/Debian: https://gocv.io/getting-started/linux/ を参照
//   - YOLOv8のONNX重みファイル（yolov8n.onnx 等）
//     ultralytics CLI: yolo export model=yolov8n.pt format=onnx
package detect
