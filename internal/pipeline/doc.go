// Package pipeline フレーム取得と推論のリアルタイムパイプラインを担う
//
// # 責務
// - 取得ループ（Producer）: カメラセッションの所有・再接続・バックオフ
// - 推論ループ（Consumer）: フレーム取り出しと検出器の呼び出し
// - 結果シンク: 最新優先の有界バッファと最新結果の公開
// - 統計集計: 各ステージのFPS・破棄数・推論レイテンシ
// - ライフサイクル制御: 両ループの一括起動・停止とリソース解放の保証
//
// # 仕様
// - 取得と推論は独立したゴルーチンで動作し、呼び出し側をブロックしない
// - 全てのブロッキング操作（読み取り・取り出し・バックオフ待機）は
//   タイムアウトで有界であり、停止シグナルは即座に観測される
// - 再接続は指数バックオフ（基準遅延 × 2^n、上限あり）で、
//   予算を使い切ると終端状態 Failed に遷移する
// - 再接続で新しいセッションが始まるとシーケンス番号はリセットされ、
//   旧セッションのフレームが結果に混入することはない
// - 停止は冪等であり、どの経路で停止してもカメラリソースは
//   ちょうど1回だけ解放される
//
// # 状態遷移
//	Idle -> Starting -> Running -> Stopping -> Idle
//	Running -> Failed （再接続予算の枯渇時のみ）
//	Failed からの復帰は明示的な Stop() + Start() のみ
package pipeline
