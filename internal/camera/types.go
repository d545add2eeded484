package camera

import (
	"context"
	"time"
)

// ConnectionState はカメラ接続の状態を表す
type ConnectionState string

const (
	// StateDisconnected は未接続状態
	StateDisconnected ConnectionState = "disconnected"
	// StateProbing は接続プローブ実行中
	StateProbing ConnectionState = "probing"
	// StateConnected はストリーム接続中
	StateConnected ConnectionState = "connected"
	// StateReconnecting は再接続試行中
	StateReconnecting ConnectionState = "reconnecting"
	// StateFailed は再接続予算を使い切った終端状態
	// 明示的な stop() + start() でのみ復帰できる
	StateFailed ConnectionState = "failed"
)

// Frame は1枚のキャプチャフレームを表す
// 生成後は不変であり、所有権はステージ間（取得→キュー→処理）で移動する
type Frame struct {
	// Session はキャプチャセッションの識別子
	// 再接続のたびに新しいセッションIDが発行される
	Session string

	// Seq はセッション内で単調増加するシーケンス番号（1始まり）
	Seq uint64

	// Data はJPEGエンコード済みの画像データ
	Data []byte

	// CapturedAt はフレーム取得時刻
	CapturedAt time.Time
}

// Source は連続フレームを供給する動画源を統一するインターフェース
type Source interface {
	// Open はストリームへの接続を確立する
	Open(ctx context.Context) error

	// Read は次の1フレーム（JPEGバイト列）を取得する
	// ブロッキングは読み込みタイムアウトで有界。タイムアウト時は
	// StreamReadError を返し、呼び出し側が停止シグナルを確認できる
	Read(ctx context.Context) ([]byte, error)

	// Close はストリームを切断しリソースを解放する
	// 複数回呼び出しても安全
	Close() error

	// URL は接続先のソースURLを返す
	URL() string
}
