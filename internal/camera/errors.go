package camera

import (
	"errors"
	"fmt"
)

// ProbeReason は接続プローブの失敗原因を表す
type ProbeReason string

const (
	// ReasonMalformedURL はURLの形式が不正
	ReasonMalformedURL ProbeReason = "malformed_url"
	// ReasonTimeout は接続タイムアウト
	ReasonTimeout ProbeReason = "timeout"
	// ReasonRefused は接続拒否（ポートが閉じている）
	ReasonRefused ProbeReason = "refused"
	// ReasonUnreachable はホスト不達（名前解決失敗・経路なし）
	ReasonUnreachable ProbeReason = "unreachable"
)

// Guidance は失敗原因に応じた対処のヒントを返す
func (r ProbeReason) Guidance() string {
	switch r {
	case ReasonMalformedURL:
		return "URLの形式を確認してください（例: http://192.168.1.100:4747/video）"
	case ReasonTimeout:
		return "カメラ端末の電源とWi-Fi接続を確認してください"
	case ReasonRefused:
		return "カメラアプリが起動しているか、ポート番号が正しいか確認してください"
	case ReasonUnreachable:
		return "カメラ端末とサーバーが同一ネットワークにあるか確認してください"
	default:
		return ""
	}
}

// ConnectionError は接続プローブまたはストリーム接続の失敗を表す
type ConnectionError struct {
	URL    string
	Reason ProbeReason
	Err    error
}

// Error はエラーメッセージを返す
func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("カメラへの接続に失敗 (%s): %s: %v", e.Reason, e.URL, e.Err)
	}
	return fmt.Sprintf("カメラへの接続に失敗 (%s): %s", e.Reason, e.URL)
}

// Unwrap はラップされたエラーを返す
func (e *ConnectionError) Unwrap() error { return e.Err }

// StreamReadError はセッション中の読み取り・デコード失敗を表す
// 取得ループのリトライ/バックオフ機構がローカルに処理する
type StreamReadError struct {
	URL string
	Op  string // "read", "decode", "connect" など
	Err error
}

// Error はエラーメッセージを返す
func (e *StreamReadError) Error() string {
	return fmt.Sprintf("ストリーム読み取りに失敗 (%s): %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap はラップされたエラーを返す
func (e *StreamReadError) Unwrap() error { return e.Err }

// Timeout は読み取りタイムアウトによる失敗かどうかを返す
func (e *StreamReadError) Timeout() bool {
	return errors.Is(e.Err, ErrReadTimeout)
}

// ResourceError はカメラリソースの取得失敗を表す致命的エラー
type ResourceError struct {
	URL string
	Err error
}

// Error はエラーメッセージを返す
func (e *ResourceError) Error() string {
	return fmt.Sprintf("カメラリソースが利用できません: %s: %v", e.URL, e.Err)
}

// Unwrap はラップされたエラーを返す
func (e *ResourceError) Unwrap() error { return e.Err }

// ErrReadTimeout は読み取りタイムアウトを表すセンチネルエラー
var ErrReadTimeout = errors.New("フレーム読み取りがタイムアウトしました")

// ErrSourceClosed はクローズ済みソースへの操作を表すセンチネルエラー
var ErrSourceClosed = errors.New("ソースは既にクローズされています")

// ErrQueueTimeout はキューからの取り出しタイムアウトを表すセンチネルエラー
var ErrQueueTimeout = errors.New("キューからの取り出しがタイムアウトしました")
