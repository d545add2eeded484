package pipeline

// State パイプラインのライフサイクル状態
type State string

const (
	// StateIdle 未起動または停止済み
	StateIdle State = "idle"
	// StateStarting プローブと起動処理の最中
	StateStarting State = "starting"
	// StateRunning 両ループが稼働中
	StateRunning State = "running"
	// StateStopping 停止処理の最中
	StateStopping State = "stopping"
	// StateFailed 再接続予算を使い切った終端状態
	StateFailed State = "failed"
)

// String 状態の文字列表現を返す
func (s State) String() string {
	return string(s)
}
