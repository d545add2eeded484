package pipeline

import (
	"fmt"
	"time"
)

// デフォルト値
const (
	DefaultFrameQueueCapacity   = 5
	DefaultResultSinkCapacity   = 5
	DefaultTargetFPS            = 15
	DefaultReadFailureThreshold = 3
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultReconnectMaxAttempts = 5
	DefaultProbeTimeout         = 5 * time.Second
	DefaultPopTimeout           = 200 * time.Millisecond
	DefaultJoinTimeout          = 5 * time.Second
	DefaultStatsWindow          = 5 * time.Second
)

// Config パイプラインの動作設定
type Config struct {
	// FrameQueueCapacity 取得キューの容量。満杯時は最古フレームを破棄する
	FrameQueueCapacity int `yaml:"frame_queue_capacity"`
	// ResultSinkCapacity 結果シンクの容量。破棄方針はキューと同じ
	ResultSinkCapacity int `yaml:"result_sink_capacity"`
	// TargetFPS 取得レートの上限。0以下は無制限
	TargetFPS int `yaml:"target_fps"`
	// ReadFailureThreshold 再接続に入るまでの連続読み取り失敗回数
	ReadFailureThreshold int `yaml:"read_failure_threshold"`
	// ReconnectBaseDelay バックオフの基準遅延
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	// ReconnectMaxDelay バックオフ遅延の上限
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`
	// ReconnectMaxAttempts 再接続試行の予算。使い切ると Failed になる
	ReconnectMaxAttempts int `yaml:"reconnect_max_attempts"`
	// ProbeTimeout 起動前プローブのタイムアウト
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// PopTimeout Consumerがキュー取り出しで待つ最大時間
	PopTimeout time.Duration `yaml:"pop_timeout"`
	// JoinTimeout 停止時にゴルーチン終了を待つ最大時間
	JoinTimeout time.Duration `yaml:"join_timeout"`
	// StatsWindow FPS算出に使うスライディングウィンドウ幅
	StatsWindow time.Duration `yaml:"stats_window"`
}

// DefaultConfig デフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		FrameQueueCapacity:   DefaultFrameQueueCapacity,
		ResultSinkCapacity:   DefaultResultSinkCapacity,
		TargetFPS:            DefaultTargetFPS,
		ReadFailureThreshold: DefaultReadFailureThreshold,
		ReconnectBaseDelay:   DefaultReconnectBaseDelay,
		ReconnectMaxDelay:    DefaultReconnectMaxDelay,
		ReconnectMaxAttempts: DefaultReconnectMaxAttempts,
		ProbeTimeout:         DefaultProbeTimeout,
		PopTimeout:           DefaultPopTimeout,
		JoinTimeout:          DefaultJoinTimeout,
		StatsWindow:          DefaultStatsWindow,
	}
}

// Validate 設定値を検証する
func (c Config) Validate() error {
	if c.FrameQueueCapacity <= 0 {
		return fmt.Errorf("frame_queue_capacityは正の値が必要です: %d", c.FrameQueueCapacity)
	}
	if c.ResultSinkCapacity <= 0 {
		return fmt.Errorf("result_sink_capacityは正の値が必要です: %d", c.ResultSinkCapacity)
	}
	if c.ReadFailureThreshold <= 0 {
		return fmt.Errorf("read_failure_thresholdは正の値が必要です: %d", c.ReadFailureThreshold)
	}
	if c.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("reconnect_base_delayは正の値が必要です: %s", c.ReconnectBaseDelay)
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		return fmt.Errorf("reconnect_max_delayは基準遅延以上が必要です: %s < %s",
			c.ReconnectMaxDelay, c.ReconnectBaseDelay)
	}
	if c.ReconnectMaxAttempts <= 0 {
		return fmt.Errorf("reconnect_max_attemptsは正の値が必要です: %d", c.ReconnectMaxAttempts)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeoutは正の値が必要です: %s", c.ProbeTimeout)
	}
	if c.PopTimeout <= 0 {
		return fmt.Errorf("pop_timeoutは正の値が必要です: %s", c.PopTimeout)
	}
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("join_timeoutは正の値が必要です: %s", c.JoinTimeout)
	}
	if c.StatsWindow <= 0 {
		return fmt.Errorf("stats_windowは正の値が必要です: %s", c.StatsWindow)
	}
	return nil
}

// backoffDelay n回目（1始まり）の再接続試行前に待つ遅延を返す。
// 基準遅延 × 2^(n-1) を上限でキャップする
func (c Config) backoffDelay(attempt int) time.Duration {
	delay := c.ReconnectBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.ReconnectMaxDelay {
			return c.ReconnectMaxDelay
		}
	}
	if delay > c.ReconnectMaxDelay {
		return c.ReconnectMaxDelay
	}
	return delay
}
