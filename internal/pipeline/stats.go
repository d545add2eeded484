package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// レイテンシ指数移動平均の平滑化係数
const latencyEMAAlpha = 0.2

// Stats 各ステージの統計を集計する。
// FPSと破棄レートはスライディングウィンドウ、累計はアトミックカウンタ、
// レイテンシは指数移動平均で保持する
type Stats struct {
	window time.Duration

	capturedTotal   atomic.Uint64
	processedTotal  atomic.Uint64
	captureDrops    atomic.Uint64
	resultDrops     atomic.Uint64
	detectionErrors atomic.Uint64
	reconnects      atomic.Uint64

	mu               sync.Mutex
	captureTimes     []time.Time
	processTimes     []time.Time
	captureDropTimes []time.Time
	latencyEMA       float64
	hasLatency       bool
}

// Snapshot ある時点の統計値。JSONでそのまま公開できる形にしている
type Snapshot struct {
	CaptureFPS         float64 `json:"capture_fps"`
	ProcessFPS         float64 `json:"process_fps"`
	CapturedTotal      uint64  `json:"captured_total"`
	ProcessedTotal     uint64  `json:"processed_total"`
	DroppedTotal       uint64  `json:"dropped_total"`
	DroppedPerSecond   float64 `json:"dropped_per_second"`
	ResultDroppedTotal uint64  `json:"result_dropped_total"`
	DetectionErrors    uint64  `json:"detection_errors"`
	Reconnects         uint64  `json:"reconnects"`
	AvgLatencyMillis   float64 `json:"avg_latency_ms"`
	QueueDepth         int     `json:"queue_depth"`
	ResultDepth        int     `json:"result_depth"`
}

// NewStats 指定ウィンドウ幅の集計器を生成する。
// windowが0以下の場合はDefaultStatsWindowを使う
func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = DefaultStatsWindow
	}
	return &Stats{window: window}
}

// RecordCapture フレーム取得成功を記録する
func (s *Stats) RecordCapture(at time.Time) {
	s.capturedTotal.Add(1)
	s.mu.Lock()
	s.captureTimes = pruneAppend(s.captureTimes, at, s.window)
	s.mu.Unlock()
}

// RecordCaptureDrop キュー満杯による破棄を記録する
func (s *Stats) RecordCaptureDrop(at time.Time) {
	s.captureDrops.Add(1)
	s.mu.Lock()
	s.captureDropTimes = pruneAppend(s.captureDropTimes, at, s.window)
	s.mu.Unlock()
}

// RecordProcess 推論成功を記録する
func (s *Stats) RecordProcess(at time.Time, latency time.Duration) {
	s.processedTotal.Add(1)
	s.mu.Lock()
	s.processTimes = pruneAppend(s.processTimes, at, s.window)
	ms := float64(latency) / float64(time.Millisecond)
	if s.hasLatency {
		s.latencyEMA = latencyEMAAlpha*ms + (1-latencyEMAAlpha)*s.latencyEMA
	} else {
		s.latencyEMA = ms
		s.hasLatency = true
	}
	s.mu.Unlock()
}

// RecordResultDrop シンク満杯による結果破棄を記録する
func (s *Stats) RecordResultDrop() {
	s.resultDrops.Add(1)
}

// RecordDetectionError 推論失敗を記録する
func (s *Stats) RecordDetectionError() {
	s.detectionErrors.Add(1)
}

// RecordReconnect 再接続成功を記録する
func (s *Stats) RecordReconnect() {
	s.reconnects.Add(1)
}

// SnapshotAt 指定時刻を基準にした統計値を返す
func (s *Stats) SnapshotAt(now time.Time) Snapshot {
	s.mu.Lock()
	s.captureTimes = prune(s.captureTimes, now, s.window)
	s.processTimes = prune(s.processTimes, now, s.window)
	s.captureDropTimes = prune(s.captureDropTimes, now, s.window)
	captureN := len(s.captureTimes)
	processN := len(s.processTimes)
	dropN := len(s.captureDropTimes)
	latency := s.latencyEMA
	s.mu.Unlock()

	secs := s.window.Seconds()
	return Snapshot{
		CaptureFPS:         float64(captureN) / secs,
		ProcessFPS:         float64(processN) / secs,
		CapturedTotal:      s.capturedTotal.Load(),
		ProcessedTotal:     s.processedTotal.Load(),
		DroppedTotal:       s.captureDrops.Load(),
		DroppedPerSecond:   float64(dropN) / secs,
		ResultDroppedTotal: s.resultDrops.Load(),
		DetectionErrors:    s.detectionErrors.Load(),
		Reconnects:         s.reconnects.Load(),
		AvgLatencyMillis:   latency,
	}
}

// Snapshot 現在時刻を基準にした統計値を返す
func (s *Stats) Snapshot() Snapshot {
	return s.SnapshotAt(time.Now())
}

// pruneAppend ウィンドウ外の時刻を落としてから追記する
func pruneAppend(times []time.Time, at time.Time, window time.Duration) []time.Time {
	return append(prune(times, at, window), at)
}

// prune ウィンドウ外の時刻を先頭から落とす
func prune(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}
