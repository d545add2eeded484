package pipeline

import (
	"math"
	"testing"
	"time"
)

func TestStatsCaptureFPS(t *testing.T) {
	stats := NewStats(5 * time.Second)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// 5秒のウィンドウに50枚 → 10fps
	for i := 0; i < 50; i++ {
		stats.RecordCapture(base.Add(time.Duration(i) * 100 * time.Millisecond))
	}

	snap := stats.SnapshotAt(base.Add(5 * time.Second))
	if math.Abs(snap.CaptureFPS-10.0) > 0.3 {
		t.Errorf("CaptureFPS = %.2f, 期待値 10.0前後", snap.CaptureFPS)
	}
	if snap.CapturedTotal != 50 {
		t.Errorf("CapturedTotal = %d, 期待値 50", snap.CapturedTotal)
	}
}

func TestStatsWindowPruning(t *testing.T) {
	stats := NewStats(5 * time.Second)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		stats.RecordCapture(base.Add(time.Duration(i) * 100 * time.Millisecond))
	}

	// ウィンドウが完全に過ぎるとFPSは0になるが累計は残る
	snap := stats.SnapshotAt(base.Add(1 * time.Minute))
	if snap.CaptureFPS != 0 {
		t.Errorf("ウィンドウ経過後のCaptureFPS = %.2f, 期待値 0", snap.CaptureFPS)
	}
	if snap.CapturedTotal != 10 {
		t.Errorf("CapturedTotal = %d, 期待値 10", snap.CapturedTotal)
	}
}

func TestStatsLatencyEMA(t *testing.T) {
	stats := NewStats(5 * time.Second)
	now := time.Now()

	// 初回はそのまま採用される
	stats.RecordProcess(now, 100*time.Millisecond)
	snap := stats.SnapshotAt(now)
	if math.Abs(snap.AvgLatencyMillis-100.0) > 0.01 {
		t.Errorf("初回のAvgLatencyMillis = %.2f, 期待値 100.0", snap.AvgLatencyMillis)
	}

	// 2回目以降は指数移動平均: 0.2*200 + 0.8*100 = 120
	stats.RecordProcess(now, 200*time.Millisecond)
	snap = stats.SnapshotAt(now)
	if math.Abs(snap.AvgLatencyMillis-120.0) > 0.01 {
		t.Errorf("AvgLatencyMillis = %.2f, 期待値 120.0", snap.AvgLatencyMillis)
	}
}

func TestStatsCounters(t *testing.T) {
	stats := NewStats(5 * time.Second)
	now := time.Now()

	stats.RecordCaptureDrop(now)
	stats.RecordCaptureDrop(now)
	stats.RecordResultDrop()
	stats.RecordDetectionError()
	stats.RecordReconnect()

	snap := stats.SnapshotAt(now)
	if snap.DroppedTotal != 2 {
		t.Errorf("DroppedTotal = %d, 期待値 2", snap.DroppedTotal)
	}
	if snap.ResultDroppedTotal != 1 {
		t.Errorf("ResultDroppedTotal = %d, 期待値 1", snap.ResultDroppedTotal)
	}
	if snap.DetectionErrors != 1 {
		t.Errorf("DetectionErrors = %d, 期待値 1", snap.DetectionErrors)
	}
	if snap.Reconnects != 1 {
		t.Errorf("Reconnects = %d, 期待値 1", snap.Reconnects)
	}
	if snap.DroppedPerSecond <= 0 {
		t.Errorf("DroppedPerSecond = %.2f, 正の値が期待されます", snap.DroppedPerSecond)
	}
}
