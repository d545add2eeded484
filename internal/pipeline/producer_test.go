package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"monomi/internal/camera"
)

// fastTestConfig はテスト向けに遅延を詰めた設定を返す
func fastTestConfig() Config {
	cfg := DefaultConfig()
	cfg.TargetFPS = 100
	cfg.PopTimeout = 10 * time.Millisecond
	cfg.ReconnectBaseDelay = 1 * time.Millisecond
	cfg.ReconnectMaxDelay = 5 * time.Millisecond
	cfg.ReconnectMaxAttempts = 3
	cfg.JoinTimeout = 2 * time.Second
	return cfg
}

// mockFactory はmockスキームで固定のソースを返すファクトリーを作る
func mockFactory(source camera.Source) *camera.SourceFactory {
	factory := camera.NewSourceFactory()
	factory.Register("mock", func(_ camera.SourceConfig) (camera.Source, error) {
		return source, nil
	})
	return factory
}

// waitFor は条件が満たされるまでポーリングする
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("条件が時間内に満たされませんでした: %s", msg)
}

func TestProducerReconnectAfterReadFailures(t *testing.T) {
	cfg := fastTestConfig()
	cfg.ReadFailureThreshold = 3

	source := camera.NewMockSource("mock://camera")
	// 最初の3回の読み取りを失敗させ、しきい値到達で再接続させる
	source.SetFailReads(3)

	queue := camera.NewFrameQueue(100)
	stats := NewStats(cfg.StatsWindow)
	producer := newProducer(cfg, mockFactory(source), "mock://camera", queue, stats, nil)

	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		producer.run(context.Background(), stopCh)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool {
		return stats.Snapshot().Reconnects == 1 && queue.Len() > 0
	}, "再接続後にフレームが流れること")

	close(stopCh)
	<-done

	// 初回接続 + 再接続で2回開かれている
	if got := source.OpenCount(); got != 2 {
		t.Errorf("OpenCount() = %d, 期待値 2", got)
	}

	// 再接続でシーケンス番号はリセットされ、キューは一掃されているので
	// 最初のフレームは新セッションのSeq=1になる
	frame, err := queue.Pop(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("キューからフレームを取得できませんでした: %v", err)
	}
	if frame.Seq != 1 {
		t.Errorf("再接続後の先頭フレームのSeq = %d, 期待値 1", frame.Seq)
	}
	if frame.Session == "" || frame.Session != producer.Session() {
		t.Errorf("フレームのセッションIDが現在のセッションと一致しません: %q != %q",
			frame.Session, producer.Session())
	}

	if !source.IsClosed() {
		t.Error("停止後にソースが解放されていません")
	}
}

func TestProducerFailsAfterBudgetExhausted(t *testing.T) {
	cfg := fastTestConfig()

	source := camera.NewMockSource("mock://camera")
	// 全てのOpenを失敗させて予算を使い切らせる
	source.SetFailOpens(100)

	queue := camera.NewFrameQueue(cfg.FrameQueueCapacity)
	stats := NewStats(cfg.StatsWindow)

	var failed atomic.Bool
	producer := newProducer(cfg, mockFactory(source), "mock://camera", queue, stats,
		func() { failed.Store(true) })

	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		producer.run(context.Background(), stopCh)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("予算枯渇後にrunが終了しませんでした")
	}

	if !failed.Load() {
		t.Error("予算枯渇の通知が呼ばれていません")
	}
	if got := producer.ConnectionState(); got != camera.StateFailed {
		t.Errorf("ConnectionState() = %s, 期待値 %s", got, camera.StateFailed)
	}

	// 初回接続1回 + 再接続予算ちょうど3回
	if got := source.OpenCount(); got != 1+cfg.ReconnectMaxAttempts {
		t.Errorf("OpenCount() = %d, 期待値 %d", got, 1+cfg.ReconnectMaxAttempts)
	}
}

func TestProducerStopDuringBackoff(t *testing.T) {
	cfg := fastTestConfig()
	// バックオフ中の停止を検証するために長い遅延を使う
	cfg.ReconnectBaseDelay = 30 * time.Second
	cfg.ReconnectMaxDelay = 30 * time.Second

	source := camera.NewMockSource("mock://camera")
	source.SetFailOpens(100)

	queue := camera.NewFrameQueue(cfg.FrameQueueCapacity)
	stats := NewStats(cfg.StatsWindow)
	producer := newProducer(cfg, mockFactory(source), "mock://camera", queue, stats, nil)

	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		producer.run(context.Background(), stopCh)
		close(done)
	}()

	// バックオフ待機に入るのを待ってから停止する
	waitFor(t, 2*time.Second, func() bool {
		return producer.ConnectionState() == camera.StateReconnecting
	}, "再接続待機に入ること")

	stopAt := time.Now()
	close(stopCh)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("バックオフ中の停止シグナルが観測されませんでした")
	}

	if elapsed := time.Since(stopAt); elapsed > 500*time.Millisecond {
		t.Errorf("停止までの時間が長すぎます: %s", elapsed)
	}
}
