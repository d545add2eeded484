package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"monomi/internal/camera"
	"monomi/internal/detect"
)

// Pipeline 取得ループと推論ループのライフサイクルを制御する。
// Start/Stopは冪等であり、どの停止経路でもカメラリソースは
// ちょうど1回だけ解放される
type Pipeline struct {
	cfg      Config
	url      string
	factory  *camera.SourceFactory
	prober   camera.Prober
	detector detect.Detector

	mu       sync.Mutex
	state    State
	stopCh   chan struct{}
	done     chan struct{}
	queue    *camera.FrameQueue
	sink     *ResultSink
	stats    *Stats
	producer *Producer
}

// NewPipeline 新しいパイプラインを作成する
func NewPipeline(cfg Config, sourceURL string, factory *camera.SourceFactory,
	prober camera.Prober, detector detect.Detector) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		url:      sourceURL,
		factory:  factory,
		prober:   prober,
		detector: detector,
		state:    StateIdle,
	}
}

// Start パイプラインを起動する。接続プローブが失敗した場合は
// 何も起動せずエラーを返す。既に稼働中の場合もエラーを返す
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case StateIdle:
		// 起動できる
	case StateFailed:
		p.mu.Unlock()
		return fmt.Errorf("パイプラインは失敗状態です。Stop()でリセットしてください")
	default:
		p.mu.Unlock()
		return fmt.Errorf("パイプラインは既に稼働中です: state=%s", p.state)
	}
	p.state = StateStarting
	p.mu.Unlock()

	// 起動前に到達性を確認する。時間のかかる初期化より先に
	// ユーザーへ設定ミスを知らせるための短いプローブ
	if err := p.prober.Probe(ctx, p.url, p.cfg.ProbeTimeout); err != nil {
		p.mu.Lock()
		if p.state == StateStarting {
			p.state = StateIdle
		}
		p.mu.Unlock()
		return fmt.Errorf("接続プローブに失敗しました: %w", err)
	}

	p.mu.Lock()
	// プローブ中にStopが割り込んだ場合はループを起動しない
	if p.state != StateStarting {
		p.mu.Unlock()
		return fmt.Errorf("起動が中断されました: state=%s", p.state)
	}
	p.queue = camera.NewFrameQueue(p.cfg.FrameQueueCapacity)
	p.sink = NewResultSink(p.cfg.ResultSinkCapacity)
	p.stats = NewStats(p.cfg.StatsWindow)
	p.producer = newProducer(p.cfg, p.factory, p.url, p.queue, p.stats, p.markFailed)
	consumer := newConsumer(p.cfg, p.queue, p.sink, p.detector, p.stats)

	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	stopCh := p.stopCh
	done := p.done
	producer := p.producer
	// ループ開始前にRunningへ遷移しておく。Producerが即座に
	// 予算を使い切ってもFailedへの遷移を取りこぼさないため
	p.state = StateRunning
	p.mu.Unlock()

	// ループの寿命は呼び出し側のctxではなくstopChで管理する
	runCtx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		producer.run(runCtx, stopCh)
	}()
	go func() {
		defer wg.Done()
		consumer.run(runCtx, stopCh)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	log.Printf("パイプラインを起動しました: url=%s", p.url)
	return nil
}

// Stop パイプラインを停止する。停止済みの場合は何もしない。
// ゴルーチンの終了待ちはJoinTimeoutで有界であり、
// タイムアウトしてもカメラリソースの解放は行われる
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case StateIdle, StateStopping:
		p.mu.Unlock()
		return nil
	case StateStarting:
		// プローブ中でループはまだ起動していない。状態を戻すだけで
		// よい。進行中のStartはこの遷移を検知して起動を中止する。
		// stopCh/doneは前回実行の残骸の可能性があるため触らない
		p.state = StateIdle
		p.mu.Unlock()
		log.Printf("起動中のパイプラインを停止しました: url=%s", p.url)
		return nil
	}
	p.state = StateStopping
	stopCh := p.stopCh
	done := p.done
	producer := p.producer
	p.stopCh = nil
	p.done = nil
	p.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}

	var joinErr error
	if done != nil {
		timer := time.NewTimer(p.cfg.JoinTimeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			joinErr = fmt.Errorf("ゴルーチンの終了待ちがタイムアウトしました: %s", p.cfg.JoinTimeout)
		case <-ctx.Done():
			joinErr = fmt.Errorf("停止が中断されました: %w", ctx.Err())
		}
	}

	// どの経路でもソースは解放する。closeSourceは冪等なので
	// Producer自身のdeferと重なっても安全
	if producer != nil {
		producer.closeSource()
	}

	p.mu.Lock()
	p.state = StateIdle
	p.mu.Unlock()

	log.Printf("パイプラインを停止しました: url=%s", p.url)
	return joinErr
}

// markFailed 再接続予算の枯渇をProducerから受け取り、
// 稼働中であれば終端状態に遷移する
func (p *Pipeline) markFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRunning {
		p.state = StateFailed
		log.Printf("パイプラインは失敗状態に遷移しました: url=%s", p.url)
	}
}

// State 現在のライフサイクル状態を返す
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ConnectionState カメラ接続の状態を返す。
// 起動処理中（プローブ実行中）はProbingを返す
func (p *Pipeline) ConnectionState() camera.ConnectionState {
	p.mu.Lock()
	state := p.state
	producer := p.producer
	p.mu.Unlock()

	if state == StateStarting {
		return camera.StateProbing
	}
	if producer == nil {
		return camera.StateDisconnected
	}
	return producer.ConnectionState()
}

// Session 現在のキャプチャセッションIDを返す。未接続の場合は空文字列
func (p *Pipeline) Session() string {
	p.mu.Lock()
	producer := p.producer
	p.mu.Unlock()
	if producer == nil {
		return ""
	}
	return producer.Session()
}

// SourceURL 接続先のソースURLを返す
func (p *Pipeline) SourceURL() string {
	return p.url
}

// Snapshot 現在の統計値を返す。キューとシンクの深さも併せて埋める
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	stats := p.stats
	queue := p.queue
	sink := p.sink
	p.mu.Unlock()

	if stats == nil {
		return Snapshot{}
	}
	snap := stats.Snapshot()
	if queue != nil {
		snap.QueueDepth = queue.Len()
	}
	if sink != nil {
		snap.ResultDepth = sink.Len()
	}
	return snap
}

// LatestResult 最新の検出結果を返す。結果がまだ無い場合はnil
func (p *Pipeline) LatestResult() *detect.Result {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.Latest()
}
