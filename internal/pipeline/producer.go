package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"monomi/internal/camera"
)

// Producer フレーム取得ループ。カメラセッションを所有し、
// 読み取り失敗の監視・指数バックオフ付き再接続・Failedへの遷移を担う
type Producer struct {
	cfg     Config
	factory *camera.SourceFactory
	url     string
	queue   *camera.FrameQueue
	stats   *Stats

	// onFailed 再接続予算の枯渇時に呼ばれる通知
	onFailed func()

	mu       sync.Mutex
	source   camera.Source
	session  string
	seq      uint64
	connStat camera.ConnectionState
}

func newProducer(cfg Config, factory *camera.SourceFactory, url string,
	queue *camera.FrameQueue, stats *Stats, onFailed func()) *Producer {
	return &Producer{
		cfg:      cfg,
		factory:  factory,
		url:      url,
		queue:    queue,
		stats:    stats,
		onFailed: onFailed,
		connStat: camera.StateDisconnected,
	}
}

// ConnectionState 現在の接続状態を返す
func (p *Producer) ConnectionState() camera.ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connStat
}

// Session 現在のセッションIDを返す。未接続の場合は空文字列
func (p *Producer) Session() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Producer) setConnState(s camera.ConnectionState) {
	p.mu.Lock()
	p.connStat = s
	p.mu.Unlock()
}

// closeSource 現在のソースを解放する。何度呼んでも安全
func (p *Producer) closeSource() {
	p.mu.Lock()
	source := p.source
	p.source = nil
	p.mu.Unlock()

	if source != nil {
		if err := source.Close(); err != nil {
			log.Printf("ソースのクローズに失敗しました: %v", err)
		}
	}
}

// beginSession 新しいセッションを開始する。
// セッションIDを発行し、シーケンス番号をリセットし、
// 旧セッションの滞留フレームをキューから一掃する
func (p *Producer) beginSession(source camera.Source) {
	removed := p.queue.Clear()
	if removed > 0 {
		log.Printf("旧セッションの滞留フレームを破棄しました: %d枚", removed)
	}

	p.mu.Lock()
	p.source = source
	p.session = uuid.New().String()
	p.seq = 0
	p.connStat = camera.StateConnected
	session := p.session
	p.mu.Unlock()

	log.Printf("キャプチャセッションを開始しました: session=%s url=%s", session, p.url)
}

// run 取得ループの本体。停止シグナルか終端状態まで動き続ける。
// 終了時には必ずソースを解放する
func (p *Producer) run(ctx context.Context, stopCh <-chan struct{}) {
	defer p.closeSource()

	source, ok := p.connect(ctx, stopCh, true)
	if !ok {
		return
	}
	p.beginSession(source)

	interval := time.Duration(0)
	if p.cfg.TargetFPS > 0 {
		interval = time.Second / time.Duration(p.cfg.TargetFPS)
	}

	failures := 0
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		start := time.Now()
		data, err := source.Read(ctx)
		if err != nil {
			select {
			case <-stopCh:
				return
			default:
			}

			failures++
			log.Printf("フレーム読み取りに失敗しました（連続%d回）: %v", failures, err)
			if failures < p.cfg.ReadFailureThreshold {
				continue
			}

			// 連続失敗がしきい値に達したので再接続に入る
			p.closeSource()
			source, ok = p.connect(ctx, stopCh, false)
			if !ok {
				return
			}
			p.beginSession(source)
			p.stats.RecordReconnect()
			failures = 0
			continue
		}
		failures = 0

		frame := p.stampFrame(data, start)
		if evicted := p.queue.TryPush(frame); evicted {
			p.stats.RecordCaptureDrop(start)
		}
		p.stats.RecordCapture(start)

		// 取得レートの上限を守る
		if interval > 0 {
			if wait := interval - time.Since(start); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-stopCh:
					timer.Stop()
					return
				case <-timer.C:
				}
			}
		}
	}
}

// stampFrame 取得データにセッションIDとシーケンス番号を刻印する
func (p *Producer) stampFrame(data []byte, at time.Time) *camera.Frame {
	p.mu.Lock()
	p.seq++
	frame := &camera.Frame{
		Session:    p.session,
		Seq:        p.seq,
		Data:       data,
		CapturedAt: at,
	}
	p.mu.Unlock()
	return frame
}

// connect 接続が確立するまで指数バックオフで試行する。
// initialがtrueの場合は最初の1回を遅延なしで試す。
// 成功したソースと true を返す。停止シグナルまたは予算の枯渇時は
// (nil, false) を返し、予算枯渇の場合は Failed に遷移して通知する
func (p *Producer) connect(ctx context.Context, stopCh <-chan struct{}, initial bool) (camera.Source, bool) {
	if initial {
		source, err := p.openSource(ctx)
		if err == nil {
			return source, true
		}
		log.Printf("ソースへの接続に失敗しました: %v", err)
	}

	p.setConnState(camera.StateReconnecting)
	for attempt := 1; attempt <= p.cfg.ReconnectMaxAttempts; attempt++ {
		delay := p.cfg.backoffDelay(attempt)
		log.Printf("再接続を待機します: attempt=%d/%d delay=%s",
			attempt, p.cfg.ReconnectMaxAttempts, delay)

		timer := time.NewTimer(delay)
		select {
		case <-stopCh:
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		source, err := p.openSource(ctx)
		if err != nil {
			log.Printf("再接続に失敗しました: attempt=%d/%d: %v",
				attempt, p.cfg.ReconnectMaxAttempts, err)
			continue
		}
		return source, true
	}

	// 予算を使い切ったので終端状態に遷移する
	log.Printf("再接続予算を使い切りました: url=%s attempts=%d", p.url, p.cfg.ReconnectMaxAttempts)
	p.setConnState(camera.StateFailed)
	if p.onFailed != nil {
		p.onFailed()
	}
	return nil, false
}

// openSource ファクトリーからソースを作成して開く
func (p *Producer) openSource(ctx context.Context) (camera.Source, error) {
	source, err := p.factory.CreateSource(camera.SourceConfig{
		URL:         p.url,
		ReadTimeout: camera.DefaultReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := source.Open(ctx); err != nil {
		return nil, err
	}
	return source, nil
}
