package pipeline

import (
	"sync"
	"sync/atomic"

	"monomi/internal/detect"
)

// ResultSink 検出結果の有界バッファ。
// キューと同じ最古破棄方針で、常に最新の結果を優先して保持する。
// ポーリング用に最後にプッシュされた結果への参照も保持する
type ResultSink struct {
	ch      chan *detect.Result
	dropped atomic.Uint64

	mu     sync.RWMutex
	latest *detect.Result
}

// NewResultSink 指定容量のシンクを生成する。
// capacityが0以下の場合はDefaultResultSinkCapacityを使う
func NewResultSink(capacity int) *ResultSink {
	if capacity <= 0 {
		capacity = DefaultResultSinkCapacity
	}
	return &ResultSink{
		ch: make(chan *detect.Result, capacity),
	}
}

// Push 結果を追加する。満杯の場合は最古の結果を破棄して追加し、
// 破棄が発生したかを返す
func (s *ResultSink) Push(result *detect.Result) bool {
	s.mu.Lock()
	s.latest = result
	s.mu.Unlock()

	evicted := false
	for {
		select {
		case s.ch <- result:
			return evicted
		default:
			select {
			case <-s.ch:
				s.dropped.Add(1)
				evicted = true
			default:
			}
		}
	}
}

// Latest 最後にプッシュされた結果を返す。結果が無い場合はnil
func (s *ResultSink) Latest() *detect.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Pop バッファ内の最古の結果を取り出す。空の場合はnil
func (s *ResultSink) Pop() *detect.Result {
	select {
	case r := <-s.ch:
		return r
	default:
		return nil
	}
}

// Len 現在のバッファ内の結果数を返す
func (s *ResultSink) Len() int {
	return len(s.ch)
}

// Capacity シンクの容量を返す
func (s *ResultSink) Capacity() int {
	return cap(s.ch)
}

// Dropped 破棄された結果の累計を返す
func (s *ResultSink) Dropped() uint64 {
	return s.dropped.Load()
}
