package camera

import (
	"sync/atomic"
	"time"
)

// FrameQueue は単一生産者・単一消費者向けの有界フレームキュー
// 満杯時は最古のフレームを破棄して新しいフレームを受け入れる（最新優先）
// リアルタイム映像では表示されない古いフレームに価値がないため、
// 完全性よりも鮮度を優先する
type FrameQueue struct {
	ch      chan *Frame
	dropped atomic.Uint64
}

// DefaultQueueCapacity はフレームキューのデフォルト容量
const DefaultQueueCapacity = 5

// NewFrameQueue は指定容量のFrameQueueを作成する
// capacityが0以下の場合はデフォルト容量を使用する
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &FrameQueue{
		ch: make(chan *Frame, capacity),
	}
}

// TryPush はフレームを非ブロッキングで投入する
// キューが満杯の場合は最古のフレームを破棄してから投入し、
// 破棄が発生したことを返す
func (q *FrameQueue) TryPush(frame *Frame) (evicted bool) {
	for {
		select {
		case q.ch <- frame:
			return evicted
		default:
			// 満杯の場合は最古のフレームを破棄
			select {
			case <-q.ch:
				q.dropped.Add(1)
				evicted = true
			default:
				// 消費側が先に取り出した場合は再試行のみ
			}
		}
	}
}

// Pop はフレームを取り出す
// タイムアウトまでにフレームが到着しない場合は ErrQueueTimeout を返す
// タイムアウトにより、消費側は取得が止まっていても停止シグナルを確認できる
func (q *FrameQueue) Pop(timeout time.Duration) (*Frame, error) {
	select {
	case frame := <-q.ch:
		return frame, nil
	case <-time.After(timeout):
		return nil, ErrQueueTimeout
	}
}

// Clear はキュー内の全フレームを破棄する
// 再接続で新しいセッションが始まる際に、旧セッションのフレームが
// 消費側へ漏れないようにするために使用する
func (q *FrameQueue) Clear() (removed int) {
	for {
		select {
		case <-q.ch:
			removed++
		default:
			return removed
		}
	}
}

// Len は現在のキュー長を返す
func (q *FrameQueue) Len() int {
	return len(q.ch)
}

// Capacity はキューの容量を返す
func (q *FrameQueue) Capacity() int {
	return cap(q.ch)
}

// Dropped は破棄されたフレームの累計数を返す
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}
