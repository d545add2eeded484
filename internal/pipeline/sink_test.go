package pipeline

import (
	"testing"

	"monomi/internal/detect"
)

func makeResult(seq uint64) *detect.Result {
	return &detect.Result{Session: "test-session", Seq: seq}
}

func TestResultSinkPushAndLatest(t *testing.T) {
	sink := NewResultSink(3)

	if sink.Latest() != nil {
		t.Error("結果をプッシュする前はnilが期待されます")
	}

	for seq := uint64(1); seq <= 3; seq++ {
		if evicted := sink.Push(makeResult(seq)); evicted {
			t.Errorf("容量内のプッシュで破棄が発生しました: seq=%d", seq)
		}
	}

	latest := sink.Latest()
	if latest == nil || latest.Seq != 3 {
		t.Errorf("Latest()のSeq = %v, 期待値 3", latest)
	}
}

func TestResultSinkDropOldest(t *testing.T) {
	sink := NewResultSink(3)

	// 容量3に5件プッシュすると最古の2件が破棄される
	for seq := uint64(1); seq <= 5; seq++ {
		sink.Push(makeResult(seq))
	}

	if got := sink.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, 期待値 2", got)
	}

	// 残るのは新しい3件（seq 3, 4, 5）
	wantSeqs := []uint64{3, 4, 5}
	for _, want := range wantSeqs {
		r := sink.Pop()
		if r == nil {
			t.Fatalf("Pop()がnilを返しました: 期待Seq=%d", want)
		}
		if r.Seq != want {
			t.Errorf("Pop()のSeq = %d, 期待値 %d", r.Seq, want)
		}
	}

	if r := sink.Pop(); r != nil {
		t.Errorf("空のシンクのPop()はnilが期待されますが、Seq=%dが返されました", r.Seq)
	}

	// 破棄されても最新の参照は保持される
	latest := sink.Latest()
	if latest == nil || latest.Seq != 5 {
		t.Errorf("Latest()のSeq = %v, 期待値 5", latest)
	}
}

func TestResultSinkDefaultCapacity(t *testing.T) {
	sink := NewResultSink(0)
	if got := sink.Capacity(); got != DefaultResultSinkCapacity {
		t.Errorf("Capacity() = %d, 期待値 %d", got, DefaultResultSinkCapacity)
	}
}
