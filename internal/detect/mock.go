package detect

import (
	"context"
	"sync"
	"time"
)

// MockDetector はテスト用のモックDetector実装
// 呼び出し回数ごとの失敗や推論遅延をスクリプトできる
type MockDetector struct {
	mu sync.Mutex

	detections []Detection
	latency    time.Duration

	// failCalls は失敗させる呼び出し番号（1始まり）
	failCalls map[int]bool

	callCount  int
	closeCount int
}

// NewMockDetector は新しいMockDetectorを作成する
func NewMockDetector(detections ...Detection) *MockDetector {
	if len(detections) == 0 {
		detections = []Detection{
			{Label: "person", Confidence: 0.9, Box: Box{X1: 10, Y1: 10, X2: 100, Y2: 200}},
		}
	}
	return &MockDetector{
		detections: detections,
		failCalls:  make(map[int]bool),
	}
}

// SetFailCall はテスト用に指定番号の呼び出しを失敗させる（1始まり）
func (m *MockDetector) SetFailCall(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCalls[n] = true
}

// SetLatency はテスト用に推論遅延を設定する
func (m *MockDetector) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Detect はスクリプトされた検出結果を返す
// アノテーション済みJPEGとして入力をそのまま返す
func (m *MockDetector) Detect(ctx context.Context, jpegData []byte) ([]Detection, []byte, error) {
	m.mu.Lock()
	m.callCount++
	call := m.callCount
	latency := m.latency
	fail := m.failCalls[call]
	detections := make([]Detection, len(m.detections))
	copy(detections, m.detections)
	m.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	if fail {
		return nil, nil, &DetectionError{Err: context.DeadlineExceeded}
	}

	return detections, jpegData, nil
}

// Close はモック検出器を解放する
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	return nil
}

// CallCount はDetectが呼ばれた回数を返す
func (m *MockDetector) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// CloseCount はCloseが呼ばれた回数を返す
func (m *MockDetector) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}
