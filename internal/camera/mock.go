package camera

import (
	"context"
	"sync"
	"time"
)

// MockSource はテスト用のモックSource実装
// 失敗回数や読み取り遅延をスクリプトできる
type MockSource struct {
	mu sync.Mutex

	url    string
	frames [][]byte
	idx    int

	// テスト制御用
	failOpens int           // 失敗させるOpen回数
	failReads int           // 失敗させるRead回数
	readDelay time.Duration // 各Readの遅延

	openCount  int
	readCount  int
	closeCount int
	closed     bool
}

// NewMockSource は新しいMockSourceを作成する
// フレームが指定されない場合は最小のダミーJPEGを繰り返し返す
func NewMockSource(url string, frames ...[]byte) *MockSource {
	if len(frames) == 0 {
		frames = [][]byte{{0xFF, 0xD8, 0xFF, 0xD9}}
	}
	return &MockSource{url: url, frames: frames}
}

// SetFailOpens はテスト用にOpen失敗回数を設定する
func (m *MockSource) SetFailOpens(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOpens = n
}

// SetFailReads はテスト用にRead失敗回数を設定する
func (m *MockSource) SetFailReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = n
}

// SetReadDelay はテスト用に各Readの遅延を設定する
func (m *MockSource) SetReadDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readDelay = d
}

// URL は接続先のソースURLを返す
func (m *MockSource) URL() string {
	return m.url
}

// Open はモックストリームを開く
func (m *MockSource) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openCount++
	if m.failOpens > 0 {
		m.failOpens--
		return &StreamReadError{URL: m.url, Op: "connect", Err: ErrReadTimeout}
	}
	m.closed = false
	return nil
}

// Read は次のフレームを返す
func (m *MockSource) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	delay := m.readDelay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSourceClosed
	}

	m.readCount++
	if m.failReads > 0 {
		m.failReads--
		return nil, &StreamReadError{URL: m.url, Op: "read", Err: ErrReadTimeout}
	}

	frame := m.frames[m.idx%len(m.frames)]
	m.idx++
	return frame, nil
}

// Close はモックストリームを閉じる
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	m.closed = true
	return nil
}

// OpenCount はOpenが呼ばれた回数を返す
func (m *MockSource) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCount
}

// ReadCount はReadが呼ばれた回数を返す
func (m *MockSource) ReadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCount
}

// CloseCount はCloseが呼ばれた回数を返す
func (m *MockSource) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// IsClosed はクローズ済みかどうかを返す
func (m *MockSource) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
