package camera

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// MJPEGSource はMJPEG over HTTPストリームのSource実装
// 1本の長寿命HTTP接続から連続的にJPEGフレームを読み取る
// DroidCamやIP Webcamはこの方式で映像を配信する
type MJPEGSource struct {
	url         string
	readTimeout time.Duration
	client      *http.Client

	mu     sync.Mutex
	opened bool
	closed bool
	cancel context.CancelFunc

	// 読み取りゴルーチンからのフレーム・エラー受け渡し用
	frameCh chan []byte
	errCh   chan error
	wg      sync.WaitGroup
}

// DefaultReadTimeout はフレーム読み取りのデフォルトタイムアウト
const DefaultReadTimeout = 5 * time.Second

// NewMJPEGSource は新しいMJPEGSourceを作成する
func NewMJPEGSource(url string, readTimeout time.Duration) *MJPEGSource {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &MJPEGSource{
		url:         url,
		readTimeout: readTimeout,
		// ストリーミング接続のためクライアント全体のタイムアウトは設定しない
		// 読み取りの有界性は Read 側のタイムアウトで保証する
		client: &http.Client{},
	}
}

// URL は接続先のソースURLを返す
func (s *MJPEGSource) URL() string {
	return s.url
}

// Open はストリームへのHTTP接続を確立し、読み取りゴルーチンを開始する
func (s *MJPEGSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}
	if s.opened {
		return nil // 既に接続済み
	}

	// 確立後のストリームはCloseまで生存するコンテキストで管理する
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.url, nil)
	if err != nil {
		cancel()
		return &ConnectionError{URL: s.url, Reason: ReasonMalformedURL, Err: err}
	}

	// 接続確立（レスポンスヘッダー到着まで）は呼び出し側ctxと
	// 読み取りタイムアウトで有界にする。TCPは受け付けるがヘッダーを
	// 返さない相手に対しても、Openがブロックし続けることはない。
	// ヘッダー到着後は監視を解除し、ストリームはCloseまで生存する
	connected := make(chan struct{})
	var connectTimedOut atomic.Bool
	go func() {
		timer := time.NewTimer(s.readTimeout)
		defer timer.Stop()
		select {
		case <-connected:
		case <-timer.C:
			connectTimedOut.Store(true)
			cancel()
		case <-ctx.Done():
			cancel()
		}
	}()

	resp, err := s.client.Do(req)
	close(connected)
	if err == nil && streamCtx.Err() != nil {
		// ヘッダー到着と監視のキャンセルが競合した場合は接続失敗として扱う
		_ = resp.Body.Close()
		err = streamCtx.Err()
	}
	if err != nil {
		cancel()
		if connectTimedOut.Load() {
			err = ErrReadTimeout
		}
		return &StreamReadError{URL: s.url, Op: "connect", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return &ResourceError{
			URL: s.url,
			Err: fmt.Errorf("予期しないHTTPステータス: %d", resp.StatusCode),
		}
	}

	s.cancel = cancel
	s.frameCh = make(chan []byte, 1)
	s.errCh = make(chan error, 1)
	s.opened = true

	s.wg.Add(1)
	go s.readFrames(streamCtx, resp.Body)

	return nil
}

// Read は次の1フレームを取得する
// 読み取りタイムアウトを超えた場合は Timeout() が真の StreamReadError を返す
func (s *MJPEGSource) Read(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if !s.opened || s.closed {
		s.mu.Unlock()
		return nil, ErrSourceClosed
	}
	frameCh := s.frameCh
	errCh := s.errCh
	s.mu.Unlock()

	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()

	select {
	case frame, ok := <-frameCh:
		if !ok {
			// 読み取りゴルーチンはエラー送信後にチャンネルを閉じるため、
			// 閉鎖を検知したらまずエラーを確認して失敗理由を保存する
			select {
			case err := <-errCh:
				return nil, &StreamReadError{URL: s.url, Op: "read", Err: err}
			default:
			}
			return nil, ErrSourceClosed
		}
		return frame, nil

	case err := <-errCh:
		return nil, &StreamReadError{URL: s.url, Op: "read", Err: err}

	case <-timer.C:
		return nil, &StreamReadError{URL: s.url, Op: "read", Err: ErrReadTimeout}

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close はストリームを切断し読み取りゴルーチンの終了を待つ
// 複数回呼び出しても安全
func (s *MJPEGSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		// コンテキストのキャンセルでHTTPボディの読み取りが中断される
		cancel()
	}
	s.wg.Wait()

	return nil
}

// readFrames はHTTPボディからJPEGフレームを切り出して送信し続ける
// JPEGの開始マーカー（FF D8）と終了マーカー（FF D9）でフレームを分割する
// エントロピー符号化データ内の 0xFF はバイトスタッフィングされるため、
// マーカー探索でフレーム境界を誤認することはない
func (s *MJPEGSource) readFrames(ctx context.Context, body io.ReadCloser) {
	defer s.wg.Done()
	defer func() {
		_ = body.Close()
	}()
	defer close(s.frameCh)

	soi := []byte{0xFF, 0xD8}
	eoi := []byte{0xFF, 0xD9}

	buffer := make([]byte, 64*1024)
	frameBuffer := bytes.Buffer{}

	for {
		n, err := body.Read(buffer)
		if n > 0 {
			frameBuffer.Write(buffer[:n])

			// 蓄積データから完全なJPEGフレームを順次切り出す
			for {
				data := frameBuffer.Bytes()

				startIdx := bytes.Index(data, soi)
				if startIdx == -1 {
					// 開始マーカーがない場合はゴミデータを破棄
					// 末尾の 0xFF はチャンク境界で分割されたマーカーの
					// 可能性があるため残す
					tail := len(data) > 0 && data[len(data)-1] == 0xFF
					frameBuffer.Reset()
					if tail {
						frameBuffer.WriteByte(0xFF)
					}
					break
				}

				endIdx := bytes.Index(data[startIdx+2:], eoi)
				if endIdx == -1 {
					// 完全なフレームがまだない
					if startIdx > 0 {
						remaining := make([]byte, len(data)-startIdx)
						copy(remaining, data[startIdx:])
						frameBuffer.Reset()
						frameBuffer.Write(remaining)
					}
					break
				}

				// マーカーを含む完全なJPEGフレームを抽出
				endIdx += startIdx + 2 + 2
				frame := make([]byte, endIdx-startIdx)
				copy(frame, data[startIdx:endIdx])

				// 処理済みデータを削除
				remaining := make([]byte, len(data)-endIdx)
				copy(remaining, data[endIdx:])
				frameBuffer.Reset()
				frameBuffer.Write(remaining)

				// フレームを送信
				select {
				case s.frameCh <- frame:
				case <-ctx.Done():
					return
				}
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				// Closeによる中断は正常終了
				return
			}
			select {
			case s.errCh <- err:
			default:
			}
			return
		}
	}
}
