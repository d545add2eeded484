package camera

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"
)

// Preset は既知のカメラアプリのURLパターンを表す
type Preset struct {
	Name        string // 表示名
	Port        int    // 待ち受けポート
	Path        string // ストリームパス
	Description string // 説明
}

// presets は既知のDroidCam / IP Webcam系アプリのプリセット一覧
var presets = []Preset{
	{Name: "DroidCam WiFi", Port: 4747, Path: "/video", Description: "標準のDroidCam（WiFi接続）"},
	{Name: "DroidCam 代替ポート", Port: 4748, Path: "/video", Description: "代替ポートのDroidCam"},
	{Name: "DroidCam OBS", Port: 5050, Path: "/video", Description: "DroidCam OBSモード"},
	{Name: "IP Webcam", Port: 8080, Path: "/video", Description: "IP Webcamアプリ"},
}

// Presets は既知プリセットのコピーを返す
func Presets() []Preset {
	result := make([]Preset, len(presets))
	copy(result, presets)
	return result
}

// CandidateURLs は指定ホストに対する候補ストリームURL一覧を生成する
func CandidateURLs(host string) []string {
	urls := make([]string, 0, len(presets))
	for _, p := range presets {
		urls = append(urls, fmt.Sprintf("http://%s:%d%s", host, p.Port, p.Path))
	}
	return urls
}

// Scanner はLAN上のカメラ候補URLの検出機能を提供する
type Scanner interface {
	// ScanHost は指定ホストの既知ポートをスキャンし、
	// 接続を受け付けた候補URL一覧を返す
	ScanHost(ctx context.Context, host string) ([]string, error)
}

// NetworkScanner は既知ポートへのTCP接続試行によるScanner実装
type NetworkScanner struct {
	scanTimeout time.Duration

	// dial はテストで差し替え可能な接続関数
	dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultScanTimeout はポートスキャンの1ポートあたりのタイムアウト
const DefaultScanTimeout = 1 * time.Second

// NewNetworkScanner は新しいNetworkScannerを作成する
func NewNetworkScanner(scanTimeout time.Duration) *NetworkScanner {
	if scanTimeout <= 0 {
		scanTimeout = DefaultScanTimeout
	}
	return &NetworkScanner{scanTimeout: scanTimeout}
}

// ScanHost は既知ポートを並列にスキャンする
// 接続を受け付けたポートのプリセットURLのみを返す
func (s *NetworkScanner) ScanHost(ctx context.Context, host string) ([]string, error) {
	if host == "" {
		return nil, fmt.Errorf("ホストが指定されていません")
	}

	dial := s.dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}

	var (
		mu    sync.Mutex
		found []string
		wg    sync.WaitGroup
	)

	for _, p := range presets {
		wg.Add(1)
		go func(p Preset) {
			defer wg.Done()

			dialCtx, cancel := context.WithTimeout(ctx, s.scanTimeout)
			defer cancel()

			address := net.JoinHostPort(host, fmt.Sprintf("%d", p.Port))
			conn, err := dial(dialCtx, "tcp", address)
			if err != nil {
				return
			}
			_ = conn.Close()

			mu.Lock()
			found = append(found, fmt.Sprintf("http://%s:%d%s", host, p.Port, p.Path))
			mu.Unlock()
		}(p)
	}

	wg.Wait()

	// コンテキストのキャンセルをチェック
	if err := ctx.Err(); err != nil {
		return found, err
	}

	// ポート番号順で安定した結果を返す
	sort.Strings(found)
	return found, nil
}

// MockScanner はテスト用のモックScanner実装
type MockScanner struct {
	urls map[string][]string
	err  error
}

// NewMockScanner は新しいMockScannerを作成する
func NewMockScanner() *MockScanner {
	return &MockScanner{urls: make(map[string][]string)}
}

// SetURLs はテスト用にホストへの応答を設定する
func (m *MockScanner) SetURLs(host string, urls []string) {
	m.urls[host] = urls
}

// SetError はテスト用にエラー応答を設定する
func (m *MockScanner) SetError(err error) {
	m.err = err
}

// ScanHost は設定済みの候補URL一覧を返す
func (m *MockScanner) ScanHost(_ context.Context, host string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.urls[host], nil
}
