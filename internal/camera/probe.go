package camera

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
	"time"
)

// Prober はカメラソースURLの到達性検査を提供する
type Prober interface {
	// Probe はキャプチャセッションを開かずに到達性のみを検査する
	// 成功時はnil、失敗時は原因が分類された *ConnectionError を返す
	Probe(ctx context.Context, sourceURL string, timeout time.Duration) error
}

// TCPProber はTCP接続による到達性検査の実装
type TCPProber struct {
	// dial はテストで差し替え可能な接続関数
	dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewTCPProber は新しいTCPProberを作成する
func NewTCPProber() *TCPProber {
	return &TCPProber{}
}

// Probe はソースURLへのTCP接続を試行して到達性を検査する
// 実際のキャプチャセッションは開かない。副作用は接続試行のみで、
// 接続は即座にクローズされる
func (p *TCPProber) Probe(ctx context.Context, sourceURL string, timeout time.Duration) error {
	address, err := parseStreamURL(sourceURL)
	if err != nil {
		return &ConnectionError{URL: sourceURL, Reason: ReasonMalformedURL, Err: err}
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dial := p.dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}

	conn, err := dial(dialCtx, "tcp", address)
	if err != nil {
		return &ConnectionError{
			URL:    sourceURL,
			Reason: classifyDialError(err),
			Err:    err,
		}
	}
	_ = conn.Close()

	return nil
}

// parseStreamURL はソースURLを検証し、接続先の host:port を返す
func parseStreamURL(sourceURL string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("httpまたはhttpsスキームが必要です")
	}
	if u.Hostname() == "" {
		return "", errors.New("ホストが指定されていません")
	}

	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	return net.JoinHostPort(u.Hostname(), port), nil
}

// classifyDialError は接続失敗の原因を分類する
func classifyDialError(err error) ProbeReason {
	// タイムアウト（コンテキスト期限切れを含む）
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	// 接続拒否
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonRefused
	}

	// 名前解決失敗
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonUnreachable
	}

	// 経路なし等のその他のネットワークエラー
	return ReasonUnreachable
}
