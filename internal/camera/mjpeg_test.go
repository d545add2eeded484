package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeJPEG はマーカー付きのダミーJPEGフレームを作成する
func fakeJPEG(payload byte) []byte {
	return []byte{0xFF, 0xD8, 0x00, payload, 0xFF, 0xD9}
}

// serveMJPEG は指定フレームをMJPEG形式で配信するテストサーバーを起動する
func serveMJPEG(t *testing.T, frames [][]byte) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Error("Flusherが利用できません")
			return
		}

		// フレームが0枚でもヘッダーは即座に返す
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for _, frame := range frames {
			fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n")
			_, _ = w.Write(frame)
			fmt.Fprintf(w, "\r\n")
			flusher.Flush()
		}

		// クライアントが切断するまで接続を維持
		<-r.Context().Done()
	}))
}

// TestMJPEGSourceRead はMJPEGストリームからのフレーム取得をテストする
func TestMJPEGSourceRead(t *testing.T) {
	frames := [][]byte{fakeJPEG(0x01), fakeJPEG(0x02), fakeJPEG(0x03)}
	server := serveMJPEG(t, frames)
	defer server.Close()

	source := NewMJPEGSource(server.URL+"/video", 2*time.Second)
	defer func() {
		_ = source.Close()
	}()

	if err := source.Open(context.Background()); err != nil {
		t.Fatalf("ストリームの接続に失敗しました: %v", err)
	}

	// 3フレームが順番どおりに取得できること
	for i, want := range frames {
		got, err := source.Read(context.Background())
		if err != nil {
			t.Fatalf("フレーム%dの読み取りに失敗しました: %v", i+1, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("フレーム%dの内容が一致しません: got %x, want %x", i+1, got, want)
		}
	}
}

// TestMJPEGSourceReadTimeout はフレームが来ない場合の読み取りタイムアウトをテストする
func TestMJPEGSourceReadTimeout(t *testing.T) {
	// フレームを一切送信しないサーバー
	server := serveMJPEG(t, nil)
	defer server.Close()

	source := NewMJPEGSource(server.URL+"/video", 100*time.Millisecond)
	defer func() {
		_ = source.Close()
	}()

	if err := source.Open(context.Background()); err != nil {
		t.Fatalf("ストリームの接続に失敗しました: %v", err)
	}

	start := time.Now()
	_, err := source.Read(context.Background())
	elapsed := time.Since(start)

	var readErr *StreamReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("StreamReadErrorが期待されましたが: %v", err)
	}
	if !readErr.Timeout() {
		t.Error("タイムアウトエラーが期待されました")
	}
	if elapsed > 1*time.Second {
		t.Errorf("タイムアウトが遅すぎます: %v", elapsed)
	}
}

// TestMJPEGSourceOpenTimeout はヘッダーを返さない相手への接続が
// タイムアウトで打ち切られることをテストする
func TestMJPEGSourceOpenTimeout(t *testing.T) {
	// TCP接続は受け付けるがレスポンスヘッダーを一切返さないサーバー
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	source := NewMJPEGSource(server.URL+"/video", 100*time.Millisecond)
	defer func() {
		_ = source.Close()
	}()

	start := time.Now()
	err := source.Open(context.Background())
	elapsed := time.Since(start)

	var readErr *StreamReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("StreamReadErrorが期待されましたが: %v", err)
	}
	if !readErr.Timeout() {
		t.Errorf("タイムアウトエラーが期待されました: %v", err)
	}
	if elapsed > 1*time.Second {
		t.Errorf("Openのブロックが長すぎます: %v", elapsed)
	}
}

// TestMJPEGSourceOpenCancelled は呼び出し側のキャンセルで接続試行が
// 中断されることをテストする
func TestMJPEGSourceOpenCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	source := NewMJPEGSource(server.URL+"/video", 30*time.Second)
	defer func() {
		_ = source.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := source.Open(ctx)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("キャンセル時はエラーが期待されます")
	}
	if elapsed > 1*time.Second {
		t.Errorf("キャンセル後のブロックが長すぎます: %v", elapsed)
	}
}

// TestMJPEGSourceOpenRejected はHTTPエラー応答時のResourceErrorをテストする
func TestMJPEGSourceOpenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	source := NewMJPEGSource(server.URL+"/video", time.Second)
	err := source.Open(context.Background())

	var resErr *ResourceError
	if !errors.As(err, &resErr) {
		t.Fatalf("ResourceErrorが期待されましたが: %v", err)
	}
}

// TestMJPEGSourceCloseIdempotent はCloseの冪等性をテストする
func TestMJPEGSourceCloseIdempotent(t *testing.T) {
	server := serveMJPEG(t, [][]byte{fakeJPEG(0x01)})
	defer server.Close()

	source := NewMJPEGSource(server.URL+"/video", time.Second)
	if err := source.Open(context.Background()); err != nil {
		t.Fatalf("ストリームの接続に失敗しました: %v", err)
	}

	if err := source.Close(); err != nil {
		t.Errorf("1回目のCloseに失敗しました: %v", err)
	}
	if err := source.Close(); err != nil {
		t.Errorf("2回目のCloseに失敗しました: %v", err)
	}

	// クローズ後のReadはエラーになる
	if _, err := source.Read(context.Background()); err == nil {
		t.Error("クローズ後のReadでエラーが期待されました")
	}
}

// TestMJPEGSourceReadAfterStreamError はストリーム切断時に
// 失敗理由がReadへ確実に伝わることをテストする
func TestMJPEGSourceReadAfterStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		// 不完全なフレームだけ送って接続を切る
		_, _ = w.Write([]byte{0xFF, 0xD8, 0x00})
		flusher.Flush()
	}))
	defer server.Close()

	source := NewMJPEGSource(server.URL+"/video", time.Second)
	defer func() {
		_ = source.Close()
	}()

	if err := source.Open(context.Background()); err != nil {
		t.Fatalf("ストリームの接続に失敗しました: %v", err)
	}

	// チャンネルの閉鎖とエラー送信が競合しても、
	// 汎用のクローズ済みエラーではなく切断理由が返ること
	_, err := source.Read(context.Background())
	if err == nil {
		t.Fatal("切断後のReadでエラーが期待されます")
	}
	if errors.Is(err, ErrSourceClosed) {
		t.Errorf("切断理由ではなくErrSourceClosedが返されました: %v", err)
	}
	var readErr *StreamReadError
	if !errors.As(err, &readErr) {
		t.Errorf("StreamReadErrorが期待されましたが: %v", err)
	}
}

// TestMJPEGSourceSplitAcrossChunks はフレームがチャンク境界をまたぐ場合をテストする
func TestMJPEGSourceSplitAcrossChunks(t *testing.T) {
	frame := fakeJPEG(0x42)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		// フレームを1バイトずつ分割して送信
		for _, b := range frame {
			_, _ = w.Write([]byte{b})
			flusher.Flush()
			time.Sleep(time.Millisecond)
		}
		<-r.Context().Done()
	}))
	defer server.Close()

	source := NewMJPEGSource(server.URL+"/video", 2*time.Second)
	defer func() {
		_ = source.Close()
	}()

	if err := source.Open(context.Background()); err != nil {
		t.Fatalf("ストリームの接続に失敗しました: %v", err)
	}

	got, err := source.Read(context.Background())
	if err != nil {
		t.Fatalf("フレームの読み取りに失敗しました: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("フレームの内容が一致しません: got %x, want %x", got, frame)
	}
}
