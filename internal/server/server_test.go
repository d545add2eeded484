package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"monomi/internal/camera"
	"monomi/internal/config"
	"monomi/internal/detect"
	"monomi/internal/pipeline"
)

// stubProber は常に成功するProber実装
type stubProber struct{}

func (p *stubProber) Probe(_ context.Context, _ string, _ time.Duration) error {
	return nil
}

// newTestServer はモックソースで動くテスト用サーバーを作成する
func newTestServer(port int) (*Server, *camera.MockScanner) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         port,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 0,
		},
		Camera: config.CameraConfig{
			URL:         "mock://camera",
			ReadTimeout: 5 * time.Second,
		},
		Detector: detect.DefaultConfig(),
		Pipeline: pipeline.DefaultConfig(),
	}
	cfg.Pipeline.TargetFPS = 100
	cfg.Pipeline.PopTimeout = 10 * time.Millisecond
	cfg.Pipeline.JoinTimeout = 2 * time.Second

	factory := camera.NewSourceFactory()
	factory.Register("mock", func(_ camera.SourceConfig) (camera.Source, error) {
		return camera.NewMockSource("mock://camera"), nil
	})

	pl := pipeline.NewPipeline(cfg.Pipeline, cfg.Camera.URL, factory,
		&stubProber{}, detect.NewMockDetector())

	scanner := camera.NewMockScanner()
	return New(cfg, pl, scanner), scanner
}

// waitForStatus は条件が満たされるまでポーリングする
func waitForStatus(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("条件が時間内に満たされませんでした: %s", msg)
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	srv, _ := newTestServer(18081)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// サーバーを別ゴルーチンで起動
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// サーバーが起動するまで少し待つ
	time.Sleep(100 * time.Millisecond)

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}

// TestServerEndpoints はサーバーのエンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	srv, scanner := newTestServer(18082)
	scanner.SetURLs("192.168.1.20", []string{"http://192.168.1.20:4747/video"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = srv.Start(ctx)
	}()

	// サーバーが起動するまで待つ
	baseURL := "http://127.0.0.1:18082"
	waitForStatus(t, 3*time.Second, func() bool {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, "サーバーが起動すること")

	// 起動前の状態を確認する
	t.Run("ステータス（起動前）", func(t *testing.T) {
		var status StatusResponse
		getJSON(t, baseURL+"/api/status", http.StatusOK, &status)
		if status.Pipeline != pipeline.StateIdle {
			t.Errorf("Pipeline = %s, 期待値 %s", status.Pipeline, pipeline.StateIdle)
		}
	})

	t.Run("結果なしは404", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/result")
		if err != nil {
			t.Fatalf("リクエストに失敗しました: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, 期待値 %d", resp.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("パイプライン開始", func(t *testing.T) {
		resp, err := http.Post(baseURL+"/api/pipeline/start", "application/json", nil)
		if err != nil {
			t.Fatalf("リクエストに失敗しました: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("ステータスコード = %d, 期待値 %d", resp.StatusCode, http.StatusOK)
		}

		// 結果が出るまで待つ
		waitForStatus(t, 3*time.Second, func() bool {
			r, err := http.Get(baseURL + "/api/result")
			if err != nil {
				return false
			}
			defer r.Body.Close()
			return r.StatusCode == http.StatusOK
		}, "検出結果が配信されること")
	})

	t.Run("二重開始は409", func(t *testing.T) {
		resp, err := http.Post(baseURL+"/api/pipeline/start", "application/json", nil)
		if err != nil {
			t.Fatalf("リクエストに失敗しました: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("ステータスコード = %d, 期待値 %d", resp.StatusCode, http.StatusConflict)
		}
	})

	t.Run("統計情報", func(t *testing.T) {
		var snap pipeline.Snapshot
		getJSON(t, baseURL+"/api/stats", http.StatusOK, &snap)
		if snap.CapturedTotal == 0 {
			t.Error("CapturedTotalが0のままです")
		}
	})

	t.Run("検出結果", func(t *testing.T) {
		var result detect.Result
		getJSON(t, baseURL+"/api/result", http.StatusOK, &result)
		if result.Session == "" {
			t.Error("セッションIDが空です")
		}
		if result.Summary.TotalObjects != 1 {
			t.Errorf("Summary.TotalObjects = %d, 期待値 1", result.Summary.TotalObjects)
		}
	})

	t.Run("カメラ探索", func(t *testing.T) {
		var discover DiscoverResponse
		getJSON(t, baseURL+"/api/discover?host=192.168.1.20", http.StatusOK, &discover)
		if len(discover.URLs) != 1 {
			t.Errorf("URLs = %v, 1件が期待されます", discover.URLs)
		}
		if len(discover.Candidates) == 0 {
			t.Error("候補URL一覧が空です")
		}
	})

	t.Run("探索ホスト未指定は400", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/discover")
		if err != nil {
			t.Fatalf("リクエストに失敗しました: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, 期待値 %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("パイプライン停止", func(t *testing.T) {
		resp, err := http.Post(baseURL+"/api/pipeline/stop", "application/json", nil)
		if err != nil {
			t.Fatalf("リクエストに失敗しました: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("ステータスコード = %d, 期待値 %d", resp.StatusCode, http.StatusOK)
		}

		var status StatusResponse
		getJSON(t, baseURL+"/api/status", http.StatusOK, &status)
		if status.Pipeline != pipeline.StateIdle {
			t.Errorf("停止後のPipeline = %s, 期待値 %s", status.Pipeline, pipeline.StateIdle)
		}
	})
}

// getJSON はGETリクエストを送り、レスポンスをデコードする
func getJSON(t *testing.T, url string, wantStatus int, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("リクエストに失敗しました: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("ステータスコード = %d, 期待値 %d (%s)", resp.StatusCode, wantStatus, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
	}
}
