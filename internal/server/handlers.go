package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"monomi/internal/camera"
	"monomi/internal/pipeline"
)

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse はシステム状態のレスポンス
type StatusResponse struct {
	Pipeline   pipeline.State         `json:"pipeline"`
	Connection camera.ConnectionState `json:"connection"`
	Session    string                 `json:"session,omitempty"`
	SourceURL  string                 `json:"source_url"`
	Timestamp  time.Time              `json:"timestamp"`
}

// DiscoverResponse はカメラ探索のレスポンス
type DiscoverResponse struct {
	Host       string   `json:"host"`
	URLs       []string `json:"urls"`
	Candidates []string `json:"candidates"`
}

// ErrorResponse はエラーのレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// handleHealth はヘルスチェックエンドポイントの実装
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイントの実装
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Pipeline:   s.pipeline.State(),
		Connection: s.pipeline.ConnectionState(),
		Session:    s.pipeline.Session(),
		SourceURL:  s.pipeline.SourceURL(),
		Timestamp:  time.Now(),
	})
}

// handleStats は統計情報取得エンドポイントの実装
func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipeline.Snapshot())
}

// handleResult は最新の検出結果取得エンドポイントの実装
func (s *Server) handleResult(c *gin.Context) {
	result := s.pipeline.LatestResult()
	if result == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "no_result",
			Message:   "検出結果がまだありません",
			Timestamp: time.Now(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleResultImage は最新のアノテーション済みフレーム取得エンドポイントの実装
func (s *Server) handleResultImage(c *gin.Context) {
	result := s.pipeline.LatestResult()
	if result == nil || len(result.Annotated) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "no_result",
			Message:   "アノテーション済みフレームがまだありません",
			Timestamp: time.Now(),
		})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", result.Annotated)
}

// handleDiscover はカメラソース自動探索エンドポイントの実装
func (s *Server) handleDiscover(c *gin.Context) {
	host := c.Query("host")
	if host == "" {
		host = s.config.Camera.DiscoverHost
	}
	if host == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "missing_host",
			Message:   "探索対象のホストが指定されていません",
			Timestamp: time.Now(),
		})
		return
	}

	urls, err := s.scanner.ScanHost(c.Request.Context(), host)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "scan_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, DiscoverResponse{
		Host:       host,
		URLs:       urls,
		Candidates: camera.CandidateURLs(host),
	})
}

// handlePipelineStart はパイプライン開始エンドポイントの実装
func (s *Server) handlePipelineStart(c *gin.Context) {
	if err := s.pipeline.Start(c.Request.Context()); err != nil {
		var connErr *camera.ConnectionError
		if errors.As(err, &connErr) {
			// 到達性の問題はゲートウェイエラーとして返し、
			// 対処方法のガイダンスを添える
			c.JSON(http.StatusBadGateway, ErrorResponse{
				Error:     string(connErr.Reason),
				Message:   connErr.Reason.Guidance(),
				Timestamp: time.Now(),
			})
			return
		}
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:     "start_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}
	s.handleStatus(c)
}

// handlePipelineStop はパイプライン停止エンドポイントの実装
func (s *Server) handlePipelineStop(c *gin.Context) {
	if err := s.pipeline.Stop(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "stop_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}
	s.handleStatus(c)
}

// streamPollInterval はMJPEG配信で新フレームを確認する間隔
const streamPollInterval = 33 * time.Millisecond

// handleStream はアノテーション済みフレームのMJPEGストリーミングの実装
func (s *Server) handleStream(c *gin.Context) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	// 配信済みフレームの識別子。セッションまたはシーケンスが
	// 進んだときだけ新しいフレームを書き込む
	var lastSession string
	var lastSeq uint64

	for {
		select {
		case <-clientGone:
			// クライアントが切断された
			return

		case <-ticker.C:
			result := s.pipeline.LatestResult()
			if result == nil || len(result.Annotated) == 0 {
				continue
			}
			if result.Session == lastSession && result.Seq == lastSeq {
				continue
			}
			lastSession = result.Session
			lastSeq = result.Seq

			if err := writeMJPEGPart(writer, result.Annotated); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeMJPEGPart はmultipartの1フレームを書き込む
func writeMJPEGPart(w http.ResponseWriter, frame []byte) error {
	if _, err := w.Write([]byte("--frame\r\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("Content-Type: image/jpeg\r\n\r\n")); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
