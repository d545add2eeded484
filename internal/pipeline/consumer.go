package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"monomi/internal/camera"
	"monomi/internal/detect"
)

// Consumer 推論ループ。キューからフレームを取り出して検出器にかけ、
// 結果をシンクへ流す。推論失敗はそのフレームを読み飛ばすだけで
// ループは止めない
type Consumer struct {
	cfg      Config
	queue    *camera.FrameQueue
	sink     *ResultSink
	detector detect.Detector
	stats    *Stats
}

func newConsumer(cfg Config, queue *camera.FrameQueue, sink *ResultSink,
	detector detect.Detector, stats *Stats) *Consumer {
	return &Consumer{
		cfg:      cfg,
		queue:    queue,
		sink:     sink,
		detector: detector,
		stats:    stats,
	}
}

// run 推論ループの本体。停止シグナルまで動き続ける
func (c *Consumer) run(ctx context.Context, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		frame, err := c.queue.Pop(c.cfg.PopTimeout)
		if err != nil {
			// タイムアウトは停止シグナルを確認する契機にすぎない
			continue
		}

		start := time.Now()
		detections, annotated, err := c.detector.Detect(ctx, frame.Data)
		if err != nil {
			c.stats.RecordDetectionError()
			var derr *detect.DetectionError
			if errors.As(err, &derr) {
				log.Printf("推論に失敗したためフレームを読み飛ばします: session=%s seq=%d: %v",
					frame.Session, frame.Seq, err)
				continue
			}
			log.Printf("検出器でエラーが発生しました: session=%s seq=%d: %v",
				frame.Session, frame.Seq, err)
			continue
		}
		latency := time.Since(start)

		result := &detect.Result{
			Session:    frame.Session,
			Seq:        frame.Seq,
			CapturedAt: frame.CapturedAt,
			Detections: detections,
			Summary:    detect.Summarize(detections),
			Latency:    latency,
			Annotated:  annotated,
		}
		if evicted := c.sink.Push(result); evicted {
			c.stats.RecordResultDrop()
		}
		c.stats.RecordProcess(time.Now(), latency)
	}
}
