// 独立的后台 Worker 进程：从 RabbitMQ 消费流水线任务。
// 与 API 进程共享同一套存储和媒体目录。
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feldberlin/timething-web/pkg/annotate"
	"github.com/feldberlin/timething-web/pkg/config"
	"github.com/feldberlin/timething-web/pkg/media"
	"github.com/feldberlin/timething-web/pkg/notify"
	"github.com/feldberlin/timething-web/pkg/pipeline"
	"github.com/feldberlin/timething-web/pkg/queue"
	"github.com/feldberlin/timething-web/pkg/store"
	"github.com/feldberlin/timething-web/pkg/transcode"
	"github.com/feldberlin/timething-web/pkg/transcribe"
	"github.com/feldberlin/timething-web/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("❌ 加载配置失败: %v", err)
	}
	log.Println("✓ 配置加载成功")

	blobs, err := media.NewBlobStore(cfg.Storage.MediaDir)
	if err != nil {
		log.Fatalf("❌ 初始化媒体目录失败: %v", err)
	}

	s, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("❌ 初始化存储失败: %v", err)
	}

	// 独立 Worker 进程必须走跨进程队列
	if cfg.Queue.Type != "rabbitmq" {
		log.Fatalf("❌ 独立 Worker 需要 rabbitmq 队列，当前: %s", cfg.Queue.Type)
	}
	q, err := queue.NewRabbitMQQueue(
		cfg.Queue.RabbitMQ.URL,
		cfg.Queue.RabbitMQ.QueueName,
		cfg.Queue.RabbitMQ.PrefetchCount,
	)
	if err != nil {
		log.Fatalf("❌ 初始化队列失败: %v", err)
	}

	recognizer := transcribe.NewWhisperRecognizer(cfg.OpenAI.APIKey)
	pipe := pipeline.New(s,
		transcode.NewTranscoder(blobs, cfg.Transcriber.SampleRate),
		transcribe.NewEngine(recognizer, blobs, transcribe.Options{
			WorkerCount:     cfg.Transcriber.WorkerCount,
			SegmentDuration: cfg.Transcriber.SegmentDuration,
			MaxRetries:      cfg.Transcriber.MaxRetries,
		}),
		annotate.NewAnnotator(blobs, cfg.Annotator.Command),
		pipeline.Options{
			StageTimeout:  time.Duration(cfg.Pipeline.StageTimeoutMinutes) * time.Minute,
			SkipAnnotated: cfg.Pipeline.SkipAnnotated,
		})

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.Enabled {
		notifier = notify.NewMailer(cfg.Notify)
	}

	// 并发任务数与 QoS 预取数保持一致
	w := worker.NewWorker(q, pipe, s, pipeline.NewRunLocks(), notifier)
	w.Start(cfg.Queue.RabbitMQ.PrefetchCount)
	log.Printf("🚀 Worker 进程已启动 (并发: %d)", cfg.Queue.RabbitMQ.PrefetchCount)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 正在关闭 Worker...")
	w.Stop()
	q.Close()
	s.Close()
	log.Println("✓ Worker 已关闭")
}

// buildStore 根据配置创建元数据存储
func buildStore(cfg *config.Config) (store.Store, error) {
	ttl := time.Duration(cfg.Storage.Redis.TTLHours) * time.Hour

	switch cfg.Storage.Type {
	case "redis":
		return store.NewRedisStore(cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, ttl)
	case "postgres":
		return store.NewPostgresStore(cfg.Storage.Postgres.DSN)
	case "hybrid":
		r, err := store.NewRedisStore(cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, ttl)
		if err != nil {
			return nil, err
		}
		pg, err := store.NewPostgresStore(cfg.Storage.Postgres.DSN)
		if err != nil {
			r.Close()
			return nil, err
		}
		return store.NewHybridStore(r, pg), nil
	default:
		// 内存存储无法跨进程共享
		return nil, fmt.Errorf("独立 Worker 不支持存储类型: %s", cfg.Storage.Type)
	}
}
