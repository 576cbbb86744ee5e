package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feldberlin/timething-web/pkg/annotate"
	"github.com/feldberlin/timething-web/pkg/config"
	"github.com/feldberlin/timething-web/pkg/media"
	"github.com/feldberlin/timething-web/pkg/notify"
	"github.com/feldberlin/timething-web/pkg/pipeline"
	"github.com/feldberlin/timething-web/pkg/queue"
	"github.com/feldberlin/timething-web/pkg/store"
	"github.com/feldberlin/timething-web/pkg/transcode"
	"github.com/feldberlin/timething-web/pkg/transcribe"
	"github.com/feldberlin/timething-web/pkg/upload"
	"github.com/feldberlin/timething-web/pkg/worker"
)

// App 应用上下文（依赖注入）
type App struct {
	config  *config.Config
	store   store.Store
	blobs   *media.BlobStore
	uploads *upload.Manager
	pipe    *pipeline.Pipeline
	queue   queue.Queue
	locks   *pipeline.RunLocks
	worker  *worker.Worker
}

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("❌ 加载配置失败: %v", err)
	}
	log.Println("✓ 配置加载成功")

	// 2. 初始化媒体 blob 存储
	blobs, err := media.NewBlobStore(cfg.Storage.MediaDir)
	if err != nil {
		log.Fatalf("❌ 初始化媒体目录失败: %v", err)
	}

	// 3. 初始化元数据存储（根据配置选择类型）
	s, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("❌ 初始化存储失败: %v", err)
	}

	// 4. 初始化队列
	q, err := buildQueue(cfg)
	if err != nil {
		log.Fatalf("❌ 初始化队列失败: %v", err)
	}

	// 5. 组装流水线
	pipe := buildPipeline(cfg, s, blobs)
	locks := pipeline.NewRunLocks()

	app := &App{
		config:  cfg,
		store:   s,
		blobs:   blobs,
		uploads: upload.NewManager(s, blobs),
		pipe:    pipe,
		queue:   q,
		locks:   locks,
	}

	// 6. 启动后台 Worker 消费排队的流水线任务
	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.Enabled {
		notifier = notify.NewMailer(cfg.Notify)
	}
	app.worker = worker.NewWorker(q, pipe, s, locks, notifier)
	app.worker.Start(1)
	log.Println("✓ Worker 已启动")

	// 7. 启动 HTTP 服务器
	router := app.setupRouter()
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	log.Printf("🚀 服务器启动在 http://localhost:%d", cfg.Server.Port)
	log.Printf("📝 配置信息:")
	log.Printf("   - 存储类型: %s", cfg.Storage.Type)
	log.Printf("   - 队列类型: %s", cfg.Queue.Type)
	log.Printf("   - 媒体目录: %s", cfg.Storage.MediaDir)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ 服务器启动失败: %v", err)
		}
	}()

	// 8. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ 服务器关闭出错: %v", err)
	}
	app.worker.Stop()
	app.queue.Close()
	app.store.Close()
	log.Println("✓ 服务器已关闭")
}

// buildStore 根据配置创建元数据存储
func buildStore(cfg *config.Config) (store.Store, error) {
	ttl := time.Duration(cfg.Storage.Redis.TTLHours) * time.Hour

	switch cfg.Storage.Type {
	case "", "memory":
		log.Println("✓ 使用内存存储")
		return store.NewMemoryStore(), nil
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
		return nil, fmt.Errorf("不支持的存储类型: %s", cfg.Storage.Type)
	}
}

// buildQueue 根据配置创建任务队列
func buildQueue(cfg *config.Config) (queue.Queue, error) {
	switch cfg.Queue.Type {
	case "", "memory":
		log.Println("✓ 使用内存队列")
		return queue.NewMemoryQueue(cfg.Queue.BufferSize), nil
	case "rabbitmq":
		return queue.NewRabbitMQQueue(
			cfg.Queue.RabbitMQ.URL,
			cfg.Queue.RabbitMQ.QueueName,
			cfg.Queue.RabbitMQ.PrefetchCount,
		)
	default:
		return nil, fmt.Errorf("不支持的队列类型: %s", cfg.Queue.Type)
	}
}

// buildPipeline 组装流水线及各阶段
func buildPipeline(cfg *config.Config, s store.Store, blobs *media.BlobStore) *pipeline.Pipeline {
	recognizer := transcribe.NewWhisperRecognizer(cfg.OpenAI.APIKey)

	return pipeline.New(s,
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
}

// setupRouter 设置路由
func (app *App) setupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/ping", app.handlePing)

	// 上传
	r.POST("/upload", app.handleOpenUpload)
	r.PUT("/upload/:id", app.handleUploadChunk)

	// 流水线
	r.GET("/transcribe/:id", app.handleTranscribeStream) // 前台 SSE 运行
	r.POST("/transcribe/:id", app.handleEnqueueRun)      // 后台排队运行

	// 读取 / 导出
	r.GET("/transcription/:id", app.handleGetTranscription)
	r.GET("/transcriptions", app.handleListTranscriptions)
	r.PUT("/transcription/:id/track", app.handlePatchTrack)
	r.GET("/export/:id", app.handleExport)
	r.GET("/media/:id", app.handleMedia)

	// 前端静态文件，未匹配的路径全部回退到 index.html
	r.Static("/assets", "./frontend/dist/assets")
	r.NoRoute(func(c *gin.Context) {
		c.File("./frontend/dist/index.html")
	})

	return r
}

// handlePing 健康检查
func (app *App) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
