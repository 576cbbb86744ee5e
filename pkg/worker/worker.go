// Package worker 后台流水线任务处理器：从队列取任务，
// 运行流水线直到终态，按结果 Ack/Nack 并发送通知。
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/feldberlin/timething-web/pkg/models"
	"github.com/feldberlin/timething-web/pkg/notify"
	"github.com/feldberlin/timething-web/pkg/pipeline"
	"github.com/feldberlin/timething-web/pkg/queue"
	"github.com/feldberlin/timething-web/pkg/store"
)

// Worker 任务处理器
type Worker struct {
	queue    queue.Queue
	pipe     *pipeline.Pipeline
	store    store.Store
	locks    *pipeline.RunLocks
	notifier notify.Notifier
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker 创建 Worker
func NewWorker(q queue.Queue, pipe *pipeline.Pipeline, s store.Store, locks *pipeline.RunLocks, notifier notify.Notifier) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Worker{
		queue:    q,
		pipe:     pipe,
		store:    s,
		locks:    locks,
		notifier: notifier,
		timeout:  30 * time.Minute,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动 n 个处理 Goroutine
func (w *Worker) Start(n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
}

// Stop 停止 Worker 并等待在途任务结束
func (w *Worker) Stop() {
	log.Println("正在停止 Worker...")
	w.cancel()
	w.wg.Wait()
	log.Println("Worker 已停止")
}

func (w *Worker) run(id int) {
	defer w.wg.Done()
	log.Printf("Worker #%d 已启动，等待任务...", id)

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		// ctx 取消时 Dequeue 立即返回错误，Stop 不会卡在空队列上
		job, err := w.queue.Dequeue(w.ctx)
		if err != nil {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(1 * time.Second):
			}
			continue
		}

		w.processJob(job)
	}
}

func (w *Worker) processJob(job *queue.PipelineJob) {
	log.Printf("📝 开始处理任务: %s (language=%q, force=%v)",
		job.TranscriptionID, job.Language, job.Force)

	// 同一记录已有运行中的流水线（比如前台 SSE 触发的），稍后重试
	if !w.locks.Acquire(job.TranscriptionID) {
		log.Printf("⚠️ 任务 %s 正在运行中，重新入队", job.TranscriptionID)
		w.queue.Nack(job, true)
		return
	}
	defer w.locks.Release(job.TranscriptionID)

	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()

	startTime := time.Now()
	finalState := w.drainRun(ctx, job)

	rec, err := w.store.Get(job.TranscriptionID)
	if err != nil {
		// 记录本身不存在，重试没有意义
		log.Printf("❌ 任务 %s 无法读取记录: %v", job.TranscriptionID, err)
		w.queue.Nack(job, false)
		return
	}

	if finalState != models.StateCompleted {
		log.Printf("❌ 任务 %s 失败 (终态: %s)", job.TranscriptionID, finalState)
		w.queue.Nack(job, false)
		w.notifier.Done(rec, fmt.Errorf("流水线以 %s 状态结束", finalState))
		return
	}

	duration := time.Since(startTime)
	log.Printf("🎉 任务 %s 完成！耗时: %.2f 秒", job.TranscriptionID, duration.Seconds())
	w.queue.Ack(job)
	w.notifier.Done(rec, nil)
}

// drainRun 运行流水线并消费整个事件流，返回终态
func (w *Worker) drainRun(ctx context.Context, job *queue.PipelineJob) models.PipelineState {
	finalState := models.StateError
	for e := range w.pipe.Run(ctx, job.TranscriptionID, job.Language, job.Force) {
		if pp, ok := e.Data.(pipeline.PipelineProgress); ok {
			finalState = pp.State
		}
	}
	return finalState
}
