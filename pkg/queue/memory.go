package queue

import (
	"context"
	"fmt"
	"sync"
)

// MemoryQueue 基于 Channel 的内存队列实现
// 单进程部署用：API 进程内的 worker 直接消费
type MemoryQueue struct {
	queue chan *PipelineJob

	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &MemoryQueue{
		queue: make(chan *PipelineJob, bufferSize),
	}
}

// Enqueue 将任务加入队列；队列满时立即报错而不是阻塞请求
func (mq *MemoryQueue) Enqueue(job *PipelineJob) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return fmt.Errorf("队列已关闭")
	}
	select {
	case mq.queue <- job:
		return nil
	default:
		return fmt.Errorf("队列已满")
	}
}

// Dequeue 从队列取出任务，阻塞直到有任务、ctx 取消或队列关闭
func (mq *MemoryQueue) Dequeue(ctx context.Context) (*PipelineJob, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job, ok := <-mq.queue:
		if !ok {
			return nil, fmt.Errorf("队列已关闭")
		}
		return job, nil
	}
}

// Ack 内存队列取出即消费，无需确认
func (mq *MemoryQueue) Ack(job *PipelineJob) error { return nil }

// Nack 拒绝任务；requeue 为 true 时重新入队（比如运行锁冲突时稍后重试）
func (mq *MemoryQueue) Nack(job *PipelineJob, requeue bool) error {
	if !requeue {
		return nil
	}
	return mq.Enqueue(job)
}

// Close 关闭队列
func (mq *MemoryQueue) Close() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil
	}
	mq.closed = true
	close(mq.queue)
	return nil
}
