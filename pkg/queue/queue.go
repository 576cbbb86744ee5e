// Package queue 后台流水线任务队列。
package queue

import "context"

// PipelineJob 一次后台流水线运行请求
type PipelineJob struct {
	TranscriptionID string `json:"transcription_id"`
	Language        string `json:"language,omitempty"`
	Force           bool   `json:"force,omitempty"`

	// RabbitMQ 投递信息，Ack/Nack 时使用；内存队列下为零值
	DeliveryTag uint64 `json:"-"`
	delivery    any
}

// Queue 任务队列接口
// 内存实现用于单进程部署，RabbitMQ 实现用于独立 worker 进程
type Queue interface {
	// Enqueue 将任务加入队列
	Enqueue(job *PipelineJob) error

	// Dequeue 从队列取出任务，阻塞直到有任务、ctx 取消或队列关闭
	Dequeue(ctx context.Context) (*PipelineJob, error)

	// Ack 确认消息（任务处理成功）
	Ack(job *PipelineJob) error

	// Nack 拒绝消息（任务处理失败）
	// requeue: 是否重新入队
	Nack(job *PipelineJob, requeue bool) error

	// Close 关闭队列
	Close() error
}
