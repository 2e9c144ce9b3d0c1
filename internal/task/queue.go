package task

import "context"

// Handler 处理从队列取出的任务 ID。
type Handler func(ctx context.Context, taskID string) error

// Producer 负责向队列投递任务 ID。
type Producer interface {
	Publish(ctx context.Context, taskID string) error
	Close() error
}

// Consumer 以若干工作协程消费队列，直到 ctx 结束。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
