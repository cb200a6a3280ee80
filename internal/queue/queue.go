package queue

import (
	"context"
)

// Publisher publishes broadcast jobs to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg BroadcastMessage) error
	Close() error
}

// MessageHandler handles a consumed broadcast job.
type MessageHandler func(ctx context.Context, msg BroadcastMessage) error

// Consumer consumes broadcast jobs from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// BroadcastQueue is the work queue of asynchronous broadcasts.
	BroadcastQueue = "broadcast"
	// BroadcastDLQ receives rejected broadcast jobs.
	BroadcastDLQ = "dlq." + BroadcastQueue

	broadcastRoutingKey = BroadcastQueue
)
