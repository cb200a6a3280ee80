package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/push-broadcast/internal/domain"
	"github.com/kursadbilgin/push-broadcast/internal/observability"
	"github.com/kursadbilgin/push-broadcast/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// Broadcaster is the dispatcher surface used by the API and the worker.
type Broadcaster interface {
	SendToAll(ctx context.Context, payload domain.Payload) (*domain.BroadcastResult, error)
	SendToTokens(ctx context.Context, tokens []string, payload domain.Payload) (*domain.BroadcastResult, error)
}

// BroadcastWorker runs queued broadcast jobs through the dispatcher.
type BroadcastWorker struct {
	broadcaster Broadcaster
	consumer    queue.Consumer
	concurrency int
	logger      *zap.Logger
}

func NewBroadcastWorker(
	broadcaster Broadcaster,
	consumer queue.Consumer,
	concurrency int,
	logger *zap.Logger,
) (*BroadcastWorker, error) {
	if broadcaster == nil {
		return nil, fmt.Errorf("broadcaster is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BroadcastWorker{
		broadcaster: broadcaster,
		consumer:    consumer,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Start consumes the broadcast queue until context cancellation.
func (w *BroadcastWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.BroadcastQueue),
			)

			err := w.consumer.Consume(groupCtx, queue.BroadcastQueue, w.Handle)
			if err != nil {
				w.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

// Handle runs one job. Validation failures are dropped so the job is acked;
// any other error asks the consumer to retry the job.
func (w *BroadcastWorker) Handle(ctx context.Context, msg queue.BroadcastMessage) error {
	logger := observability.WithContextLogger(w.logger, ctx).With(
		zap.String("jobId", msg.JobID),
		zap.String("mode", msg.Mode()),
	)

	var (
		result *domain.BroadcastResult
		err    error
	)
	if len(msg.Tokens) > 0 {
		result, err = w.broadcaster.SendToTokens(ctx, msg.Tokens, msg.Payload())
	} else {
		result, err = w.broadcaster.SendToAll(ctx, msg.Payload())
	}

	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			logger.Warn("dropping invalid broadcast job", zap.Error(err))
			return nil
		}
		return fmt.Errorf("broadcast job %s failed: %w", msg.JobID, err)
	}

	logger.Info("broadcast job finished",
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("total", result.Total),
		zap.Bool("canceled", result.Canceled),
		zap.String("message", result.Message),
	)
	return nil
}
