package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/kursadbilgin/push-broadcast/internal/domain"
	"github.com/kursadbilgin/push-broadcast/internal/queue"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBroadcastWorkerHandleRoutesByTokens(t *testing.T) {
	t.Parallel()

	var allCalls, tokenCalls int
	var gotTokens []string
	broadcaster := &fakeBroadcaster{
		sendToAllFn: func(ctx context.Context, payload domain.Payload) (*domain.BroadcastResult, error) {
			allCalls++
			if payload.Title != "t" || payload.ImageURL != "https://cdn.example/i.png" {
				t.Fatalf("payload = %+v, want job payload", payload)
			}
			return &domain.BroadcastResult{Success: true, Sent: 3, Total: 3}, nil
		},
		sendToTokensFn: func(ctx context.Context, tokens []string, payload domain.Payload) (*domain.BroadcastResult, error) {
			tokenCalls++
			gotTokens = tokens
			return &domain.BroadcastResult{Success: true, Sent: 1, Total: 1}, nil
		},
	}

	worker := newTestWorker(t, broadcaster, &fakeConsumer{}, zap.NewNop())

	msg := queue.BroadcastMessage{JobID: "j1", Title: "t", Body: "b", ImageURL: "https://cdn.example/i.png"}
	if err := worker.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	msg.Tokens = []string{"ExponentPushToken[a]"}
	if err := worker.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if allCalls != 1 || tokenCalls != 1 {
		t.Fatalf("calls = all %d tokens %d, want 1/1", allCalls, tokenCalls)
	}
	if len(gotTokens) != 1 || gotTokens[0] != "ExponentPushToken[a]" {
		t.Fatalf("tokens = %v, want job tokens", gotTokens)
	}
}

func TestBroadcastWorkerHandleAcksValidationErrors(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.WarnLevel)
	broadcaster := &fakeBroadcaster{
		sendToAllFn: func(ctx context.Context, payload domain.Payload) (*domain.BroadcastResult, error) {
			return nil, domain.ErrValidation
		},
	}
	worker := newTestWorker(t, broadcaster, &fakeConsumer{}, zap.New(core))

	if err := worker.Handle(context.Background(), queue.BroadcastMessage{JobID: "j1", Title: "t", Body: "b"}); err != nil {
		t.Fatalf("Handle() error = %v, want nil", err)
	}
	if recorded.FilterMessage("dropping invalid broadcast job").Len() != 1 {
		t.Fatal("expected a warning for the dropped job")
	}
}

func TestBroadcastWorkerHandleReturnsRegistryErrors(t *testing.T) {
	t.Parallel()

	registryErr := errors.New("registry unreachable")
	broadcaster := &fakeBroadcaster{
		sendToAllFn: func(ctx context.Context, payload domain.Payload) (*domain.BroadcastResult, error) {
			return nil, registryErr
		},
	}
	worker := newTestWorker(t, broadcaster, &fakeConsumer{}, zap.NewNop())

	err := worker.Handle(context.Background(), queue.BroadcastMessage{JobID: "j1", Title: "t", Body: "b"})
	if !errors.Is(err, registryErr) {
		t.Fatalf("Handle() error = %v, want %v", err, registryErr)
	}
}

func TestBroadcastWorkerStartRunsConsumers(t *testing.T) {
	t.Parallel()

	var consumers atomic.Int32
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
			if queueName != queue.BroadcastQueue {
				t.Errorf("queue = %s, want %s", queueName, queue.BroadcastQueue)
			}
			consumers.Add(1)
			return nil
		},
	}

	worker, err := NewBroadcastWorker(&fakeBroadcaster{}, consumer, 3, nil)
	if err != nil {
		t.Fatalf("NewBroadcastWorker() error = %v", err)
	}
	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := consumers.Load(); got != 3 {
		t.Fatalf("consumers = %d, want 3", got)
	}
}

func TestBroadcastWorkerStartPropagatesConsumerError(t *testing.T) {
	t.Parallel()

	consumeErr := errors.New("consume failed")
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
			return consumeErr
		},
	}

	worker := newTestWorker(t, &fakeBroadcaster{}, consumer, zap.NewNop())

	if err := worker.Start(context.Background()); !errors.Is(err, consumeErr) {
		t.Fatalf("Start() error = %v, want %v", err, consumeErr)
	}
}

func TestNewBroadcastWorkerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewBroadcastWorker(nil, &fakeConsumer{}, 1, nil); err == nil {
		t.Fatal("expected error for nil broadcaster")
	}
	if _, err := NewBroadcastWorker(&fakeBroadcaster{}, nil, 1, nil); err == nil {
		t.Fatal("expected error for nil consumer")
	}

	worker, err := NewBroadcastWorker(&fakeBroadcaster{}, &fakeConsumer{}, 0, nil)
	if err != nil {
		t.Fatalf("NewBroadcastWorker() error = %v", err)
	}
	if worker.concurrency != minWorkerConcurrency {
		t.Fatalf("concurrency = %d, want %d", worker.concurrency, minWorkerConcurrency)
	}
}

func newTestWorker(t *testing.T, broadcaster Broadcaster, consumer queue.Consumer, logger *zap.Logger) *BroadcastWorker {
	t.Helper()

	worker, err := NewBroadcastWorker(broadcaster, consumer, 1, logger)
	if err != nil {
		t.Fatalf("NewBroadcastWorker() error = %v", err)
	}
	return worker
}

type fakeBroadcaster struct {
	sendToAllFn    func(ctx context.Context, payload domain.Payload) (*domain.BroadcastResult, error)
	sendToTokensFn func(ctx context.Context, tokens []string, payload domain.Payload) (*domain.BroadcastResult, error)
}

func (f *fakeBroadcaster) SendToAll(ctx context.Context, payload domain.Payload) (*domain.BroadcastResult, error) {
	if f.sendToAllFn != nil {
		return f.sendToAllFn(ctx, payload)
	}
	return &domain.BroadcastResult{Success: true}, nil
}

func (f *fakeBroadcaster) SendToTokens(ctx context.Context, tokens []string, payload domain.Payload) (*domain.BroadcastResult, error) {
	if f.sendToTokensFn != nil {
		return f.sendToTokensFn(ctx, tokens, payload)
	}
	return &domain.BroadcastResult{Success: true}, nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	return nil
}
