package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/push-broadcast/internal/domain"
	"github.com/kursadbilgin/push-broadcast/internal/observability"
	"github.com/kursadbilgin/push-broadcast/internal/provider"
	"github.com/kursadbilgin/push-broadcast/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ModeAll    = "all"
	ModeTokens = "tokens"

	defaultConcurrency = 1
	ticketErrorReason  = "ticket_error"
)

// Registry is the read side of the recipient registry.
type Registry interface {
	ListAddresses(ctx context.Context) ([]string, error)
}

type Option func(*Dispatcher)

// WithConcurrency bounds how many batches may be in flight at once.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n >= defaultConcurrency {
			d.concurrency = n
		}
	}
}

func WithRateLimiter(limiter ratelimit.RateLimiter) Option {
	return func(d *Dispatcher) {
		d.limiter = limiter
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// BatchResult is the outcome of one provider call. Err is set when the whole
// batch failed; Skipped is set when the batch was never submitted.
type BatchResult struct {
	Index    int
	Size     int
	Receipts []domain.Receipt
	Err      error
	Skipped  bool
}

// Dispatcher fans a payload out to every valid address in provider-sized batches.
type Dispatcher struct {
	registry    Registry
	provider    provider.Provider
	limiter     ratelimit.RateLimiter
	metrics     *observability.Metrics
	logger      *zap.Logger
	concurrency int
}

func NewDispatcher(registry Registry, p provider.Provider, logger *zap.Logger, opts ...Option) (*Dispatcher, error) {
	if p == nil {
		return nil, fmt.Errorf("push provider is required")
	}
	if p.MaxBatchSize() < 1 {
		return nil, fmt.Errorf("push provider batch size must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		registry:    registry,
		provider:    p,
		logger:      logger,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// SendToAll broadcasts payload to a snapshot of every registered address.
func (d *Dispatcher) SendToAll(ctx context.Context, payload domain.Payload) (*domain.BroadcastResult, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if d.registry == nil {
		return nil, fmt.Errorf("recipient registry is not configured")
	}

	addresses, err := d.registry.ListAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list push tokens: %w", err)
	}
	if len(addresses) == 0 {
		return emptyResult(domain.MessageNoTokensRegistered), nil
	}

	d.metrics.IncBroadcast(ModeAll)
	return d.dispatch(ctx, addresses, payload), nil
}

// SendToTokens broadcasts payload to the given addresses.
func (d *Dispatcher) SendToTokens(ctx context.Context, tokens []string, payload domain.Payload) (*domain.BroadcastResult, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: tokens must be a non-empty array", domain.ErrValidation)
	}

	d.metrics.IncBroadcast(ModeTokens)
	return d.dispatch(ctx, tokens, payload), nil
}

func (d *Dispatcher) dispatch(ctx context.Context, addresses []string, payload domain.Payload) *domain.BroadcastResult {
	logger := observability.WithContextLogger(d.logger, ctx)

	messages := make([]domain.Message, 0, len(addresses))
	for _, addr := range addresses {
		if !d.provider.IsValidAddress(addr) {
			logger.Warn("skipping invalid push token", zap.String("token", addr))
			d.metrics.IncInvalidToken()
			continue
		}
		messages = append(messages, domain.BuildMessage(payload, addr))
	}
	if len(messages) == 0 {
		return emptyResult(domain.MessageNoValidTokens)
	}

	batches := Chunk(messages, d.provider.MaxBatchSize())
	results := d.sendBatches(ctx, batches)

	for _, r := range results {
		switch {
		case r.Skipped:
		case r.Err != nil:
			reason := provider.FailureReason(r.Err)
			logger.Error("push batch failed",
				zap.Int("batch", r.Index),
				zap.Int("size", r.Size),
				zap.String("reason", reason),
				zap.Error(r.Err),
			)
			d.metrics.AddMessagesFailed(reason, r.Size)
		default:
			d.recordReceipts(r.Receipts)
		}
	}

	result := Fold(results)
	if result.Canceled {
		logger.Warn("broadcast canceled before all batches were sent",
			zap.Int("batches", len(batches)),
			zap.Int("total", result.Total),
		)
	}
	logger.Info("broadcast finished",
		zap.Int("batches", len(batches)),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("total", result.Total),
	)

	return result
}

func (d *Dispatcher) sendBatches(ctx context.Context, batches [][]domain.Message) []BatchResult {
	results := make([]BatchResult, len(batches))

	if d.concurrency <= defaultConcurrency || len(batches) == 1 {
		for i, batch := range batches {
			results[i] = d.sendBatch(ctx, i, batch)
		}
		return results
	}

	// Batch failures are values, so a plain group keeps siblings running.
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, batch := range batches {
		if ctx.Err() != nil {
			results[i] = BatchResult{Index: i, Size: len(batch), Skipped: true}
			continue
		}
		g.Go(func() error {
			results[i] = d.sendBatch(ctx, i, batch)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) sendBatch(ctx context.Context, index int, batch []domain.Message) BatchResult {
	result := BatchResult{Index: index, Size: len(batch)}

	if ctx.Err() != nil {
		result.Skipped = true
		return result
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, ratelimit.ScopePush); err != nil {
			if ctx.Err() != nil {
				result.Skipped = true
				return result
			}
			d.logger.Warn("rate limiter unavailable, sending batch unthrottled",
				zap.Int("batch", index),
				zap.Error(err),
			)
		}
	}

	d.metrics.IncBatchesInFlight()
	defer d.metrics.DecBatchesInFlight()

	start := time.Now()
	receipts, err := d.provider.SendBatch(ctx, batch)
	d.metrics.ObserveBatchSendDuration(time.Since(start))

	if err != nil {
		result.Err = err
		return result
	}
	if len(receipts) != len(batch) {
		result.Err = &provider.ProviderError{
			Message: fmt.Sprintf("expected %d push tickets, got %d", len(batch), len(receipts)),
		}
		return result
	}

	result.Receipts = receipts
	return result
}

func (d *Dispatcher) recordReceipts(receipts []domain.Receipt) {
	sent := 0
	for _, receipt := range receipts {
		if receipt.OK() {
			sent++
			continue
		}
		reason := receipt.ErrorCode()
		if reason == "" {
			reason = ticketErrorReason
		}
		d.metrics.AddMessagesFailed(strings.ToLower(reason), 1)
	}
	d.metrics.AddMessagesSent(sent)
}

// Fold aggregates batch outcomes in batch order.
func Fold(results []BatchResult) *domain.BroadcastResult {
	out := &domain.BroadcastResult{
		Success: true,
		Tickets: make([]domain.Receipt, 0),
	}

	for _, r := range results {
		if r.Skipped {
			out.Canceled = true
			continue
		}
		if r.Err != nil {
			out.Failed += r.Size
			continue
		}
		for _, receipt := range r.Receipts {
			if receipt.OK() {
				out.Sent++
			} else {
				out.Failed++
			}
		}
		out.Tickets = append(out.Tickets, r.Receipts...)
	}
	out.Total = out.Sent + out.Failed

	return out
}

// Chunk splits messages into contiguous batches of at most size elements.
func Chunk(messages []domain.Message, size int) [][]domain.Message {
	if len(messages) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}

	batches := make([][]domain.Message, 0, (len(messages)+size-1)/size)
	for start := 0; start < len(messages); start += size {
		end := min(start+size, len(messages))
		batches = append(batches, messages[start:end:end])
	}
	return batches
}

func emptyResult(message string) *domain.BroadcastResult {
	return &domain.BroadcastResult{
		Success: true,
		Tickets: make([]domain.Receipt, 0),
		Message: message,
	}
}
