package provider

import (
	"context"

	"github.com/kursadbilgin/push-broadcast/internal/domain"
)

// Provider is the outbound push delivery port.
type Provider interface {
	// IsValidAddress reports whether addr has the provider's token format.
	IsValidAddress(addr string) bool
	// MaxBatchSize is the largest number of messages accepted by one SendBatch call.
	MaxBatchSize() int
	// SendBatch submits messages and returns one receipt per message, in order.
	// On error no receipts are returned.
	SendBatch(ctx context.Context, messages []domain.Message) ([]domain.Receipt, error)
}
