package domain

import (
	"context"
	"errors"
	"time"

	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
)

type Service interface {
	// Decrement resolves the line item's variant and applies the order's
	// decrement exactly once per session and line item.
	Decrement(ctx context.Context, ref OrderRef, item paymentdomain.LineItem) (DecrementResult, error)
	Hold(ctx context.Context, sessionID, variantID string, quantity int64, ttl time.Duration) error
	ReleaseHolds(ctx context.Context, sessionID string) error
	// Available is stock on hand minus live reservations.
	Available(ctx context.Context, variantID string) (int64, error)
}

var (
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrUnknownVariant    = errors.New("unknown_variant")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
)
