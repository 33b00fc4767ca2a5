package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// ResolveVariant matches by price id, then product id, then an explicit
	// variant id. It returns nil when nothing matches.
	ResolveVariant(ctx context.Context, db *gorm.DB, priceID, productID, variantID string) (*Variant, error)
	FindVariant(ctx context.Context, db *gorm.DB, variantID string) (*Variant, error)
	// DecrementInventory records the adjustment and decrements stock in one
	// transaction. A repeated (session, line item) pair is a no-op. An empty
	// line item id falls back to the variant id.
	DecrementInventory(ctx context.Context, db *gorm.DB, adjustment *Adjustment, at time.Time) (bool, error)
}

// HoldStore keeps short-lived stock reservations taken when checkout starts.
type HoldStore interface {
	Place(ctx context.Context, sessionID, variantID string, quantity int64, ttl time.Duration) error
	Release(ctx context.Context, sessionID string) error
	Reserved(ctx context.Context, variantID string) (int64, error)
}
