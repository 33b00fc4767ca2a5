package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindPurchase(ctx context.Context, db *gorm.DB, paymentIntentID string) (*Purchase, error)
	// InsertPurchase is insert-if-absent on payment_intent_id.
	InsertPurchase(ctx context.Context, db *gorm.DB, purchase *Purchase) (bool, error)
	UpdatePurchase(ctx context.Context, db *gorm.DB, purchase *Purchase) error
}
