package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindDiscount(ctx context.Context, db *gorm.DB, id string) (*Discount, error)
	// IncrementRedemption is a single atomic counter update.
	IncrementRedemption(ctx context.Context, db *gorm.DB, id string, at time.Time) error
	// InsertRedemption is insert-if-absent on (session_id, coupon_id).
	InsertRedemption(ctx context.Context, db *gorm.DB, redemption *PromotionRedemption) (bool, error)
	CountRedemptionsByCustomer(ctx context.Context, db *gorm.DB, customerID, excludeSessionID string) (int64, error)
}
