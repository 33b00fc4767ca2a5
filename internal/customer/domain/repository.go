package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*Profile, error)
	FindByGatewayCustomer(ctx context.Context, db *gorm.DB, customerID string) (*Profile, error)
	LinkGatewayCustomer(ctx context.Context, db *gorm.DB, userID, customerID, email string, now time.Time) error
	UpdateTier(ctx context.Context, db *gorm.DB, userID, tier string, now time.Time) error
	UpdateSubscriptionMirror(ctx context.Context, db *gorm.DB, userID string, mirror SubscriptionMirror, now time.Time) error
	CompletePendingReferral(ctx context.Context, db *gorm.DB, referredUserID string, now time.Time) (bool, error)
}
