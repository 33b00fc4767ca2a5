package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*Subscription, error)
	FindBySubscriptionIDForUpdate(ctx context.Context, db *gorm.DB, subscriptionID string) (*Subscription, error)
	// Upsert writes every column except id and created_at on conflict.
	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	UpdateStatus(ctx context.Context, db *gorm.DB, subscriptionID string, status SubscriptionStatus, at time.Time) error
	// ListSiblings returns the other subscriptions held by the same user, or by
	// the same gateway customer when the user is unknown.
	ListSiblings(ctx context.Context, db *gorm.DB, subscription *Subscription) ([]Subscription, error)
	CountByUser(ctx context.Context, db *gorm.DB, userID string) (int64, error)
}
