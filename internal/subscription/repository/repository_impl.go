package repository

import (
	"context"
	"errors"
	"time"

	subscriptiondomain "github.com/smallbiznis/storefront/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*subscriptiondomain.Subscription, error) {
	var item subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindBySubscriptionIDForUpdate(ctx context.Context, db *gorm.DB, subscriptionID string) (*subscriptiondomain.Subscription, error) {
	var item subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("subscription_id = ?", subscriptionID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"customer_id",
			"user_id",
			"price_id",
			"product_id",
			"plan_label",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"canceled_at",
			"updated_at",
		}),
	}).Create(subscription).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, subscriptionID string, status subscriptiondomain.SubscriptionStatus, at time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = ? WHERE subscription_id = ?`,
		status,
		at,
		subscriptionID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return subscriptiondomain.ErrSubscriptionNotFound
	}
	return nil
}

func (r *repo) ListSiblings(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) ([]subscriptiondomain.Subscription, error) {
	query := db.WithContext(ctx).Where("subscription_id <> ?", subscription.SubscriptionID)
	if subscription.UserID != "" {
		query = query.Where("user_id = ? OR customer_id = ?", subscription.UserID, subscription.CustomerID)
	} else {
		query = query.Where("customer_id = ?", subscription.CustomerID)
	}

	var items []subscriptiondomain.Subscription
	if err := query.Order("updated_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountByUser(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&subscriptiondomain.Subscription{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
