package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertBySession(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"payment_intent_id",
			"user_id",
			"customer_id",
			"customer_email",
			"amount_subtotal",
			"amount_total",
			"currency",
			"payment_status",
			"discount_code",
			"discount_id",
			"discount_amount",
			"discount_type",
			"shipping_address",
			"updated_at",
		}),
	}).Create(order).Error
	if err != nil {
		return err
	}

	var stored domain.Order
	if err := db.WithContext(ctx).Where("session_id = ?", order.SessionID).First(&stored).Error; err != nil {
		return err
	}
	*order = stored
	return nil
}

func (r *repo) FindBySession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Where("session_id = ?", sessionID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		Order("created_at ASC").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, refundedAmount int64, refundedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, refunded_amount = ?, refunded_at = ?, updated_at = ?
		 WHERE id = ? AND refunded_amount < ?`,
		status,
		refundedAmount,
		refundedAt,
		refundedAt,
		id,
		refundedAmount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := db.WithContext(ctx).Model(&domain.Order{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, domain.ErrOrderNotFound
	}
	return false, nil
}

func (r *repo) CountPriorCompleted(ctx context.Context, db *gorm.DB, userID, email, excludeSessionID string) (int64, error) {
	query := db.WithContext(ctx).Model(&domain.Order{}).
		Where("session_id <> ?", excludeSessionID).
		Where("status IN ?", []string{domain.StatusCompleted, domain.StatusPartiallyRefunded})
	switch {
	case userID != "":
		query = query.Where("user_id = ?", userID)
	case email != "":
		query = query.Where("customer_email = ?", email)
	default:
		return 0, nil
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
