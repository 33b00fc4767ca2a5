package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/storefront/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindPurchase(ctx context.Context, db *gorm.DB, paymentIntentID string) (*domain.Purchase, error) {
	var item domain.Purchase
	err := db.WithContext(ctx).Where("payment_intent_id = ?", paymentIntentID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) InsertPurchase(ctx context.Context, db *gorm.DB, purchase *domain.Purchase) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_intent_id"}},
		DoNothing: true,
	}).Create(purchase)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdatePurchase(ctx context.Context, db *gorm.DB, purchase *domain.Purchase) error {
	return db.WithContext(ctx).Exec(
		`UPDATE purchases
		 SET user_id = ?, amount = ?, currency = ?, status = ?,
			failure_code = ?, failure_message = ?, updated_at = ?
		 WHERE id = ?`,
		purchase.UserID,
		purchase.Amount,
		purchase.Currency,
		purchase.Status,
		purchase.FailureCode,
		purchase.FailureMessage,
		purchase.UpdatedAt,
		purchase.ID,
	).Error
}
