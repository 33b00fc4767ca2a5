package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/storefront/internal/discount/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindDiscount(ctx context.Context, db *gorm.DB, id string) (*domain.Discount, error) {
	var item domain.Discount
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) IncrementRedemption(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE discounts SET redemption_count = redemption_count + 1, updated_at = ? WHERE id = ?`,
		at,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrDiscountNotFound
	}
	return nil
}

func (r *repo) InsertRedemption(ctx context.Context, db *gorm.DB, redemption *domain.PromotionRedemption) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "coupon_id"}},
		DoNothing: true,
	}).Create(redemption)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CountRedemptionsByCustomer(ctx context.Context, db *gorm.DB, customerID, excludeSessionID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.PromotionRedemption{}).
		Where("customer_id = ? AND session_id <> ?", customerID, excludeSessionID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
