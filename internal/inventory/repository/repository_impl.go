package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/storefront/internal/inventory/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ResolveVariant(ctx context.Context, db *gorm.DB, priceID, productID, variantID string) (*domain.Variant, error) {
	lookups := []struct {
		column string
		value  string
	}{
		{"gateway_price_id", strings.TrimSpace(priceID)},
		{"gateway_product_id", strings.TrimSpace(productID)},
		{"id", strings.TrimSpace(variantID)},
	}
	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		var item domain.Variant
		err := db.WithContext(ctx).Where(l.column+" = ?", l.value).Order("id ASC").First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &item, nil
	}
	return nil, nil
}

func (r *repo) FindVariant(ctx context.Context, db *gorm.DB, variantID string) (*domain.Variant, error) {
	var item domain.Variant
	err := db.WithContext(ctx).Where("id = ?", variantID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) DecrementInventory(ctx context.Context, db *gorm.DB, adjustment *domain.Adjustment, at time.Time) (bool, error) {
	quantity := -adjustment.QuantityDelta
	if quantity <= 0 {
		return false, domain.ErrInvalidQuantity
	}
	if strings.TrimSpace(adjustment.LineItemID) == "" {
		adjustment.LineItemID = adjustment.VariantID
	}

	applied := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "line_item_id"}},
			DoNothing: true,
		}).Create(adjustment)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var variant domain.Variant
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", adjustment.VariantID).
			First(&variant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrUnknownVariant
		}
		if err != nil {
			return err
		}
		if !variant.TrackInventory {
			applied = true
			return nil
		}

		upd := tx.Exec(
			`UPDATE product_variants
			 SET stock_quantity = stock_quantity - ?, updated_at = ?
			 WHERE id = ? AND stock_quantity >= ?`,
			quantity,
			at,
			adjustment.VariantID,
			quantity,
		)
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return domain.ErrInsufficientStock
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
