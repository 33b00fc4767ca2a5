package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/storefront/internal/customer/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*domain.Profile, error) {
	var item domain.Profile
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindByGatewayCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.Profile, error) {
	var item domain.Profile
	err := db.WithContext(ctx).Where("gateway_customer_id = ?", customerID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// LinkGatewayCustomer creates the profile when the user has never checked out
// before. An existing email is kept when the gateway sends none.
func (r *repo) LinkGatewayCustomer(ctx context.Context, db *gorm.DB, userID, customerID, email string, now time.Time) error {
	profile := domain.Profile{
		UserID:            userID,
		Email:             strings.TrimSpace(email),
		GatewayCustomerID: &customerID,
		Tier:              "free",
		UpdatedAt:         now,
	}
	updates := []string{"gateway_customer_id", "updated_at"}
	if profile.Email != "" {
		updates = append(updates, "email")
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&profile).Error
}

func (r *repo) UpdateTier(ctx context.Context, db *gorm.DB, userID, tier string, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE customer_profiles
		 SET tier = ?, updated_at = ?
		 WHERE user_id = ?`,
		tier,
		now,
		userID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

func (r *repo) UpdateSubscriptionMirror(ctx context.Context, db *gorm.DB, userID string, mirror domain.SubscriptionMirror, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE customer_profiles
		 SET subscription_status = ?, current_plan = ?, updated_at = ?
		 WHERE user_id = ?`,
		mirror.Status,
		mirror.Plan,
		now,
		userID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

func (r *repo) CompletePendingReferral(ctx context.Context, db *gorm.DB, referredUserID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE referrals
		 SET status = ?, completed_at = ?
		 WHERE referred_user_id = ? AND status = ?`,
		domain.ReferralStatusCompleted,
		now,
		referredUserID,
		domain.ReferralStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
