package domain

import (
	"context"
	"errors"
)

type TierChange struct {
	UserID   string
	FromTier string
	ToTier   string
}

// Changed is false when the profile already had the requested tier.
func (c TierChange) Changed() bool {
	return c.FromTier != c.ToTier
}

type Service interface {
	// ResolveByGatewayCustomer returns ErrOrphanedCustomer when no profile is linked yet.
	ResolveByGatewayCustomer(ctx context.Context, customerID string) (*Profile, error)
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	LinkGatewayCustomer(ctx context.Context, userID, customerID, email string) error
	ApplyTierUpgrade(ctx context.Context, userID, tier string) (TierChange, error)
	MirrorSubscription(ctx context.Context, userID string, mirror SubscriptionMirror) error
	CompleteReferral(ctx context.Context, referredUserID string) (bool, error)
}

var (
	ErrOrphanedCustomer = errors.New("orphaned_customer")
	ErrProfileNotFound  = errors.New("profile_not_found")
	ErrInvalidUserID    = errors.New("invalid_user_id")
	ErrInvalidTier      = errors.New("invalid_tier")
)
