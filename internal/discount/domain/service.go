package domain

import (
	"context"
	"errors"

	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
)

type Service interface {
	// RecordPromotions stores one redemption per gateway discount line and
	// returns how many were new.
	RecordPromotions(ctx context.Context, session *paymentdomain.CheckoutSession, userID string) (int, error)
	// RedeemLocal counts a storefront discount once per session.
	RedeemLocal(ctx context.Context, session *paymentdomain.CheckoutSession, userID string) (bool, error)
}

var (
	ErrDiscountNotFound = errors.New("discount_not_found")
	ErrInvalidDiscount  = errors.New("invalid_discount")
)
