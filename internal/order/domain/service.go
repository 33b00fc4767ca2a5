package domain

import (
	"context"
	"errors"

	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
)

// Service handles a finished checkout session.
type Service interface {
	HandleCheckoutCompleted(ctx context.Context, session *paymentdomain.CheckoutSession) error
}

var (
	ErrOrderNotFound  = errors.New("order_not_found")
	ErrInvalidSession = errors.New("invalid_session")
)
