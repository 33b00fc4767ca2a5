package domain

import (
	"context"
	"errors"

	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
)

// Service keeps local subscription rows and the profile mirror in step with the gateway.
type Service interface {
	Sync(ctx context.Context, detail *paymentdomain.SubscriptionDetail) (*Subscription, error)
	HandleDeleted(ctx context.Context, detail *paymentdomain.SubscriptionDetail) error
	HandleInvoicePaid(ctx context.Context, invoice *paymentdomain.Invoice) error
	HandleInvoicePaymentFailed(ctx context.Context, invoice *paymentdomain.Invoice) error
	// IsFirstForUser reports whether the user holds exactly one subscription row.
	IsFirstForUser(ctx context.Context, userID string) (bool, error)
}

var (
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidTransition    = errors.New("invalid_transition")
)
