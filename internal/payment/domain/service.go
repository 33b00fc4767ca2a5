package domain

import (
	"context"
	"errors"
)

// Service records payment outcomes that arrive outside checkout completion.
type Service interface {
	RecordSucceeded(ctx context.Context, intent *PaymentIntent) error
	RecordFailed(ctx context.Context, intent *PaymentIntent) error
	RecordRefund(ctx context.Context, charge *Charge) error
}

var (
	ErrInvalidPayload = errors.New("invalid_payload")
	ErrInvalidEvent   = errors.New("invalid_event")
	ErrInvalidConfig  = errors.New("invalid_config")
	ErrNotFound       = errors.New("not_found")
)
