package authorization

import (
	"context"
	"errors"
)

// Service gates the operator endpoints.
type Service interface {
	// Authenticate maps a bearer token onto a subject.
	Authenticate(ctx context.Context, token string) (string, error)
	Authorize(ctx context.Context, subject string, object string, action string) error
}

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
