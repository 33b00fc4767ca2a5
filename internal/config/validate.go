package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidConfig = errors.New("invalid_config")

var configValidator = validator.New()

// Validate checks settings the webhook pipeline cannot run without.
func (c Config) Validate() error {
	if err := configValidator.Struct(c.Stripe); err != nil {
		return fmt.Errorf("%w: stripe: %v", ErrInvalidConfig, err)
	}
	if c.Stripe.SignatureTolerance < 0 {
		return fmt.Errorf("%w: negative signature tolerance", ErrInvalidConfig)
	}
	return nil
}
