package payment

import (
	"github.com/smallbiznis/storefront/internal/payment/adapters/stripe"
	"github.com/smallbiznis/storefront/internal/payment/repository"
	paymentservice "github.com/smallbiznis/storefront/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(stripe.NewGateway),
	fx.Provide(paymentservice.NewService),
)
