package providers

import (
	"github.com/smallbiznis/storefront/internal/providers/analytics"
	"github.com/smallbiznis/storefront/internal/providers/email"
	"github.com/smallbiznis/storefront/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	analytics.Module,
	slack.Module,
)
