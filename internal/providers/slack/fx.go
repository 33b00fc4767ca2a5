package slack

import (
	"github.com/smallbiznis/storefront/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.slack",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.Slack.WebhookURL == "" {
		return &NoOpProvider{}
	}
	return NewWebhook(cfg.Slack.WebhookURL, nil)
}
