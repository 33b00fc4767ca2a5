package analytics

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storefront/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.analytics",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In

	Cfg   config.Config
	Redis *redis.Client `optional:"true"`
}

func NewFromConfig(p Params) Tracker {
	if p.Redis == nil {
		return NoOpTracker{}
	}
	return NewStreamTracker(p.Redis, p.Cfg.Redis.AnalyticsStream)
}
