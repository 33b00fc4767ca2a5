package holds

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storefront/internal/inventory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Log    *zap.Logger
}

func NewFromClient(p Params) domain.HoldStore {
	if p.Client == nil {
		p.Log.Info("redis not configured, inventory holds disabled")
		return NoOpStore{}
	}
	return NewRedisStore(p.Client)
}
