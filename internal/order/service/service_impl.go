package service

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	customerdomain "github.com/smallbiznis/storefront/internal/customer/domain"
	discountdomain "github.com/smallbiznis/storefront/internal/discount/domain"
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	"github.com/smallbiznis/storefront/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/providers/analytics"
	"github.com/smallbiznis/storefront/internal/providers/email"
	"github.com/smallbiznis/storefront/internal/providers/slack"
	subscriptiondomain "github.com/smallbiznis/storefront/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Repo            orderdomain.Repository
	Gateway         paymentdomain.Gateway
	CustomerSvc     customerdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	InventorySvc    inventorydomain.Service
	DiscountSvc     discountdomain.Service
	Email           email.Provider
	Alerts          slack.Provider
	Tracker         analytics.Tracker
	Metrics         *metrics.Metrics         `optional:"true"`
	Pipeline        *metrics.PipelineMetrics `optional:"true"`
	Cfg             config.Config            `optional:"true"`
	Clock           clock.Clock              `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	repo            orderdomain.Repository
	gateway         paymentdomain.Gateway
	customerSvc     customerdomain.Service
	subscriptionSvc subscriptiondomain.Service
	inventorySvc    inventorydomain.Service
	discountSvc     discountdomain.Service
	email           email.Provider
	alerts          slack.Provider
	alertChannel    string
	tracker         analytics.Tracker
	metrics         *metrics.Metrics
	pipeline        *metrics.PipelineMetrics
	clock           clock.Clock
}

func New(p Params) orderdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("order.service"),
		genID:           p.GenID,
		repo:            p.Repo,
		gateway:         p.Gateway,
		customerSvc:     p.CustomerSvc,
		subscriptionSvc: p.SubscriptionSvc,
		inventorySvc:    p.InventorySvc,
		discountSvc:     p.DiscountSvc,
		email:           p.Email,
		alerts:          p.Alerts,
		alertChannel:    p.Cfg.Slack.Channel,
		tracker:         p.Tracker,
		metrics:         p.Metrics,
		pipeline:        p.Pipeline,
		clock:           clk,
	}
}
