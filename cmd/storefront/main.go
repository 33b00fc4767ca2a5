package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/cache"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/customer"
	"github.com/smallbiznis/storefront/internal/discount"
	"github.com/smallbiznis/storefront/internal/inventory"
	"github.com/smallbiznis/storefront/internal/migration"
	"github.com/smallbiznis/storefront/internal/observability"
	"github.com/smallbiznis/storefront/internal/order"
	"github.com/smallbiznis/storefront/internal/payment"
	"github.com/smallbiznis/storefront/internal/providers"
	"github.com/smallbiznis/storefront/internal/server"
	"github.com/smallbiznis/storefront/internal/subscription"
	"github.com/smallbiznis/storefront/internal/webhook"
	"github.com/smallbiznis/storefront/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		fx.Provide(clock.New),
		db.Module,
		migration.Module,
		cache.Module,
		providers.Module,

		// Functional Domains
		customer.Module,
		subscription.Module,
		inventory.Module,
		discount.Module,
		order.Module,
		payment.Module,
		webhook.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
