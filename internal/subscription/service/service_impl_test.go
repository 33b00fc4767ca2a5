package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	customerdomain "github.com/smallbiznis/storefront/internal/customer/domain"
	customerrepo "github.com/smallbiznis/storefront/internal/customer/repository"
	customerservice "github.com/smallbiznis/storefront/internal/customer/service"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	paymentmock "github.com/smallbiznis/storefront/internal/payment/domain/mock"
	"github.com/smallbiznis/storefront/internal/providers/analytics"
	"github.com/smallbiznis/storefront/internal/providers/analytics/analyticstest"
	"github.com/smallbiznis/storefront/internal/subscription/domain"
	"github.com/smallbiznis/storefront/internal/subscription/repository"
	"github.com/smallbiznis/storefront/internal/subscription/service"
	"github.com/smallbiznis/storefront/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      domain.Service
	db       *gorm.DB
	gateway  *paymentmock.MockGateway
	tracker  *analyticstest.Recorder
	customer customerdomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	db := dbtest.Open(t, &domain.Subscription{}, &customerdomain.Profile{}, &customerdomain.Referral{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(testNow)
	customerSvc := customerservice.New(customerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  customerrepo.Provide(),
		Clock: clk,
	})
	gateway := paymentmock.NewMockGateway(ctrl)
	tracker := &analyticstest.Recorder{}
	catalog := config.NewStaticCatalogHolder(config.Catalog{Plans: []config.Plan{
		{PriceID: "price_pro", ProductID: "prod_pro", Label: "Pro", Tier: "pro"},
		{PriceID: "price_team", ProductID: "prod_team", Label: "Team", Tier: "team"},
	}})

	svc := service.NewService(service.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        repository.Provide(),
		Gateway:     gateway,
		CustomerSvc: customerSvc,
		Tracker:     tracker,
		Catalog:     catalog,
		Clock:       clk,
	})
	return fixture{svc: svc, db: db, gateway: gateway, tracker: tracker, customer: customerSvc}
}

func detail(id, status, priceID, productID string) *paymentdomain.SubscriptionDetail {
	return &paymentdomain.SubscriptionDetail{
		ID:                 id,
		CustomerID:         "cus_1",
		Status:             status,
		PriceID:            priceID,
		ProductID:          productID,
		CurrentPeriodStart: testNow,
		CurrentPeriodEnd:   testNow.AddDate(0, 1, 0),
	}
}

func profile(t *testing.T, f fixture) *customerdomain.Profile {
	t.Helper()
	p, err := f.customer.GetByUserID(context.Background(), "user_1")
	require.NoError(t, err)
	return p
}

func TestSyncUpsertsAndMirrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.customer.LinkGatewayCustomer(ctx, "user_1", "cus_1", "a@example.com"))

	sub, err := f.svc.Sync(ctx, detail("sub_1", "active", "price_pro", "prod_pro"))
	require.NoError(t, err)
	assert.Equal(t, "user_1", sub.UserID)
	assert.Equal(t, "Pro", sub.PlanLabel)

	_, err = f.svc.Sync(ctx, detail("sub_1", "active", "price_pro", "prod_pro"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM subscriptions"))
	p := profile(t, f)
	assert.Equal(t, "active", p.SubscriptionStatus)
	assert.Equal(t, "Pro", p.CurrentPlan)
	assert.Len(t, f.tracker.Named(analytics.EventSubscriptionStarted), 1)

	first, err := f.svc.IsFirstForUser(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestSyncLabelFallsBackToGatewayProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.customer.LinkGatewayCustomer(ctx, "user_1", "cus_1", ""))

	f.gateway.EXPECT().RetrieveProduct(gomock.Any(), "prod_other").
		Return(&paymentdomain.Product{ID: "prod_other", Name: "Other Plan"}, nil)

	sub, err := f.svc.Sync(ctx, detail("sub_1", "trialing", "price_other", "prod_other"))
	require.NoError(t, err)
	assert.Equal(t, "Other Plan", sub.PlanLabel)
}

func TestSyncOrphanedCustomerStillStoresRow(t *testing.T) {
	f := newFixture(t)

	sub, err := f.svc.Sync(context.Background(), detail("sub_1", "active", "price_pro", "prod_pro"))
	require.NoError(t, err)
	assert.Empty(t, sub.UserID)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM subscriptions"))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM customer_profiles"))
	assert.Empty(t, f.tracker.Events())
}

func TestActivationTrackedWhenOwnerLinkedAfterCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Sync(ctx, detail("sub_1", "active", "price_pro", "prod_pro"))
	require.NoError(t, err)
	assert.Empty(t, f.tracker.Named(analytics.EventSubscriptionStarted))

	require.NoError(t, f.customer.LinkGatewayCustomer(ctx, "user_1", "cus_1", "a@example.com"))

	sub, err := f.svc.Sync(ctx, detail("sub_1", "active", "price_pro", "prod_pro"))
	require.NoError(t, err)
	assert.Equal(t, "user_1", sub.UserID)

	_, err = f.svc.Sync(ctx, detail("sub_1", "active", "price_pro", "prod_pro"))
	require.NoError(t, err)

	started := f.tracker.Named(analytics.EventSubscriptionStarted)
	require.Len(t, started, 1)
	assert.Equal(t, "user_1", started[0].Properties["user_id"])
	assert.Equal(t, "active", profile(t, f).SubscriptionStatus)
}

func TestCancellationGuardKeepsActiveSibling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.customer.LinkGatewayCustomer(ctx, "user_1", "cus_1", ""))

	_, err := f.svc.Sync(ctx, detail("sub_pro", "active", "price_pro", "prod_pro"))
	require.NoError(t, err)
	_, err = f.svc.Sync(ctx, detail("sub_team", "active", "price_team", "prod_team"))
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleDeleted(ctx, detail("sub_team", "active", "price_team", "prod_team")))
	p := profile(t, f)
	assert.Equal(t, "active", p.SubscriptionStatus)
	assert.Equal(t, "Pro", p.CurrentPlan)

	require.NoError(t, f.svc.HandleDeleted(ctx, detail("sub_pro", "active", "price_pro", "prod_pro")))
	p = profile(t, f)
	assert.Equal(t, "canceled", p.SubscriptionStatus)
}

func TestCanceledIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.customer.LinkGatewayCustomer(ctx, "user_1", "cus_1", ""))

	require.NoError(t, f.svc.HandleDeleted(ctx, detail("sub_1", "active", "price_pro", "prod_pro")))

	sub, err := f.svc.Sync(ctx, detail("sub_1", "active", "price_pro", "prod_pro"))
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
	assert.Equal(t, "canceled", profile(t, f).SubscriptionStatus)
}

func TestInvoicePaymentFailedSetsPastDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.customer.LinkGatewayCustomer(ctx, "user_1", "cus_1", ""))
	_, err := f.svc.Sync(ctx, detail("sub_1", "active", "price_pro", "prod_pro"))
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleInvoicePaymentFailed(ctx, &paymentdomain.Invoice{ID: "in_1", SubscriptionID: "sub_1"}))
	assert.Equal(t, "past_due", profile(t, f).SubscriptionStatus)

	require.NoError(t, f.svc.HandleInvoicePaymentFailed(ctx, &paymentdomain.Invoice{ID: "in_2", SubscriptionID: "sub_unknown"}))
	require.NoError(t, f.svc.HandleInvoicePaymentFailed(ctx, &paymentdomain.Invoice{ID: "in_3"}))
}

func TestInvoicePaidRefetchesSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.customer.LinkGatewayCustomer(ctx, "user_1", "cus_1", ""))
	_, err := f.svc.Sync(ctx, detail("sub_1", "past_due", "price_pro", "prod_pro"))
	require.NoError(t, err)

	f.gateway.EXPECT().RetrieveSubscription(gomock.Any(), "sub_1").
		Return(detail("sub_1", "active", "price_pro", "prod_pro"), nil)

	require.NoError(t, f.svc.HandleInvoicePaid(ctx, &paymentdomain.Invoice{ID: "in_1", SubscriptionID: "sub_1"}))
	assert.Equal(t, "active", profile(t, f).SubscriptionStatus)
	// recovery from past_due is not a new activation
	assert.Empty(t, f.tracker.Named(analytics.EventSubscriptionStarted))

	require.NoError(t, f.svc.HandleInvoicePaid(ctx, &paymentdomain.Invoice{ID: "in_2"}))
}

func TestInvoicePaidPropagatesGatewayError(t *testing.T) {
	f := newFixture(t)
	f.gateway.EXPECT().RetrieveSubscription(gomock.Any(), "sub_1").Return(nil, errors.New("timeout"))

	err := f.svc.HandleInvoicePaid(context.Background(), &paymentdomain.Invoice{ID: "in_1", SubscriptionID: "sub_1"})
	assert.Error(t, err)
}
