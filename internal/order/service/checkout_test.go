package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	customerdomain "github.com/smallbiznis/storefront/internal/customer/domain"
	customerrepo "github.com/smallbiznis/storefront/internal/customer/repository"
	customerservice "github.com/smallbiznis/storefront/internal/customer/service"
	discountdomain "github.com/smallbiznis/storefront/internal/discount/domain"
	discountrepo "github.com/smallbiznis/storefront/internal/discount/repository"
	discountservice "github.com/smallbiznis/storefront/internal/discount/service"
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	"github.com/smallbiznis/storefront/internal/inventory/holds"
	inventoryrepo "github.com/smallbiznis/storefront/internal/inventory/repository"
	inventoryservice "github.com/smallbiznis/storefront/internal/inventory/service"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	orderrepo "github.com/smallbiznis/storefront/internal/order/repository"
	"github.com/smallbiznis/storefront/internal/order/service"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	paymentmock "github.com/smallbiznis/storefront/internal/payment/domain/mock"
	"github.com/smallbiznis/storefront/internal/providers/analytics"
	"github.com/smallbiznis/storefront/internal/providers/analytics/analyticstest"
	"github.com/smallbiznis/storefront/internal/providers/email"
	subscriptiondomain "github.com/smallbiznis/storefront/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/storefront/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/storefront/internal/subscription/service"
	"github.com/smallbiznis/storefront/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type sentEmail struct {
	to       []string
	template string
	data     interface{}
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return f.SendTemplate(ctx, to, "", htmlBody)
}

func (f *fakeEmail) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{to: to, template: templateName, data: data})
	return f.err
}

type fakeAlerts struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeAlerts) PostMessage(ctx context.Context, channelID string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

type fixture struct {
	svc      orderdomain.Service
	db       *gorm.DB
	gateway  *paymentmock.MockGateway
	email    *fakeEmail
	alerts   *fakeAlerts
	tracker  *analyticstest.Recorder
	customer customerdomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	db := dbtest.Open(t,
		&orderdomain.Order{},
		&customerdomain.Profile{},
		&customerdomain.Referral{},
		&subscriptiondomain.Subscription{},
		&inventorydomain.Variant{},
		&inventorydomain.Adjustment{},
		&discountdomain.Discount{},
		&discountdomain.PromotionRedemption{},
	)
	require.NoError(t, db.Create(&inventorydomain.Variant{ID: "v1", SKU: "MUG", GatewayPriceID: "price_mug", StockQuantity: 5, TrackInventory: true}).Error)
	require.NoError(t, db.Create(&discountdomain.Discount{ID: "d1", Code: "SAVE10", Active: true}).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	clk := clock.NewFakeClock(testNow)
	gateway := paymentmock.NewMockGateway(ctrl)
	tracker := &analyticstest.Recorder{}

	customerSvc := customerservice.New(customerservice.Params{DB: db, Log: log, Repo: customerrepo.Provide(), Clock: clk})
	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Repo:        subscriptionrepo.Provide(),
		Gateway:     gateway,
		CustomerSvc: customerSvc,
		Tracker:     tracker,
		Catalog: config.NewStaticCatalogHolder(config.Catalog{Plans: []config.Plan{
			{PriceID: "price_pro", Label: "Pro"},
		}}),
		Clock: clk,
	})
	inventorySvc := inventoryservice.New(inventoryservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  inventoryrepo.Provide(),
		Holds: holds.NoOpStore{},
		Clock: clk,
	})
	discountSvc := discountservice.New(discountservice.Params{DB: db, Log: log, GenID: node, Repo: discountrepo.Provide(), Clock: clk})

	mailer := &fakeEmail{}
	alerts := &fakeAlerts{}
	svc := service.New(service.Params{
		DB:              db,
		Log:             log,
		GenID:           node,
		Repo:            orderrepo.Provide(),
		Gateway:         gateway,
		CustomerSvc:     customerSvc,
		SubscriptionSvc: subscriptionSvc,
		InventorySvc:    inventorySvc,
		DiscountSvc:     discountSvc,
		Email:           mailer,
		Alerts:          alerts,
		Tracker:         tracker,
		Clock:           clk,
	})
	return fixture{
		svc:      svc,
		db:       db,
		gateway:  gateway,
		email:    mailer,
		alerts:   alerts,
		tracker:  tracker,
		customer: customerSvc,
	}
}

func paymentSession() *paymentdomain.CheckoutSession {
	return &paymentdomain.CheckoutSession{
		ID:              "cs_test_1",
		Mode:            paymentdomain.SessionModePayment,
		PaymentStatus:   paymentdomain.SessionPaymentStatusPaid,
		PaymentIntentID: "pi_1",
		CustomerID:      "cus_1",
		CustomerEmail:   "buyer@example.com",
		Currency:        "usd",
		AmountSubtotal:  2778,
		AmountTotal:     2500,
		AmountDiscount:  278,
		Metadata: map[string]string{
			paymentdomain.MetadataUserID:       "user_1",
			paymentdomain.MetadataDiscountID:   "d1",
			paymentdomain.MetadataDiscountCode: "SAVE10",
		},
		ShippingName:    "Ada",
		ShippingAddress: &paymentdomain.Address{City: "Springfield", Country: "US"},
	}
}

func mugLineItems(qty int64) []paymentdomain.LineItem {
	return []paymentdomain.LineItem{{
		ID:            "li_1",
		Description:   "Mug",
		PriceID:       "price_other",
		ProductID:     "prod_mug",
		Quantity:      qty,
		UnitAmount:    1389,
		AmountTotal:   1389 * qty,
		Currency:      "usd",
		PriceMetadata: map[string]string{paymentdomain.MetadataVariantID: "v1"},
	}}
}

func stock(t *testing.T, db *gorm.DB) int64 {
	return dbtest.Count(t, db, "SELECT stock_quantity FROM product_variants WHERE id = ?", "v1")
}

func TestCheckoutPaymentEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.EXPECT().ListLineItems(gomock.Any(), "cs_test_1").Return(mugLineItems(2), nil)

	require.NoError(t, f.svc.HandleCheckoutCompleted(ctx, paymentSession()))

	var orders []orderdomain.Order
	require.NoError(t, f.db.Find(&orders).Error)
	require.Len(t, orders, 1)
	order := orders[0]
	assert.Equal(t, int64(2500), order.AmountTotal)
	assert.Equal(t, orderdomain.StatusCompleted, order.Status)
	assert.Equal(t, orderdomain.FulfillmentPending, order.FulfillmentStatus)
	assert.Equal(t, "SAVE10", order.DiscountCode)
	assert.Equal(t, discountdomain.TypeLocal, order.DiscountType)
	assert.Equal(t, "Springfield", order.ShippingAddress.Data().City)

	assert.Equal(t, int64(3), stock(t, f.db))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM inventory_adjustments WHERE variant_id = ? AND quantity_delta = ?", "v1", -2))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT redemption_count FROM discounts WHERE id = ?", "d1"))

	require.Len(t, f.email.sent, 1)
	assert.Equal(t, email.TemplateOrderConfirmation, f.email.sent[0].template)
	confirmation, ok := f.email.sent[0].data.(orderdomain.OrderConfirmation)
	require.True(t, ok)
	require.Len(t, confirmation.Lines, 1)
	assert.Equal(t, int64(2), confirmation.Lines[0].Quantity)
	assert.Equal(t, int64(278), confirmation.DiscountAmount)

	purchases := f.tracker.Named(analytics.EventPurchaseCompleted)
	require.Len(t, purchases, 1)
	assert.Equal(t, true, purchases[0].Properties["is_first_purchase"])

	profile, err := f.customer.ResolveByGatewayCustomer(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", profile.UserID)
	assert.Empty(t, f.alerts.messages)
}

func TestCheckoutReplayKeepsOneOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.EXPECT().ListLineItems(gomock.Any(), "cs_test_1").Return(mugLineItems(2), nil).Times(2)

	require.NoError(t, f.svc.HandleCheckoutCompleted(ctx, paymentSession()))
	require.NoError(t, f.svc.HandleCheckoutCompleted(ctx, paymentSession()))

	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM orders WHERE session_id = ?", "cs_test_1"))
	assert.Equal(t, int64(3), stock(t, f.db))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT redemption_count FROM discounts WHERE id = ?", "d1"))
}

func TestCheckoutDecrementsEveryLineItemOfOneVariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	items := append(mugLineItems(2), paymentdomain.LineItem{
		ID:          "li_2",
		Description: "Mug (sale)",
		PriceID:     "price_mug",
		ProductID:   "prod_mug",
		Quantity:    1,
		UnitAmount:  999,
		AmountTotal: 999,
		Currency:    "usd",
	})
	f.gateway.EXPECT().ListLineItems(gomock.Any(), "cs_test_1").Return(items, nil).Times(2)

	require.NoError(t, f.svc.HandleCheckoutCompleted(ctx, paymentSession()))
	assert.Equal(t, int64(2), stock(t, f.db))
	assert.Equal(t, int64(2), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM inventory_adjustments WHERE session_id = ? AND variant_id = ?", "cs_test_1", "v1"))

	require.NoError(t, f.svc.HandleCheckoutCompleted(ctx, paymentSession()))
	assert.Equal(t, int64(2), stock(t, f.db))
	assert.Empty(t, f.alerts.messages)
}

func TestCheckoutNotificationFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.email.err = errors.New("smtp down")
	f.gateway.EXPECT().ListLineItems(gomock.Any(), "cs_test_1").Return(mugLineItems(2), nil)

	require.NoError(t, f.svc.HandleCheckoutCompleted(ctx, paymentSession()))

	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM orders"))
	assert.Equal(t, int64(3), stock(t, f.db))
	assert.Len(t, f.tracker.Named(analytics.EventPurchaseCompleted), 1)
}

func TestCheckoutShortfallAlertsWithoutFailing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.EXPECT().ListLineItems(gomock.Any(), "cs_test_1").Return(mugLineItems(9), nil)

	require.NoError(t, f.svc.HandleCheckoutCompleted(ctx, paymentSession()))

	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM orders"))
	assert.Equal(t, int64(5), stock(t, f.db))
	require.Len(t, f.alerts.messages, 1)
	assert.Contains(t, f.alerts.messages[0], "insufficient_stock")
	assert.Len(t, f.email.sent, 1)
}

func TestCheckoutCriticalFailureIsReturnedAfterAllSteps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.EXPECT().ListLineItems(gomock.Any(), "cs_test_1").Return(nil, errors.New("gateway timeout"))

	err := f.svc.HandleCheckoutCompleted(ctx, paymentSession())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load_line_items")

	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM orders"))
	assert.Empty(t, f.email.sent)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT redemption_count FROM discounts WHERE id = ?", "d1"))
}

func TestCheckoutUnpaidWaitsForAsyncPayment(t *testing.T) {
	f := newFixture(t)
	session := paymentSession()
	session.PaymentStatus = paymentdomain.SessionPaymentStatusUnpaid

	require.NoError(t, f.svc.HandleCheckoutCompleted(context.Background(), session))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM orders"))
}

func TestCheckoutGatewayCouponsRecordedWithoutLocalDiscount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.EXPECT().ListLineItems(gomock.Any(), "cs_test_1").Return(mugLineItems(1), nil)

	session := paymentSession()
	delete(session.Metadata, paymentdomain.MetadataDiscountID)
	delete(session.Metadata, paymentdomain.MetadataDiscountCode)
	session.Discounts = []paymentdomain.DiscountLine{{CouponID: "co_10", Code: "SAVE10", PercentOff: 10, Amount: 278}}

	require.NoError(t, f.svc.HandleCheckoutCompleted(ctx, session))

	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM promotion_redemptions WHERE coupon_id = ?", "co_10"))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "SELECT redemption_count FROM discounts WHERE id = ?", "d1"))

	var order orderdomain.Order
	require.NoError(t, f.db.First(&order).Error)
	assert.Equal(t, discountdomain.TypePercentage, order.DiscountType)
}

func TestCheckoutLocalDiscountWinsOverGatewayCoupons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.EXPECT().ListLineItems(gomock.Any(), "cs_test_1").Return(mugLineItems(1), nil)

	session := paymentSession()
	session.Discounts = []paymentdomain.DiscountLine{{CouponID: "co_10", Code: "SAVE10", PercentOff: 10, Amount: 278}}

	require.NoError(t, f.svc.HandleCheckoutCompleted(ctx, session))

	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM promotion_redemptions WHERE coupon_id = ?", "co_10"))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM promotion_redemptions WHERE session_id = ?", "cs_test_1"))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT redemption_count FROM discounts WHERE id = ?", "d1"))
}

func TestCheckoutSubscriptionMode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.db.Create(&customerdomain.Referral{
		ID:             7,
		ReferrerUserID: "user_ref",
		ReferredUserID: "user_1",
		Status:         customerdomain.ReferralStatusPending,
		CreatedAt:      testNow,
	}).Error)

	f.gateway.EXPECT().RetrieveSubscription(gomock.Any(), "sub_1").Return(&paymentdomain.SubscriptionDetail{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           "active",
		PriceID:          "price_pro",
		CurrentPeriodEnd: testNow.AddDate(0, 1, 0),
	}, nil)

	session := &paymentdomain.CheckoutSession{
		ID:             "cs_sub_1",
		Mode:           paymentdomain.SessionModeSubscription,
		PaymentStatus:  paymentdomain.SessionPaymentStatusPaid,
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		CustomerEmail:  "buyer@example.com",
		Metadata: map[string]string{
			paymentdomain.MetadataUserID:       "user_1",
			paymentdomain.MetadataPurchaseType: paymentdomain.PurchaseTypeTierUpgrade,
			paymentdomain.MetadataTier:         "pro",
		},
	}
	require.NoError(t, f.svc.HandleCheckoutCompleted(ctx, session))

	profile, err := f.customer.GetByUserID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "pro", profile.Tier)
	assert.Equal(t, "active", profile.SubscriptionStatus)
	assert.Equal(t, "Pro", profile.CurrentPlan)

	require.Len(t, f.email.sent, 1)
	assert.Equal(t, email.TemplateSubscriptionConfirmation, f.email.sent[0].template)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM referrals WHERE status = ?", customerdomain.ReferralStatusCompleted))

	upgrades := f.tracker.Named(analytics.EventTierUpgraded)
	require.Len(t, upgrades, 1)
	assert.Equal(t, "free", upgrades[0].Properties["from_tier"])
	assert.Len(t, f.tracker.Named(analytics.EventSubscriptionStarted), 1)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM orders"))
}

func TestCheckoutTierUpgradeTrackedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.EXPECT().ListLineItems(gomock.Any(), "cs_test_1").Return(mugLineItems(1), nil).Times(2)

	session := paymentSession()
	session.Metadata[paymentdomain.MetadataPurchaseType] = paymentdomain.PurchaseTypeTierUpgrade
	session.Metadata[paymentdomain.MetadataTier] = "pro"

	require.NoError(t, f.svc.HandleCheckoutCompleted(ctx, session))
	require.NoError(t, f.svc.HandleCheckoutCompleted(ctx, session))

	profile, err := f.customer.GetByUserID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "pro", profile.Tier)
	assert.Len(t, f.tracker.Named(analytics.EventTierUpgraded), 1)
}

func TestCheckoutSubscriptionSyncFailureIsCritical(t *testing.T) {
	f := newFixture(t)
	f.gateway.EXPECT().RetrieveSubscription(gomock.Any(), "sub_1").Return(nil, errors.New("gateway timeout"))

	err := f.svc.HandleCheckoutCompleted(context.Background(), &paymentdomain.CheckoutSession{
		ID:             "cs_sub_1",
		Mode:           paymentdomain.SessionModeSubscription,
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync_subscription")
	assert.Empty(t, f.email.sent)
}

func TestCheckoutRejectsEmptySession(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.HandleCheckoutCompleted(context.Background(), nil), orderdomain.ErrInvalidSession)
}
