package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	customerdomain "github.com/smallbiznis/storefront/internal/customer/domain"
	customerrepo "github.com/smallbiznis/storefront/internal/customer/repository"
	customerservice "github.com/smallbiznis/storefront/internal/customer/service"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	orderrepo "github.com/smallbiznis/storefront/internal/order/repository"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/payment/repository"
	"github.com/smallbiznis/storefront/internal/payment/service"
	"github.com/smallbiznis/storefront/internal/providers/analytics"
	"github.com/smallbiznis/storefront/internal/providers/analytics/analyticstest"
	"github.com/smallbiznis/storefront/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      paymentdomain.Service
	db       *gorm.DB
	tracker  *analyticstest.Recorder
	customer customerdomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t,
		&paymentdomain.Purchase{},
		&orderdomain.Order{},
		&customerdomain.Profile{},
		&customerdomain.Referral{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(testNow)
	customerSvc := customerservice.New(customerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  customerrepo.Provide(),
		Clock: clk,
	})
	tracker := &analyticstest.Recorder{}
	svc := service.NewService(service.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        repository.Provide(),
		OrderRepo:   orderrepo.Provide(),
		CustomerSvc: customerSvc,
		Tracker:     tracker,
		Clock:       clk,
	})
	return fixture{svc: svc, db: db, tracker: tracker, customer: customerSvc}
}

func TestRefundStatus(t *testing.T) {
	assert.Equal(t, orderdomain.StatusRefunded, service.RefundStatus(2500, 2500))
	assert.Equal(t, orderdomain.StatusPartiallyRefunded, service.RefundStatus(2500, 1000))
}

func TestRecordRefundStampsOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.db.Create(&orderdomain.Order{
		ID:                10,
		SessionID:         "cs_1",
		PaymentIntentID:   "pi_1",
		AmountTotal:       2500,
		Status:            orderdomain.StatusCompleted,
		FulfillmentStatus: orderdomain.FulfillmentPending,
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
	}).Error)

	err := f.svc.RecordRefund(ctx, &paymentdomain.Charge{ID: "ch_1", PaymentIntentID: "pi_1", Amount: 2500, AmountRefunded: 1000})
	require.NoError(t, err)

	var order orderdomain.Order
	require.NoError(t, f.db.First(&order, "session_id = ?", "cs_1").Error)
	assert.Equal(t, orderdomain.StatusPartiallyRefunded, order.Status)
	assert.Equal(t, int64(1000), order.RefundedAmount)
	require.NotNil(t, order.RefundedAt)

	err = f.svc.RecordRefund(ctx, &paymentdomain.Charge{ID: "ch_1", PaymentIntentID: "pi_1", Amount: 2500, AmountRefunded: 2500})
	require.NoError(t, err)
	require.NoError(t, f.db.First(&order, "session_id = ?", "cs_1").Error)
	assert.Equal(t, orderdomain.StatusRefunded, order.Status)
}

func TestRecordRefundOutOfOrderKeepsLargestAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.db.Create(&orderdomain.Order{
		ID:                10,
		SessionID:         "cs_1",
		PaymentIntentID:   "pi_1",
		AmountTotal:       2500,
		Status:            orderdomain.StatusCompleted,
		FulfillmentStatus: orderdomain.FulfillmentPending,
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
	}).Error)

	require.NoError(t, f.svc.RecordRefund(ctx, &paymentdomain.Charge{ID: "ch_1", PaymentIntentID: "pi_1", Amount: 2500, AmountRefunded: 2500}))
	require.NoError(t, f.svc.RecordRefund(ctx, &paymentdomain.Charge{ID: "ch_1", PaymentIntentID: "pi_1", Amount: 2500, AmountRefunded: 1000}))

	var order orderdomain.Order
	require.NoError(t, f.db.First(&order, "session_id = ?", "cs_1").Error)
	assert.Equal(t, orderdomain.StatusRefunded, order.Status)
	assert.Equal(t, int64(2500), order.RefundedAmount)
}

func TestRecordRefundWithoutOrderIsNoop(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RecordRefund(context.Background(), &paymentdomain.Charge{ID: "ch_9", PaymentIntentID: "pi_9", Amount: 100, AmountRefunded: 100})
	assert.NoError(t, err)

	err = f.svc.RecordRefund(context.Background(), &paymentdomain.Charge{ID: "ch_9"})
	assert.NoError(t, err)
}

func TestRecordSucceededOrphanIsSkipped(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RecordSucceeded(context.Background(), &paymentdomain.PaymentIntent{ID: "pi_1", CustomerID: "cus_unknown", Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM purchases"))
}

func TestRecordSucceededResolvesOwnerByCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.customer.LinkGatewayCustomer(ctx, "user_1", "cus_1", "a@example.com"))

	intent := &paymentdomain.PaymentIntent{ID: "pi_1", CustomerID: "cus_1", Amount: 500, Currency: "USD"}
	require.NoError(t, f.svc.RecordSucceeded(ctx, intent))
	require.NoError(t, f.svc.RecordSucceeded(ctx, intent))

	var purchases []paymentdomain.Purchase
	require.NoError(t, f.db.Find(&purchases).Error)
	require.Len(t, purchases, 1)
	assert.Equal(t, "user_1", purchases[0].UserID)
	assert.Equal(t, "usd", purchases[0].Currency)
	assert.Equal(t, paymentdomain.PurchaseStatusSucceeded, purchases[0].Status)
}

func TestRecordFailedThenSucceededUpgradesRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	intent := &paymentdomain.PaymentIntent{
		ID:               "pi_1",
		Amount:           500,
		Metadata:         map[string]string{paymentdomain.MetadataUserID: "user_1"},
		LastErrorCode:    "card_declined",
		LastErrorMessage: "declined",
	}

	require.NoError(t, f.svc.RecordFailed(ctx, intent))
	require.NoError(t, f.svc.RecordSucceeded(ctx, intent))

	var purchase paymentdomain.Purchase
	require.NoError(t, f.db.First(&purchase, "payment_intent_id = ?", "pi_1").Error)
	assert.Equal(t, paymentdomain.PurchaseStatusSucceeded, purchase.Status)
	assert.Empty(t, purchase.FailureCode)

	// a late failure never downgrades a succeeded purchase
	require.NoError(t, f.svc.RecordFailed(ctx, intent))
	require.NoError(t, f.db.First(&purchase, "payment_intent_id = ?", "pi_1").Error)
	assert.Equal(t, paymentdomain.PurchaseStatusSucceeded, purchase.Status)
}

func TestRecordFailedAlwaysTracks(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RecordFailed(context.Background(), &paymentdomain.PaymentIntent{ID: "pi_anon", Amount: 700, LastErrorCode: "expired_card"})
	require.NoError(t, err)

	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM purchases"))
	events := f.tracker.Named(analytics.EventPaymentFailed)
	require.Len(t, events, 1)
	assert.Equal(t, "expired_card", events[0].Properties["failure_code"])
	assert.NotContains(t, events[0].Properties, "user_id")
}

func TestRecordRejectsEmptyIntent(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.RecordSucceeded(context.Background(), nil), paymentdomain.ErrInvalidEvent)
	assert.ErrorIs(t, f.svc.RecordFailed(context.Background(), &paymentdomain.PaymentIntent{}), paymentdomain.ErrInvalidEvent)
}
