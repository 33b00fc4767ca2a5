package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/inventory/domain"
	"github.com/smallbiznis/storefront/internal/inventory/repository"
	"github.com/smallbiznis/storefront/internal/inventory/service"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeHolds struct {
	reserved map[string]int64
	sessions map[string]map[string]int64
}

func newFakeHolds() *fakeHolds {
	return &fakeHolds{reserved: map[string]int64{}, sessions: map[string]map[string]int64{}}
}

func (f *fakeHolds) Place(ctx context.Context, sessionID, variantID string, quantity int64, ttl time.Duration) error {
	if f.sessions[sessionID] == nil {
		f.sessions[sessionID] = map[string]int64{}
	}
	f.sessions[sessionID][variantID] += quantity
	f.reserved[variantID] += quantity
	return nil
}

func (f *fakeHolds) Release(ctx context.Context, sessionID string) error {
	for variantID, qty := range f.sessions[sessionID] {
		f.reserved[variantID] -= qty
	}
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeHolds) Reserved(ctx context.Context, variantID string) (int64, error) {
	return f.reserved[variantID], nil
}

func newService(t *testing.T) (domain.Service, *fakeHolds) {
	t.Helper()
	db := dbtest.Open(t, &domain.Variant{}, &domain.Adjustment{})
	require.NoError(t, db.Create(&domain.Variant{ID: "v1", GatewayPriceID: "price_mug", StockQuantity: 5, TrackInventory: true}).Error)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	holds := newFakeHolds()
	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Holds: holds,
		Clock: clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	return svc, holds
}

func TestDecrementResolvesByPriceMetadata(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	ref := domain.OrderRef{OrderID: "1", SessionID: "cs_1"}
	item := paymentdomain.LineItem{
		PriceID:       "price_other",
		Quantity:      2,
		PriceMetadata: map[string]string{paymentdomain.MetadataVariantID: "v1"},
	}

	res, err := svc.Decrement(ctx, ref, item)
	require.NoError(t, err)
	assert.Equal(t, domain.DecrementResult{VariantID: "v1", Quantity: 2, Applied: true}, res)

	res, err = svc.Decrement(ctx, ref, item)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	available, err := svc.Available(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), available)
}

func TestDecrementUnknownVariant(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Decrement(context.Background(), domain.OrderRef{SessionID: "cs_1"}, paymentdomain.LineItem{PriceID: "price_x", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrUnknownVariant)

	_, err = svc.Decrement(context.Background(), domain.OrderRef{SessionID: "cs_1"}, paymentdomain.LineItem{PriceID: "price_mug"})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestHoldRespectsAvailability(t *testing.T) {
	ctx := context.Background()
	svc, holds := newService(t)

	require.NoError(t, svc.Hold(ctx, "cs_1", "v1", 4, time.Minute))
	assert.ErrorIs(t, svc.Hold(ctx, "cs_2", "v1", 2, time.Minute), domain.ErrInsufficientStock)

	require.NoError(t, svc.ReleaseHolds(ctx, "cs_1"))
	assert.Zero(t, holds.reserved["v1"])
	require.NoError(t, svc.Hold(ctx, "cs_2", "v1", 2, time.Minute))
}
