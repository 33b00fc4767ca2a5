package holds_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/storefront/internal/cache/cachetest"
	"github.com/smallbiznis/storefront/internal/inventory/domain"
	"github.com/smallbiznis/storefront/internal/inventory/holds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceAndRelease(t *testing.T) {
	ctx := context.Background()
	store := holds.NewRedisStore(cachetest.Client(t))

	require.NoError(t, store.Place(ctx, "cs_1", "v1", 2, time.Minute))
	require.NoError(t, store.Place(ctx, "cs_2", "v1", 1, time.Minute))

	reserved, err := store.Reserved(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), reserved)

	require.NoError(t, store.Release(ctx, "cs_1"))
	require.NoError(t, store.Release(ctx, "cs_1"))

	reserved, err = store.Reserved(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reserved)

	require.NoError(t, store.Release(ctx, "cs_2"))
	reserved, err = store.Reserved(ctx, "v1")
	require.NoError(t, err)
	assert.Zero(t, reserved)
}

func TestPlaceRejectsBadInput(t *testing.T) {
	store := holds.NewRedisStore(cachetest.Client(t))

	assert.ErrorIs(t, store.Place(context.Background(), "cs_1", "v1", 0, time.Minute), domain.ErrInvalidQuantity)
	assert.Error(t, store.Place(context.Background(), "", "v1", 1, time.Minute))
	assert.Error(t, store.Place(context.Background(), "cs_1", "v1", 1, 0))
}
