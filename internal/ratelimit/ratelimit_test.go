package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/storefront/internal/cache/cachetest"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l := NewAdminLimiter(Params{Log: zap.NewNop()})
	ctx := context.Background()

	res, err := l.AllowSubject(ctx, "operator")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := l.TryLockReplay(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, l.ReleaseReplay(ctx, "1", token))

	var nilLimiter *AdminLimiter
	assert.False(t, nilLimiter.Enabled())
	_, ok, err = nilLimiter.TryLockReplay(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReplayLockHeldWithoutRateLimit(t *testing.T) {
	client := cachetest.Client(t)
	l := NewAdminLimiter(Params{
		Client: client,
		Cfg:    config.Config{Admin: config.AdminConfig{RateLimit: 0, RateBurst: 0}},
		Log:    zap.NewNop(),
	})
	ctx := context.Background()
	assert.False(t, l.Enabled())

	res, err := l.AllowSubject(ctx, "operator")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := l.TryLockReplay(ctx, "7")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLockReplay(ctx, "7")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.ReleaseReplay(ctx, "7", token))
}

func TestTokenBucketExhaustsBurst(t *testing.T) {
	client := cachetest.Client(t)
	l := NewAdminLimiter(Params{
		Client: client,
		Cfg:    config.Config{Admin: config.AdminConfig{RateLimit: 0.01, RateBurst: 2}},
		Log:    zap.NewNop(),
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.AllowSubject(ctx, "operator")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.AllowSubject(ctx, "operator")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	other, err := l.AllowSubject(ctx, "viewer")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestReplayLockIsExclusive(t *testing.T) {
	client := cachetest.Client(t)
	l := NewAdminLimiter(Params{
		Client: client,
		Cfg:    config.Config{Admin: config.AdminConfig{RateLimit: 1, RateBurst: 1, ReplayLockTTL: time.Minute}},
		Log:    zap.NewNop(),
	})
	ctx := context.Background()

	token, ok, err := l.TryLockReplay(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLockReplay(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	// a stale token cannot release someone else's lock
	require.NoError(t, l.ReleaseReplay(ctx, "42", "not-the-token"))
	_, ok, err = l.TryLockReplay(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.ReleaseReplay(ctx, "42", token))
	_, ok, err = l.TryLockReplay(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
}
