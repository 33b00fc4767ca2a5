package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storefront/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyAdminSubject = "storefront:admin:rate:%s"
	keyReplayLock   = "storefront:admin:replay:%s"
)

// AdminLimiter throttles operator calls per subject and serializes replays
// of the same failure. Without Redis everything is allowed; the replay lock
// stays on whenever Redis is configured, even with rate limiting turned off.
type AdminLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate    float64
	burst   int
	lockTTL time.Duration
}

type Params struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Cfg    config.Config
	Log    *zap.Logger
}

func NewAdminLimiter(p Params) *AdminLimiter {
	if p.Client == nil {
		p.Log.Info("redis not configured, admin rate limiting and replay locks are disabled")
		return &AdminLimiter{}
	}

	limitCfg := p.Cfg.Admin
	lockTTL := limitCfg.ReplayLockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	l := &AdminLimiter{
		locker:  NewLocker(p.Client),
		lockTTL: lockTTL,
	}

	if limitCfg.RateLimit <= 0 || limitCfg.RateBurst <= 0 {
		p.Log.Info("admin rate limiting disabled")
		return l
	}
	l.enabled = true
	l.bucket = NewTokenBucket(p.Client)
	l.rate = limitCfg.RateLimit
	l.burst = limitCfg.RateBurst
	return l
}

// Enabled reports whether admin calls are rate limited.
func (l *AdminLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *AdminLimiter) locking() bool {
	return l != nil && l.locker != nil
}

func (l *AdminLimiter) AllowSubject(ctx context.Context, subject string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyAdminSubject, strings.TrimSpace(subject)), l.rate, l.burst)
}

func (l *AdminLimiter) TryLockReplay(ctx context.Context, failureID string) (string, bool, error) {
	if !l.locking() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyReplayLock, strings.TrimSpace(failureID)), l.lockTTL)
}

func (l *AdminLimiter) ReleaseReplay(ctx context.Context, failureID, token string) error {
	if !l.locking() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyReplayLock, strings.TrimSpace(failureID)), token)
}
