package analytics

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	EventPurchaseCompleted   = "purchase_completed"
	EventPaymentFailed       = "payment_failed"
	EventSubscriptionStarted = "subscription_started"
	EventTierUpgraded        = "tier_upgraded"
)

// Tracker emits product analytics events. Callers treat failures as non-fatal.
type Tracker interface {
	Track(ctx context.Context, name string, properties map[string]any) error
}

type NoOpTracker struct{}

func (NoOpTracker) Track(ctx context.Context, name string, properties map[string]any) error {
	return nil
}

// StreamTracker appends events to a Redis stream read by the analytics exporter.
type StreamTracker struct {
	client *redis.Client
	stream string
	maxLen int64
	now    func() time.Time
}

func NewStreamTracker(client *redis.Client, stream string) *StreamTracker {
	stream = strings.TrimSpace(stream)
	if stream == "" {
		stream = "storefront:analytics"
	}
	return &StreamTracker{
		client: client,
		stream: stream,
		maxLen: 100_000,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (t *StreamTracker) Track(ctx context.Context, name string, properties map[string]any) error {
	props, err := json.Marshal(properties)
	if err != nil {
		return err
	}
	return t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.stream,
		MaxLen: t.maxLen,
		Approx: true,
		Values: map[string]any{
			"message_id":  uuid.NewString(),
			"name":        name,
			"occurred_at": t.now().Format(time.RFC3339Nano),
			"properties":  string(props),
		},
	}).Err()
}
