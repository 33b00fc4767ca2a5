package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// UpsertBySession inserts or refreshes checkout fields. Status, fulfillment
	// and refund columns are never overwritten. order.ID is set to the stored row's id.
	UpsertBySession(ctx context.Context, db *gorm.DB, order *Order) error
	FindBySession(ctx context.Context, db *gorm.DB, sessionID string) (*Order, error)
	FindByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*Order, error)
	// MarkRefunded only moves the refunded amount forward. It reports false
	// when the stored amount is already at or above refundedAmount.
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, refundedAmount int64, refundedAt time.Time) (bool, error)
	// CountPriorCompleted counts completed orders of a user, or of an email when
	// userID is empty, excluding the given session.
	CountPriorCompleted(ctx context.Context, db *gorm.DB, userID, email, excludeSessionID string) (int64, error)
}
