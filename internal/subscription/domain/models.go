// Package domain contains the storefront's copy of gateway subscriptions and
// their lifecycle rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus mirrors the gateway's subscription status values.
type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
)

// Subscription is keyed by the gateway subscription id. Every sync fully
// overwrites the known state so reordered events converge.
type Subscription struct {
	ID                 snowflake.ID       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SubscriptionID     string             `gorm:"type:text;not null;uniqueIndex" json:"subscription_id"`
	CustomerID         string             `gorm:"type:text;not null;index" json:"customer_id"`
	UserID             string             `gorm:"type:text;index" json:"user_id,omitempty"`
	PriceID            string             `gorm:"type:text" json:"price_id"`
	ProductID          string             `gorm:"type:text" json:"product_id"`
	PlanLabel          string             `gorm:"type:text" json:"plan_label"`
	Status             SubscriptionStatus `gorm:"type:text;not null" json:"status"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool               `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CanceledAt         *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt          time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// IsActiveLike reports whether the subscription still entitles its owner to the plan.
func IsActiveLike(status SubscriptionStatus) bool {
	switch status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// IsActivation reports a move into active or trialing from a state that was
// not already active-like. A nil previous status means the row is new.
func IsActivation(prev *SubscriptionStatus, next SubscriptionStatus) bool {
	if next != SubscriptionStatusActive && next != SubscriptionStatusTrialing {
		return false
	}
	return prev == nil || !IsActiveLike(*prev)
}

// CanTransition applies the lifecycle rules: trialing and active move to and
// from past_due, past_due recovers to active, and canceled is terminal.
// Statuses outside that machine are accepted unless the row is canceled.
func CanTransition(from, to SubscriptionStatus) bool {
	if from == SubscriptionStatusCanceled {
		return to == SubscriptionStatusCanceled
	}
	if from == to || !isModeled(from) || !isModeled(to) {
		return true
	}
	switch from {
	case SubscriptionStatusTrialing:
		return to == SubscriptionStatusActive || to == SubscriptionStatusPastDue || to == SubscriptionStatusCanceled
	case SubscriptionStatusActive:
		return to == SubscriptionStatusPastDue || to == SubscriptionStatusCanceled
	case SubscriptionStatusPastDue:
		return to == SubscriptionStatusActive || to == SubscriptionStatusTrialing || to == SubscriptionStatusCanceled
	default:
		return false
	}
}

func isModeled(status SubscriptionStatus) bool {
	switch status {
	case SubscriptionStatusTrialing,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusCanceled:
		return true
	default:
		return false
	}
}
