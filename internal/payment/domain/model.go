package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	PurchaseStatusSucceeded = "succeeded"
	PurchaseStatusFailed    = "failed"
)

// Purchase is the terminal outcome of one payment intent, recorded
// independently of checkout completion.
type Purchase struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	PaymentIntentID string       `json:"payment_intent_id" gorm:"type:text;not null;uniqueIndex"`
	UserID          string       `json:"user_id" gorm:"type:text;not null;index"`
	Amount          int64        `json:"amount" gorm:"not null"`
	Currency        string       `json:"currency" gorm:"type:text"`
	Status          string       `json:"status" gorm:"type:text;not null"`
	FailureCode     string       `json:"failure_code,omitempty" gorm:"type:text"`
	FailureMessage  string       `json:"failure_message,omitempty" gorm:"type:text"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (Purchase) TableName() string { return "purchases" }
