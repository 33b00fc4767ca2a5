package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Profile is the storefront-owned view of a shopper. Subscription fields are a
// denormalized mirror written by subscription sync.
type Profile struct {
	UserID             string    `gorm:"primaryKey;type:text" json:"user_id"`
	Email              string    `gorm:"type:text" json:"email"`
	GatewayCustomerID  *string   `gorm:"type:text;uniqueIndex" json:"gateway_customer_id,omitempty"`
	Tier               string    `gorm:"type:text;not null;default:'free'" json:"tier"`
	SubscriptionStatus string    `gorm:"type:text" json:"subscription_status"`
	CurrentPlan        string    `gorm:"type:text" json:"current_plan"`
	UpdatedAt          time.Time `gorm:"not null" json:"updated_at"`
}

func (Profile) TableName() string { return "customer_profiles" }

const (
	ReferralStatusPending   = "pending"
	ReferralStatusCompleted = "completed"
)

type Referral struct {
	ID             snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ReferrerUserID string       `gorm:"type:text;not null;index" json:"referrer_user_id"`
	ReferredUserID string       `gorm:"type:text;not null;index" json:"referred_user_id"`
	Status         string       `gorm:"type:text;not null" json:"status"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

func (Referral) TableName() string { return "referrals" }

// SubscriptionMirror is what subscription sync copies onto a profile.
type SubscriptionMirror struct {
	Status string
	Plan   string
}
