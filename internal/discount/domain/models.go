package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Discount is a storefront-managed code applied before the session reached the gateway.
type Discount struct {
	ID              string    `gorm:"primaryKey;type:text" json:"id"`
	Code            string    `gorm:"type:text;not null;uniqueIndex" json:"code"`
	RedemptionCount int64     `gorm:"not null;default:0" json:"redemption_count"`
	MaxRedemptions  *int64    `json:"max_redemptions,omitempty"`
	Active          bool      `gorm:"not null;default:true" json:"active"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Discount) TableName() string { return "discounts" }

const (
	TypePercentage  = "percentage"
	TypeFixedAmount = "fixed_amount"
	TypeLocal       = "local"
)

// PromotionRedemption records one discount applied to one checkout session.
type PromotionRedemption struct {
	ID             snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Code           string       `gorm:"type:text" json:"code"`
	CouponID       string       `gorm:"type:text;not null;uniqueIndex:uq_promotion_redemptions_session_coupon,priority:2" json:"coupon_id"`
	CustomerID     string       `gorm:"type:text;index" json:"customer_id"`
	UserID         string       `gorm:"type:text" json:"user_id"`
	SessionID      string       `gorm:"type:text;not null;uniqueIndex:uq_promotion_redemptions_session_coupon,priority:1" json:"session_id"`
	DiscountType   string       `gorm:"type:text" json:"discount_type"`
	DiscountValue  float64      `json:"discount_value"`
	DiscountAmount int64        `json:"discount_amount"`
	IsFirstOrder   bool         `gorm:"not null;default:false" json:"is_first_order"`
	OrderType      string       `gorm:"type:text" json:"order_type"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

func (PromotionRedemption) TableName() string { return "promotion_redemptions" }
