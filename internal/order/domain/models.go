package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusCompleted         = "completed"
	StatusRefunded          = "refunded"
	StatusPartiallyRefunded = "partially_refunded"

	FulfillmentPending = "pending"
)

type ShippingAddress struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Order is one paid one-time checkout, keyed by the gateway session id.
type Order struct {
	ID                snowflake.ID                        `json:"id" gorm:"primaryKey;autoIncrement:false"`
	SessionID         string                              `json:"session_id" gorm:"type:text;not null;uniqueIndex"`
	PaymentIntentID   string                              `json:"payment_intent_id" gorm:"type:text;index"`
	UserID            string                              `json:"user_id,omitempty" gorm:"type:text;index"`
	CustomerID        string                              `json:"customer_id,omitempty" gorm:"type:text"`
	CustomerEmail     string                              `json:"customer_email" gorm:"type:text"`
	AmountSubtotal    int64                               `json:"amount_subtotal" gorm:"not null"`
	AmountTotal       int64                               `json:"amount_total" gorm:"not null"`
	Currency          string                              `json:"currency" gorm:"type:text"`
	Status            string                              `json:"status" gorm:"type:text;not null"`
	PaymentStatus     string                              `json:"payment_status" gorm:"type:text"`
	DiscountCode      string                              `json:"discount_code,omitempty" gorm:"type:text"`
	DiscountID        string                              `json:"discount_id,omitempty" gorm:"type:text"`
	DiscountAmount    int64                               `json:"discount_amount"`
	DiscountType      string                              `json:"discount_type,omitempty" gorm:"type:text"`
	ShippingAddress   datatypes.JSONType[ShippingAddress] `json:"shipping_address"`
	FulfillmentStatus string                              `json:"fulfillment_status" gorm:"type:text;not null"`
	RefundedAmount    int64                               `json:"refunded_amount"`
	RefundedAt        *time.Time                          `json:"refunded_at,omitempty"`
	CreatedAt         time.Time                           `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time                           `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// ConfirmationLine is one itemized row of an order confirmation email.
type ConfirmationLine struct {
	Description string
	Quantity    int64
	UnitAmount  int64
	AmountTotal int64
}

type OrderConfirmation struct {
	OrderID        string
	SessionID      string
	CustomerEmail  string
	Currency       string
	Lines          []ConfirmationLine
	AmountSubtotal int64
	DiscountAmount int64
	AmountTotal    int64
}
