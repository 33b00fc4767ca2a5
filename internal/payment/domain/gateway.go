package domain

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mock/gateway_mock.go -package=mock . Gateway

// Gateway is the read side of the payment processor API. Calls are not
// retried here; errors propagate to the webhook pipeline.
type Gateway interface {
	RetrieveSubscription(ctx context.Context, id string) (*SubscriptionDetail, error)
	RetrieveProduct(ctx context.Context, id string) (*Product, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	ListLineItems(ctx context.Context, sessionID string) ([]LineItem, error)
	RetrieveCustomer(ctx context.Context, id string) (*Customer, error)
}

const (
	SessionModePayment      = "payment"
	SessionModeSubscription = "subscription"
	SessionModeSetup        = "setup"

	SessionPaymentStatusPaid              = "paid"
	SessionPaymentStatusUnpaid            = "unpaid"
	SessionPaymentStatusNoPaymentRequired = "no_payment_required"
)

// Metadata keys set on checkout sessions and payment intents when checkout starts.
const (
	MetadataUserID       = "user_id"
	MetadataPurchaseType = "purchase_type"
	MetadataTier         = "tier"
	MetadataDiscountID   = "discount_id"
	MetadataDiscountCode = "discount_code"
	MetadataVariantID    = "variant_id"

	PurchaseTypeTierUpgrade = "tier_upgrade"
)

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// DiscountLine is one entry of a session's discount breakdown.
type DiscountLine struct {
	CouponID        string
	PromotionCodeID string
	Code            string
	PercentOff      float64
	AmountOff       int64
	Amount          int64
}

func (d DiscountLine) Type() string {
	if d.PercentOff > 0 {
		return "percentage"
	}
	return "fixed_amount"
}

func (d DiscountLine) Value() float64 {
	if d.PercentOff > 0 {
		return d.PercentOff
	}
	return float64(d.AmountOff)
}

type CheckoutSession struct {
	ID              string `validate:"required"`
	Mode            string `validate:"required"`
	PaymentStatus   string
	PaymentIntentID string
	SubscriptionID  string
	CustomerID      string
	CustomerEmail   string
	Currency        string
	AmountSubtotal  int64
	AmountTotal     int64
	AmountDiscount  int64
	Metadata        map[string]string
	ShippingName    string
	ShippingAddress *Address
	Discounts       []DiscountLine
}

func (c *CheckoutSession) Meta(key string) string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

type SubscriptionDetail struct {
	ID                 string `validate:"required"`
	CustomerID         string
	Status             string `validate:"required"`
	PriceID            string
	ProductID          string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	Metadata           map[string]string
}

type Invoice struct {
	ID             string `validate:"required"`
	CustomerID     string
	SubscriptionID string
	Status         string
	AmountPaid     int64
	AmountDue      int64
	Currency       string
}

type PaymentIntent struct {
	ID               string `validate:"required"`
	CustomerID       string
	Status           string
	Amount           int64
	Currency         string
	Metadata         map[string]string
	LastErrorCode    string
	LastErrorMessage string
}

type Charge struct {
	ID              string `validate:"required"`
	PaymentIntentID string
	CustomerID      string
	Amount          int64
	AmountRefunded  int64
	Currency        string
	Refunded        bool
}

// LineItem carries the price metadata so inventory can map a price onto a variant.
type LineItem struct {
	ID             string
	Description    string
	PriceID        string
	ProductID      string
	Quantity       int64
	UnitAmount     int64
	AmountSubtotal int64
	AmountTotal    int64
	Currency       string
	PriceMetadata  map[string]string
}

type Product struct {
	ID       string
	Name     string
	Metadata map[string]string
}

type Customer struct {
	ID       string
	Email    string
	Name     string
	Metadata map[string]string
}
