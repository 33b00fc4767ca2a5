package stripe

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	stripeapi "github.com/stripe/stripe-go/v76"
)

var validate = validator.New()

// shippingEnvelope reads shipping from either the legacy top level field or
// collected_information, depending on the account's API version.
type shippingEnvelope struct {
	ShippingDetails      *shippingDetails `json:"shipping_details"`
	CollectedInformation *struct {
		ShippingDetails *shippingDetails `json:"shipping_details"`
	} `json:"collected_information"`
}

type shippingDetails struct {
	Name    string             `json:"name"`
	Address *stripeapi.Address `json:"address"`
}

func DecodeCheckoutSession(raw json.RawMessage) (*paymentdomain.CheckoutSession, error) {
	var cs stripeapi.CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", paymentdomain.ErrInvalidPayload, err)
	}
	var ship shippingEnvelope
	if err := json.Unmarshal(raw, &ship); err != nil {
		return nil, fmt.Errorf("%w: checkout session shipping: %v", paymentdomain.ErrInvalidPayload, err)
	}

	out := toCheckoutSession(&cs)
	details := ship.ShippingDetails
	if details == nil && ship.CollectedInformation != nil {
		details = ship.CollectedInformation.ShippingDetails
	}
	if details != nil {
		out.ShippingName = details.Name
		out.ShippingAddress = toAddress(details.Address)
	}
	if err := validate.Struct(out); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", paymentdomain.ErrInvalidPayload, err)
	}
	return out, nil
}

func DecodeSubscription(raw json.RawMessage) (*paymentdomain.SubscriptionDetail, error) {
	var sub stripeapi.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: subscription: %v", paymentdomain.ErrInvalidPayload, err)
	}
	out := toSubscription(&sub)
	if err := validate.Struct(out); err != nil {
		return nil, fmt.Errorf("%w: subscription: %v", paymentdomain.ErrInvalidPayload, err)
	}
	return out, nil
}

func DecodeInvoice(raw json.RawMessage) (*paymentdomain.Invoice, error) {
	var inv stripeapi.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("%w: invoice: %v", paymentdomain.ErrInvalidPayload, err)
	}
	out := &paymentdomain.Invoice{
		ID:         inv.ID,
		CustomerID: customerID(inv.Customer),
		Status:     string(inv.Status),
		AmountPaid: inv.AmountPaid,
		AmountDue:  inv.AmountDue,
		Currency:   string(inv.Currency),
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	if err := validate.Struct(out); err != nil {
		return nil, fmt.Errorf("%w: invoice: %v", paymentdomain.ErrInvalidPayload, err)
	}
	return out, nil
}

func DecodePaymentIntent(raw json.RawMessage) (*paymentdomain.PaymentIntent, error) {
	var pi stripeapi.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: payment intent: %v", paymentdomain.ErrInvalidPayload, err)
	}
	out := toPaymentIntent(&pi)
	if err := validate.Struct(out); err != nil {
		return nil, fmt.Errorf("%w: payment intent: %v", paymentdomain.ErrInvalidPayload, err)
	}
	return out, nil
}

func DecodeCharge(raw json.RawMessage) (*paymentdomain.Charge, error) {
	var ch stripeapi.Charge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, fmt.Errorf("%w: charge: %v", paymentdomain.ErrInvalidPayload, err)
	}
	out := &paymentdomain.Charge{
		ID:             ch.ID,
		CustomerID:     customerID(ch.Customer),
		Amount:         ch.Amount,
		AmountRefunded: ch.AmountRefunded,
		Currency:       string(ch.Currency),
		Refunded:       ch.Refunded,
	}
	if ch.PaymentIntent != nil {
		out.PaymentIntentID = ch.PaymentIntent.ID
	}
	if err := validate.Struct(out); err != nil {
		return nil, fmt.Errorf("%w: charge: %v", paymentdomain.ErrInvalidPayload, err)
	}
	return out, nil
}

func toCheckoutSession(cs *stripeapi.CheckoutSession) *paymentdomain.CheckoutSession {
	out := &paymentdomain.CheckoutSession{
		ID:             cs.ID,
		Mode:           string(cs.Mode),
		PaymentStatus:  string(cs.PaymentStatus),
		CustomerID:     customerID(cs.Customer),
		CustomerEmail:  strings.TrimSpace(cs.CustomerEmail),
		Currency:       string(cs.Currency),
		AmountSubtotal: cs.AmountSubtotal,
		AmountTotal:    cs.AmountTotal,
		Metadata:       cs.Metadata,
	}
	if out.CustomerEmail == "" && cs.CustomerDetails != nil {
		out.CustomerEmail = strings.TrimSpace(cs.CustomerDetails.Email)
	}
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	if cs.Subscription != nil {
		out.SubscriptionID = cs.Subscription.ID
	}
	if cs.TotalDetails != nil {
		out.AmountDiscount = cs.TotalDetails.AmountDiscount
		if cs.TotalDetails.Breakdown != nil {
			for _, d := range cs.TotalDetails.Breakdown.Discounts {
				if d == nil {
					continue
				}
				out.Discounts = append(out.Discounts, toDiscountLine(d))
			}
		}
	}
	return out
}

func toDiscountLine(d *stripeapi.CheckoutSessionTotalDetailsBreakdownDiscount) paymentdomain.DiscountLine {
	line := paymentdomain.DiscountLine{Amount: d.Amount}
	if d.Discount == nil {
		return line
	}
	if c := d.Discount.Coupon; c != nil {
		line.CouponID = c.ID
		line.PercentOff = c.PercentOff
		line.AmountOff = c.AmountOff
		line.Code = c.Name
	}
	if pc := d.Discount.PromotionCode; pc != nil {
		line.PromotionCodeID = pc.ID
		if pc.Code != "" {
			line.Code = pc.Code
		}
	}
	return line
}

func toSubscription(sub *stripeapi.Subscription) *paymentdomain.SubscriptionDetail {
	out := &paymentdomain.SubscriptionDetail{
		ID:                 sub.ID,
		CustomerID:         customerID(sub.Customer),
		Status:             string(sub.Status),
		CurrentPeriodStart: unix(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   unix(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		Metadata:           sub.Metadata,
	}
	if sub.CanceledAt > 0 {
		canceledAt := unix(sub.CanceledAt)
		out.CanceledAt = &canceledAt
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			out.PriceID = item.Price.ID
			if item.Price.Product != nil {
				out.ProductID = item.Price.Product.ID
			}
			break
		}
	}
	return out
}

func toPaymentIntent(pi *stripeapi.PaymentIntent) *paymentdomain.PaymentIntent {
	out := &paymentdomain.PaymentIntent{
		ID:         pi.ID,
		CustomerID: customerID(pi.Customer),
		Status:     string(pi.Status),
		Amount:     pi.Amount,
		Currency:   string(pi.Currency),
		Metadata:   pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		out.LastErrorCode = string(pi.LastPaymentError.Code)
		out.LastErrorMessage = pi.LastPaymentError.Msg
	}
	return out
}

func toLineItem(li *stripeapi.LineItem) paymentdomain.LineItem {
	out := paymentdomain.LineItem{
		ID:             li.ID,
		Description:    li.Description,
		Quantity:       li.Quantity,
		AmountSubtotal: li.AmountSubtotal,
		AmountTotal:    li.AmountTotal,
		Currency:       string(li.Currency),
	}
	if li.Price != nil {
		out.PriceID = li.Price.ID
		out.UnitAmount = li.Price.UnitAmount
		out.PriceMetadata = li.Price.Metadata
		if li.Price.Product != nil {
			out.ProductID = li.Price.Product.ID
		}
	}
	return out
}

func toAddress(a *stripeapi.Address) *paymentdomain.Address {
	if a == nil {
		return nil
	}
	return &paymentdomain.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func customerID(c *stripeapi.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func unix(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
