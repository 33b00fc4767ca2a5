package service

import (
	"context"
	"fmt"

	stripeadapter "github.com/smallbiznis/storefront/internal/payment/adapters/stripe"
	"github.com/smallbiznis/storefront/internal/webhook/domain"
)

// dispatch routes a verified event to its handler. It reports false for kinds
// the storefront does not act on.
func (s *Service) dispatch(ctx context.Context, event domain.InboundEvent) (bool, error) {
	switch event.Kind {
	case domain.KindCheckoutCompleted, domain.KindCheckoutAsyncSucceeded:
		session, err := stripeadapter.DecodeCheckoutSession(event.Object)
		if err != nil {
			return true, invalidPayload(err)
		}
		return true, s.orderSvc.HandleCheckoutCompleted(ctx, session)

	case domain.KindSubscriptionCreated, domain.KindSubscriptionUpdated:
		detail, err := stripeadapter.DecodeSubscription(event.Object)
		if err != nil {
			return true, invalidPayload(err)
		}
		_, err = s.subscriptionSvc.Sync(ctx, detail)
		return true, err

	case domain.KindSubscriptionDeleted:
		detail, err := stripeadapter.DecodeSubscription(event.Object)
		if err != nil {
			return true, invalidPayload(err)
		}
		return true, s.subscriptionSvc.HandleDeleted(ctx, detail)

	case domain.KindInvoicePaid, domain.KindInvoicePaymentSucceeded:
		invoice, err := stripeadapter.DecodeInvoice(event.Object)
		if err != nil {
			return true, invalidPayload(err)
		}
		return true, s.subscriptionSvc.HandleInvoicePaid(ctx, invoice)

	case domain.KindInvoicePaymentFailed:
		invoice, err := stripeadapter.DecodeInvoice(event.Object)
		if err != nil {
			return true, invalidPayload(err)
		}
		return true, s.subscriptionSvc.HandleInvoicePaymentFailed(ctx, invoice)

	case domain.KindPaymentIntentSucceeded:
		intent, err := stripeadapter.DecodePaymentIntent(event.Object)
		if err != nil {
			return true, invalidPayload(err)
		}
		return true, s.paymentSvc.RecordSucceeded(ctx, intent)

	case domain.KindPaymentIntentFailed:
		intent, err := stripeadapter.DecodePaymentIntent(event.Object)
		if err != nil {
			return true, invalidPayload(err)
		}
		return true, s.paymentSvc.RecordFailed(ctx, intent)

	case domain.KindChargeRefunded:
		charge, err := stripeadapter.DecodeCharge(event.Object)
		if err != nil {
			return true, invalidPayload(err)
		}
		return true, s.paymentSvc.RecordRefund(ctx, charge)

	default:
		return false, nil
	}
}

func invalidPayload(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
}
