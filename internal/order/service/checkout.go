package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	discountdomain "github.com/smallbiznis/storefront/internal/discount/domain"
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/providers/analytics"
	"github.com/smallbiznis/storefront/internal/providers/email"
	subscriptiondomain "github.com/smallbiznis/storefront/internal/subscription/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	stepLinkCustomer             = "link_customer"
	stepTierUpgrade              = "tier_upgrade"
	stepSyncSubscription         = "sync_subscription"
	stepSubscriptionConfirmation = "subscription_confirmation"
	stepCompleteReferral         = "complete_referral"
	stepUpsertOrder              = "upsert_order"
	stepLoadLineItems            = "load_line_items"
	stepDecrementInventory       = "decrement_inventory"
	stepOrderConfirmation        = "order_confirmation"
	stepReleaseHolds             = "release_holds"
	stepTrackPurchase            = "track_purchase"
	stepRecordPromotions         = "record_promotions"
	stepIncrementDiscount        = "increment_discount"
)

// errSkipped marks a step whose preconditions did not hold. It is not a failure.
var errSkipped = errors.New("skipped")

func skip(reason string) error {
	return fmt.Errorf("%w: %s", errSkipped, reason)
}

type checkoutStep struct {
	name string
	// critical failures are returned so the event is recorded for replay.
	critical bool
	run      func(ctx context.Context, st *checkoutState) error
}

type stepResult struct {
	name     string
	err      error
	skipped  bool
	duration time.Duration
}

// checkoutState carries values produced by earlier steps to later ones.
type checkoutState struct {
	session      *paymentdomain.CheckoutSession
	userID       string
	order        *orderdomain.Order
	lineItems    []paymentdomain.LineItem
	itemsLoaded  bool
	subscription *subscriptiondomain.Subscription
}

// HandleCheckoutCompleted runs every checkout step. A failing step never stops
// the steps after it; failures of critical steps are returned together.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, session *paymentdomain.CheckoutSession) error {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return orderdomain.ErrInvalidSession
	}
	log := logger.WithContext(ctx, s.log).With(
		zap.String("session_id", session.ID),
		zap.String("mode", session.Mode),
	)

	if session.PaymentStatus == paymentdomain.SessionPaymentStatusUnpaid {
		log.Info("checkout awaiting asynchronous payment, nothing to fulfil yet")
		return nil
	}

	st := &checkoutState{
		session: session,
		userID:  strings.TrimSpace(session.Meta(paymentdomain.MetadataUserID)),
	}

	var errs error
	results := make([]stepResult, 0, 12)
	for _, step := range s.checkoutSteps(session) {
		started := time.Now()
		err := step.run(ctx, st)
		res := stepResult{name: step.name, err: err, duration: time.Since(started)}

		switch {
		case err == nil:
		case errors.Is(err, errSkipped):
			res.skipped = true
			log.Debug("checkout step skipped", zap.String("step", step.name), zap.String("reason", err.Error()))
		default:
			log.Error("checkout step failed",
				zap.String("step", step.name),
				zap.Bool("critical", step.critical),
				zap.Duration("duration", res.duration),
				zap.Error(err),
			)
			s.pipeline.IncStepFailure(step.name, err)
			if step.critical {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", step.name, err))
			}
		}
		results = append(results, res)
	}

	log.Info("checkout handled", zap.Strings("failed_steps", failedSteps(results)), zap.Int("steps", len(results)))
	return errs
}

func (s *Service) checkoutSteps(session *paymentdomain.CheckoutSession) []checkoutStep {
	steps := []checkoutStep{
		{name: stepLinkCustomer, run: s.linkCustomer},
		{name: stepTierUpgrade, run: s.tierUpgrade},
	}
	switch session.Mode {
	case paymentdomain.SessionModeSubscription:
		steps = append(steps,
			checkoutStep{name: stepSyncSubscription, critical: true, run: s.syncSubscription},
			checkoutStep{name: stepSubscriptionConfirmation, run: s.subscriptionConfirmation},
			checkoutStep{name: stepCompleteReferral, run: s.completeReferral},
		)
	case paymentdomain.SessionModePayment:
		steps = append(steps,
			checkoutStep{name: stepUpsertOrder, critical: true, run: s.upsertOrder},
			checkoutStep{name: stepLoadLineItems, critical: true, run: s.loadLineItems},
			checkoutStep{name: stepDecrementInventory, run: s.decrementInventory},
			checkoutStep{name: stepOrderConfirmation, run: s.orderConfirmation},
			checkoutStep{name: stepReleaseHolds, run: s.releaseHolds},
			checkoutStep{name: stepTrackPurchase, run: s.trackPurchase},
		)
	}
	return append(steps,
		checkoutStep{name: stepRecordPromotions, run: s.recordPromotions},
		checkoutStep{name: stepIncrementDiscount, run: s.incrementDiscount},
	)
}

func (s *Service) linkCustomer(ctx context.Context, st *checkoutState) error {
	if st.userID == "" {
		return skip("no user_id metadata")
	}
	if st.session.CustomerID == "" {
		return skip("no gateway customer")
	}
	return s.customerSvc.LinkGatewayCustomer(ctx, st.userID, st.session.CustomerID, st.session.CustomerEmail)
}

func (s *Service) tierUpgrade(ctx context.Context, st *checkoutState) error {
	if st.session.Meta(paymentdomain.MetadataPurchaseType) != paymentdomain.PurchaseTypeTierUpgrade {
		return skip("not a tier upgrade")
	}
	tier := strings.TrimSpace(st.session.Meta(paymentdomain.MetadataTier))
	if st.userID == "" || tier == "" {
		return skip("tier upgrade without user or tier")
	}

	change, err := s.customerSvc.ApplyTierUpgrade(ctx, st.userID, tier)
	if err != nil {
		return err
	}
	if !change.Changed() {
		return skip("tier already applied")
	}
	if err := s.tracker.Track(ctx, analytics.EventTierUpgraded, map[string]any{
		"user_id":    change.UserID,
		"from_tier":  change.FromTier,
		"to_tier":    change.ToTier,
		"session_id": st.session.ID,
	}); err != nil {
		logger.WithContext(ctx, s.log).Warn("track tier_upgraded failed", zap.Error(err))
	}
	return nil
}

func (s *Service) syncSubscription(ctx context.Context, st *checkoutState) error {
	if st.session.SubscriptionID == "" {
		return fmt.Errorf("%w: subscription checkout without subscription id", orderdomain.ErrInvalidSession)
	}
	detail, err := s.gateway.RetrieveSubscription(ctx, st.session.SubscriptionID)
	if err != nil {
		return err
	}
	sub, err := s.subscriptionSvc.Sync(ctx, detail)
	if err != nil {
		return err
	}
	st.subscription = sub
	return nil
}

func (s *Service) subscriptionConfirmation(ctx context.Context, st *checkoutState) error {
	if st.subscription == nil {
		return skip("subscription not synced")
	}
	if st.session.CustomerEmail == "" {
		return skip("no customer email")
	}
	data := map[string]any{
		"PlanLabel":        st.subscription.PlanLabel,
		"Status":           string(st.subscription.Status),
		"CurrentPeriodEnd": time.Time{},
	}
	if st.subscription.CurrentPeriodEnd != nil {
		data["CurrentPeriodEnd"] = *st.subscription.CurrentPeriodEnd
	}
	return s.email.SendTemplate(ctx, []string{st.session.CustomerEmail}, email.TemplateSubscriptionConfirmation, data)
}

func (s *Service) completeReferral(ctx context.Context, st *checkoutState) error {
	if st.userID == "" {
		return skip("no user_id metadata")
	}
	first, err := s.subscriptionSvc.IsFirstForUser(ctx, st.userID)
	if err != nil {
		return err
	}
	if !first {
		return skip("not the user's first subscription")
	}
	completed, err := s.customerSvc.CompleteReferral(ctx, st.userID)
	if err != nil {
		return err
	}
	if completed {
		logger.WithContext(ctx, s.log).Info("referral completed", zap.String("user_id", st.userID))
	}
	return nil
}

func (s *Service) upsertOrder(ctx context.Context, st *checkoutState) error {
	session := st.session
	now := s.clock.Now()
	order := &orderdomain.Order{
		ID:                s.genID.Generate(),
		SessionID:         session.ID,
		PaymentIntentID:   session.PaymentIntentID,
		UserID:            st.userID,
		CustomerID:        session.CustomerID,
		CustomerEmail:     session.CustomerEmail,
		AmountSubtotal:    session.AmountSubtotal,
		AmountTotal:       session.AmountTotal,
		Currency:          strings.ToLower(session.Currency),
		Status:            orderdomain.StatusCompleted,
		PaymentStatus:     session.PaymentStatus,
		DiscountAmount:    session.AmountDiscount,
		ShippingAddress:   datatypes.NewJSONType(shippingAddress(session)),
		FulfillmentStatus: orderdomain.FulfillmentPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	order.DiscountID, order.DiscountCode, order.DiscountType = discountSummary(session)

	if err := s.repo.UpsertBySession(ctx, s.db, order); err != nil {
		return err
	}
	st.order = order
	return nil
}

func (s *Service) loadLineItems(ctx context.Context, st *checkoutState) error {
	items, err := s.gateway.ListLineItems(ctx, st.session.ID)
	if err != nil {
		return err
	}
	st.lineItems = items
	st.itemsLoaded = true
	return nil
}

// decrementInventory never fails the event. Each shortfall is counted and
// raised to operators since the customer has already paid.
func (s *Service) decrementInventory(ctx context.Context, st *checkoutState) error {
	if !st.itemsLoaded {
		return skip("line items not loaded")
	}
	ref := inventorydomain.OrderRef{SessionID: st.session.ID}
	if st.order != nil {
		ref.OrderID = st.order.ID.String()
	}

	var errs error
	for _, item := range st.lineItems {
		if _, err := s.inventorySvc.Decrement(ctx, ref, item); err != nil {
			reason := shortfallReason(err)
			s.metrics.RecordInventoryShortfall(ctx, reason)
			s.alertShortfall(ctx, st, item, reason)
			errs = multierr.Append(errs, fmt.Errorf("line item %s: %w", item.ID, err))
		}
	}
	return errs
}

func (s *Service) orderConfirmation(ctx context.Context, st *checkoutState) error {
	if st.order == nil {
		return skip("order not stored")
	}
	if !st.itemsLoaded {
		return skip("line items not loaded")
	}
	if st.session.CustomerEmail == "" {
		return skip("no customer email")
	}

	confirmation := orderdomain.OrderConfirmation{
		OrderID:        st.order.ID.String(),
		SessionID:      st.session.ID,
		CustomerEmail:  st.session.CustomerEmail,
		Currency:       st.order.Currency,
		AmountSubtotal: st.order.AmountSubtotal,
		DiscountAmount: st.order.DiscountAmount,
		AmountTotal:    st.order.AmountTotal,
	}
	for _, item := range st.lineItems {
		confirmation.Lines = append(confirmation.Lines, orderdomain.ConfirmationLine{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitAmount:  item.UnitAmount,
			AmountTotal: item.AmountTotal,
		})
	}
	return s.email.SendTemplate(ctx, []string{st.session.CustomerEmail}, email.TemplateOrderConfirmation, confirmation)
}

func (s *Service) releaseHolds(ctx context.Context, st *checkoutState) error {
	return s.inventorySvc.ReleaseHolds(ctx, st.session.ID)
}

func (s *Service) trackPurchase(ctx context.Context, st *checkoutState) error {
	prior, err := s.repo.CountPriorCompleted(ctx, s.db, st.userID, st.session.CustomerEmail, st.session.ID)
	if err != nil {
		return err
	}
	props := map[string]any{
		"session_id":        st.session.ID,
		"amount_total":      st.session.AmountTotal,
		"currency":          strings.ToLower(st.session.Currency),
		"item_count":        len(st.lineItems),
		"is_first_purchase": prior == 0,
	}
	if st.userID != "" {
		props["user_id"] = st.userID
	}
	if st.order != nil {
		props["order_id"] = st.order.ID.String()
	}
	if _, code, _ := discountSummary(st.session); code != "" {
		props["discount_code"] = code
	}
	return s.tracker.Track(ctx, analytics.EventPurchaseCompleted, props)
}

// recordPromotions stays out of the way of local discount codes so one
// order never counts against both a local code and a gateway coupon.
func (s *Service) recordPromotions(ctx context.Context, st *checkoutState) error {
	if len(st.session.Discounts) == 0 {
		return skip("no gateway discounts")
	}
	if st.session.Meta(paymentdomain.MetadataDiscountID) != "" {
		logger.WithContext(ctx, s.log).Warn("session carries both a local discount and gateway coupons, recording the local discount only",
			zap.String("discount_id", st.session.Meta(paymentdomain.MetadataDiscountID)),
			zap.Int("gateway_discounts", len(st.session.Discounts)),
		)
		return skip("local discount present")
	}
	_, err := s.discountSvc.RecordPromotions(ctx, st.session, st.userID)
	return err
}

func (s *Service) incrementDiscount(ctx context.Context, st *checkoutState) error {
	if st.session.Meta(paymentdomain.MetadataDiscountID) == "" {
		return skip("no local discount")
	}
	_, err := s.discountSvc.RedeemLocal(ctx, st.session, st.userID)
	return err
}

func (s *Service) alertShortfall(ctx context.Context, st *checkoutState, item paymentdomain.LineItem, reason string) {
	msg := fmt.Sprintf(":warning: inventory %s after payment: session %s, item %q (price %s) qty %d",
		reason, st.session.ID, item.Description, item.PriceID, item.Quantity)
	if err := s.alerts.PostMessage(ctx, s.alertChannel, msg); err != nil {
		logger.WithContext(ctx, s.log).Warn("shortfall alert failed", zap.Error(err))
	}
}

func shortfallReason(err error) string {
	switch {
	case errors.Is(err, inventorydomain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, inventorydomain.ErrUnknownVariant):
		return "unknown_variant"
	default:
		return "error"
	}
}

// discountSummary returns the local discount id, the code shown to the
// customer and the discount type for the order row.
func discountSummary(session *paymentdomain.CheckoutSession) (id, code, kind string) {
	id = strings.TrimSpace(session.Meta(paymentdomain.MetadataDiscountID))
	code = strings.TrimSpace(session.Meta(paymentdomain.MetadataDiscountCode))
	if id != "" {
		kind = discountdomain.TypeLocal
	}
	if len(session.Discounts) > 0 {
		first := session.Discounts[0]
		if code == "" {
			code = first.Code
		}
		if kind == "" {
			kind = first.Type()
		}
	}
	return id, code, kind
}

func shippingAddress(session *paymentdomain.CheckoutSession) orderdomain.ShippingAddress {
	addr := orderdomain.ShippingAddress{Name: session.ShippingName}
	if a := session.ShippingAddress; a != nil {
		addr.Line1 = a.Line1
		addr.Line2 = a.Line2
		addr.City = a.City
		addr.State = a.State
		addr.PostalCode = a.PostalCode
		addr.Country = a.Country
	}
	return addr
}

func failedSteps(results []stepResult) []string {
	var out []string
	for _, r := range results {
		if r.err != nil && !r.skipped {
			out = append(out, r.name)
		}
	}
	return out
}
