package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	customerdomain "github.com/smallbiznis/storefront/internal/customer/domain"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/providers/analytics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        paymentdomain.Repository
	OrderRepo   orderdomain.Repository
	CustomerSvc customerdomain.Service
	Tracker     analytics.Tracker
	Clock       clock.Clock `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        paymentdomain.Repository
	orderRepo   orderdomain.Repository
	customerSvc customerdomain.Service
	tracker     analytics.Tracker
	clock       clock.Clock
}

func NewService(p Params) paymentdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		orderRepo:   p.OrderRepo,
		customerSvc: p.CustomerSvc,
		tracker:     p.Tracker,
		clock:       clk,
	}
}

// RecordSucceeded stores a succeeded purchase outcome. A payment whose owner
// cannot be resolved is logged as an error and skipped.
func (s *Service) RecordSucceeded(ctx context.Context, intent *paymentdomain.PaymentIntent) error {
	if intent == nil || strings.TrimSpace(intent.ID) == "" {
		return paymentdomain.ErrInvalidEvent
	}
	log := logger.WithContext(ctx, s.log).With(zap.String("payment_intent_id", intent.ID))

	userID, err := s.resolveOwner(ctx, intent)
	if err != nil {
		if errors.Is(err, customerdomain.ErrOrphanedCustomer) {
			log.Error("payment succeeded without a resolvable owner",
				zap.String("customer_id", intent.CustomerID),
				zap.Int64("amount", intent.Amount),
			)
			return nil
		}
		return err
	}

	return s.upsertOutcome(ctx, intent, userID, paymentdomain.PurchaseStatusSucceeded)
}

// RecordFailed stores a failed outcome when the owner is known and always
// emits payment_failed.
func (s *Service) RecordFailed(ctx context.Context, intent *paymentdomain.PaymentIntent) error {
	if intent == nil || strings.TrimSpace(intent.ID) == "" {
		return paymentdomain.ErrInvalidEvent
	}
	log := logger.WithContext(ctx, s.log).With(zap.String("payment_intent_id", intent.ID))

	userID := strings.TrimSpace(intent.Metadata[paymentdomain.MetadataUserID])
	if userID != "" {
		if err := s.upsertOutcome(ctx, intent, userID, paymentdomain.PurchaseStatusFailed); err != nil {
			return err
		}
	}

	props := map[string]any{
		"payment_intent_id": intent.ID,
		"amount":            intent.Amount,
		"currency":          intent.Currency,
		"failure_code":      intent.LastErrorCode,
	}
	if userID != "" {
		props["user_id"] = userID
	}
	if err := s.tracker.Track(ctx, analytics.EventPaymentFailed, props); err != nil {
		log.Warn("track payment_failed failed", zap.Error(err))
	}
	return nil
}

// RecordRefund classifies a refund as full or partial and stamps the order.
func (s *Service) RecordRefund(ctx context.Context, charge *paymentdomain.Charge) error {
	if charge == nil || strings.TrimSpace(charge.ID) == "" {
		return paymentdomain.ErrInvalidEvent
	}
	log := logger.WithContext(ctx, s.log).With(
		zap.String("charge_id", charge.ID),
		zap.String("payment_intent_id", charge.PaymentIntentID),
	)

	if strings.TrimSpace(charge.PaymentIntentID) == "" {
		log.Warn("refunded charge has no payment intent, skipping")
		return nil
	}

	order, err := s.orderRepo.FindByPaymentIntent(ctx, s.db, charge.PaymentIntentID)
	if err != nil {
		return err
	}
	if order == nil {
		log.Warn("no order for refunded charge")
		return nil
	}

	// amount_refunded is cumulative, so an older delivery never lowers it.
	status := RefundStatus(charge.Amount, charge.AmountRefunded)
	applied, err := s.orderRepo.MarkRefunded(ctx, s.db, order.ID, status, charge.AmountRefunded, s.clock.Now())
	if err != nil {
		return err
	}
	if !applied {
		log.Info("stale refund ignored",
			zap.String("order_id", order.ID.String()),
			zap.Int64("amount_refunded", charge.AmountRefunded),
			zap.Int64("stored_refunded_amount", order.RefundedAmount),
		)
		return nil
	}
	log.Info("order refunded",
		zap.String("order_id", order.ID.String()),
		zap.String("status", status),
		zap.Int64("amount_refunded", charge.AmountRefunded),
	)
	return nil
}

// RefundStatus is refunded when the whole charge came back, otherwise partially_refunded.
func RefundStatus(amount, amountRefunded int64) string {
	if amountRefunded >= amount {
		return orderdomain.StatusRefunded
	}
	return orderdomain.StatusPartiallyRefunded
}

func (s *Service) resolveOwner(ctx context.Context, intent *paymentdomain.PaymentIntent) (string, error) {
	if userID := strings.TrimSpace(intent.Metadata[paymentdomain.MetadataUserID]); userID != "" {
		return userID, nil
	}
	profile, err := s.customerSvc.ResolveByGatewayCustomer(ctx, intent.CustomerID)
	if err != nil {
		return "", err
	}
	return profile.UserID, nil
}

// upsertOutcome inserts the purchase or updates a non-succeeded row. A
// succeeded row is final.
func (s *Service) upsertOutcome(ctx context.Context, intent *paymentdomain.PaymentIntent, userID, status string) error {
	now := s.clock.Now()
	purchase := paymentdomain.Purchase{
		ID:              s.genID.Generate(),
		PaymentIntentID: intent.ID,
		UserID:          userID,
		Amount:          intent.Amount,
		Currency:        strings.ToLower(intent.Currency),
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if status == paymentdomain.PurchaseStatusFailed {
		purchase.FailureCode = intent.LastErrorCode
		purchase.FailureMessage = intent.LastErrorMessage
	}

	inserted, err := s.repo.InsertPurchase(ctx, s.db, &purchase)
	if err != nil {
		return err
	}
	if inserted {
		return nil
	}

	existing, err := s.repo.FindPurchase(ctx, s.db, intent.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return paymentdomain.ErrNotFound
	}
	if existing.Status == paymentdomain.PurchaseStatusSucceeded {
		return nil
	}

	purchase.ID = existing.ID
	return s.repo.UpdatePurchase(ctx, s.db, &purchase)
}
