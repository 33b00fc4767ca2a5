package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	customerdomain "github.com/smallbiznis/storefront/internal/customer/domain"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/providers/analytics"
	subscriptiondomain "github.com/smallbiznis/storefront/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        subscriptiondomain.Repository
	Gateway     paymentdomain.Gateway
	CustomerSvc customerdomain.Service
	Tracker     analytics.Tracker
	Catalog     *config.CatalogHolder `optional:"true"`
	Clock       clock.Clock           `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        subscriptiondomain.Repository
	gateway     paymentdomain.Gateway
	customerSvc customerdomain.Service
	tracker     analytics.Tracker
	catalog     *config.CatalogHolder
	clock       clock.Clock
}

func NewService(p Params) subscriptiondomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("subscription.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		gateway:     p.Gateway,
		customerSvc: p.CustomerSvc,
		tracker:     p.Tracker,
		catalog:     p.Catalog,
		clock:       clk,
	}
}

// Sync upserts the subscription from a full gateway detail and mirrors it onto
// the owner's profile. An unlinked customer is logged and the mirror skipped.
func (s *Service) Sync(ctx context.Context, detail *paymentdomain.SubscriptionDetail) (*subscriptiondomain.Subscription, error) {
	if detail == nil || strings.TrimSpace(detail.ID) == "" || strings.TrimSpace(detail.CustomerID) == "" {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}
	log := logger.WithContext(ctx, s.log).With(
		zap.String("subscription_id", detail.ID),
		zap.String("customer_id", detail.CustomerID),
	)

	userID, linked, err := s.resolveOwner(ctx, detail)
	if err != nil {
		return nil, err
	}
	if !linked {
		log.Warn("subscription customer has no linked profile, skipping mirror")
	}

	label := s.planLabel(ctx, log, detail.PriceID, detail.ProductID)
	now := s.clock.Now()

	var (
		sub         subscriptiondomain.Subscription
		prev        *subscriptiondomain.SubscriptionStatus
		prevOwnerID string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindBySubscriptionIDForUpdate(ctx, tx, detail.ID)
		if err != nil {
			return err
		}

		sub = subscriptiondomain.Subscription{
			SubscriptionID:     detail.ID,
			CustomerID:         detail.CustomerID,
			UserID:             userID,
			PriceID:            detail.PriceID,
			ProductID:          detail.ProductID,
			PlanLabel:          label,
			Status:             subscriptiondomain.SubscriptionStatus(detail.Status),
			CurrentPeriodStart: timePtr(detail.CurrentPeriodStart),
			CurrentPeriodEnd:   timePtr(detail.CurrentPeriodEnd),
			CancelAtPeriodEnd:  detail.CancelAtPeriodEnd,
			CanceledAt:         detail.CanceledAt,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if existing == nil {
			sub.ID = s.genID.Generate()
		} else {
			status := existing.Status
			prev = &status
			prevOwnerID = existing.UserID
			sub.ID = existing.ID
			sub.CreatedAt = existing.CreatedAt
			if sub.UserID == "" {
				sub.UserID = existing.UserID
			}
			if !subscriptiondomain.CanTransition(existing.Status, sub.Status) {
				log.Info("ignoring disallowed status transition",
					zap.String("from", string(existing.Status)),
					zap.String("to", string(sub.Status)),
				)
				sub.Status = existing.Status
				if sub.CanceledAt == nil {
					sub.CanceledAt = existing.CanceledAt
				}
			}
		}
		return s.repo.Upsert(ctx, tx, &sub)
	})
	if err != nil {
		return nil, err
	}

	if linked {
		if err := s.mirror(ctx, log, &sub); err != nil {
			return nil, err
		}
	}

	// A row stored before its customer was linked is reported once the owner is known.
	ownerLearned := prev != nil && prevOwnerID == "" && sub.UserID != ""
	if sub.UserID != "" && (subscriptiondomain.IsActivation(prev, sub.Status) ||
		ownerLearned && subscriptiondomain.IsActivation(nil, sub.Status)) {
		if err := s.tracker.Track(ctx, analytics.EventSubscriptionStarted, map[string]any{
			"user_id":         sub.UserID,
			"subscription_id": sub.SubscriptionID,
			"price_id":        sub.PriceID,
			"plan":            sub.PlanLabel,
			"status":          string(sub.Status),
		}); err != nil {
			log.Warn("track subscription_started failed", zap.Error(err))
		}
	}

	log.Info("subscription synced", zap.String("status", string(sub.Status)))
	return &sub, nil
}

// HandleDeleted marks the subscription canceled. The profile keeps an
// active-like sibling's status when one exists.
func (s *Service) HandleDeleted(ctx context.Context, detail *paymentdomain.SubscriptionDetail) error {
	if detail == nil {
		return subscriptiondomain.ErrInvalidSubscription
	}
	canceled := *detail
	canceled.Status = string(subscriptiondomain.SubscriptionStatusCanceled)
	if canceled.CanceledAt == nil {
		now := s.clock.Now()
		canceled.CanceledAt = &now
	}
	_, err := s.Sync(ctx, &canceled)
	return err
}

// HandleInvoicePaid re-fetches the subscription so the row reflects the
// gateway's state after payment.
func (s *Service) HandleInvoicePaid(ctx context.Context, invoice *paymentdomain.Invoice) error {
	if invoice == nil || strings.TrimSpace(invoice.SubscriptionID) == "" {
		return nil
	}
	detail, err := s.gateway.RetrieveSubscription(ctx, invoice.SubscriptionID)
	if err != nil {
		return err
	}
	_, err = s.Sync(ctx, detail)
	return err
}

// HandleInvoicePaymentFailed moves the subscription to past_due without a
// gateway round trip.
func (s *Service) HandleInvoicePaymentFailed(ctx context.Context, invoice *paymentdomain.Invoice) error {
	if invoice == nil || strings.TrimSpace(invoice.SubscriptionID) == "" {
		return nil
	}
	log := logger.WithContext(ctx, s.log).With(
		zap.String("subscription_id", invoice.SubscriptionID),
		zap.String("invoice_id", invoice.ID),
	)

	var (
		sub     *subscriptiondomain.Subscription
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindBySubscriptionIDForUpdate(ctx, tx, invoice.SubscriptionID)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
		sub = existing
		if existing.Status == subscriptiondomain.SubscriptionStatusPastDue {
			return nil
		}
		if !subscriptiondomain.CanTransition(existing.Status, subscriptiondomain.SubscriptionStatusPastDue) {
			log.Info("subscription cannot move to past_due", zap.String("status", string(existing.Status)))
			return nil
		}
		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, existing.SubscriptionID, subscriptiondomain.SubscriptionStatusPastDue, now); err != nil {
			return err
		}
		sub.Status = subscriptiondomain.SubscriptionStatusPastDue
		sub.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if sub == nil {
		log.Warn("invoice payment failed for unknown subscription")
		return nil
	}
	if !changed || sub.UserID == "" {
		return nil
	}
	return s.mirror(ctx, log, sub)
}

func (s *Service) IsFirstForUser(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}
	count, err := s.repo.CountByUser(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

func (s *Service) resolveOwner(ctx context.Context, detail *paymentdomain.SubscriptionDetail) (string, bool, error) {
	profile, err := s.customerSvc.ResolveByGatewayCustomer(ctx, detail.CustomerID)
	if err == nil {
		return profile.UserID, true, nil
	}
	if !errors.Is(err, customerdomain.ErrOrphanedCustomer) {
		return "", false, err
	}
	return strings.TrimSpace(detail.Metadata[paymentdomain.MetadataUserID]), false, nil
}

// mirror copies status and plan onto the profile. A subscription that is no
// longer active-like defers to an active-like sibling of the same owner.
func (s *Service) mirror(ctx context.Context, log *zap.Logger, sub *subscriptiondomain.Subscription) error {
	mirror := customerdomain.SubscriptionMirror{
		Status: string(sub.Status),
		Plan:   sub.PlanLabel,
	}
	if !subscriptiondomain.IsActiveLike(sub.Status) {
		siblings, err := s.repo.ListSiblings(ctx, s.db, sub)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if subscriptiondomain.IsActiveLike(sibling.Status) {
				mirror = customerdomain.SubscriptionMirror{
					Status: string(sibling.Status),
					Plan:   sibling.PlanLabel,
				}
				log.Info("profile keeps active sibling subscription",
					zap.String("sibling_subscription_id", sibling.SubscriptionID),
				)
				break
			}
		}
	}

	err := s.customerSvc.MirrorSubscription(ctx, sub.UserID, mirror)
	if errors.Is(err, customerdomain.ErrProfileNotFound) {
		log.Warn("profile disappeared before mirror", zap.String("user_id", sub.UserID))
		return nil
	}
	return err
}

func (s *Service) planLabel(ctx context.Context, log *zap.Logger, priceID, productID string) string {
	if s.catalog != nil {
		if label, ok := s.catalog.Get().LabelFor(priceID, productID); ok {
			return label
		}
	}
	if productID == "" || s.gateway == nil {
		return ""
	}
	product, err := s.gateway.RetrieveProduct(ctx, productID)
	if err != nil {
		log.Warn("plan label lookup failed", zap.String("product_id", productID), zap.Error(err))
		return ""
	}
	return product.Name
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
