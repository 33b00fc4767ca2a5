package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/discount/domain"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("discount.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) RecordPromotions(ctx context.Context, session *paymentdomain.CheckoutSession, userID string) (int, error) {
	if session == nil || session.ID == "" {
		return 0, domain.ErrInvalidDiscount
	}
	if len(session.Discounts) == 0 {
		return 0, nil
	}

	firstOrder := false
	if session.CustomerID != "" {
		prior, err := s.repo.CountRedemptionsByCustomer(ctx, s.db, session.CustomerID, session.ID)
		if err != nil {
			return 0, err
		}
		firstOrder = prior == 0
	}

	recorded := 0
	for _, line := range session.Discounts {
		if strings.TrimSpace(line.CouponID) == "" {
			continue
		}
		inserted, err := s.repo.InsertRedemption(ctx, s.db, &domain.PromotionRedemption{
			ID:             s.genID.Generate(),
			Code:           line.Code,
			CouponID:       line.CouponID,
			CustomerID:     session.CustomerID,
			UserID:         userID,
			SessionID:      session.ID,
			DiscountType:   line.Type(),
			DiscountValue:  line.Value(),
			DiscountAmount: line.Amount,
			IsFirstOrder:   firstOrder,
			OrderType:      session.Mode,
			CreatedAt:      s.clock.Now(),
		})
		if err != nil {
			return recorded, err
		}
		if inserted {
			recorded++
		}
	}

	if recorded > 0 {
		logger.WithContext(ctx, s.log).Info("promotion redemptions recorded",
			zap.String("session_id", session.ID),
			zap.Int("count", recorded),
			zap.Bool("first_order", firstOrder),
		)
	}
	return recorded, nil
}

func (s *Service) RedeemLocal(ctx context.Context, session *paymentdomain.CheckoutSession, userID string) (bool, error) {
	if session == nil || session.ID == "" {
		return false, domain.ErrInvalidDiscount
	}
	discountID := strings.TrimSpace(session.Meta(paymentdomain.MetadataDiscountID))
	if discountID == "" {
		return false, nil
	}
	log := logger.WithContext(ctx, s.log).With(
		zap.String("discount_id", discountID),
		zap.String("session_id", session.ID),
	)

	redeemed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		discount, err := s.repo.FindDiscount(ctx, tx, discountID)
		if err != nil {
			return err
		}
		if discount == nil {
			return domain.ErrDiscountNotFound
		}

		code := strings.TrimSpace(session.Meta(paymentdomain.MetadataDiscountCode))
		if code == "" {
			code = discount.Code
		}
		inserted, err := s.repo.InsertRedemption(ctx, tx, &domain.PromotionRedemption{
			ID:             s.genID.Generate(),
			Code:           code,
			CouponID:       discount.ID,
			CustomerID:     session.CustomerID,
			UserID:         userID,
			SessionID:      session.ID,
			DiscountType:   domain.TypeLocal,
			DiscountAmount: session.AmountDiscount,
			OrderType:      session.Mode,
			CreatedAt:      s.clock.Now(),
		})
		if err != nil || !inserted {
			return err
		}
		if err := s.repo.IncrementRedemption(ctx, tx, discount.ID, s.clock.Now()); err != nil {
			return err
		}
		if discount.MaxRedemptions != nil && discount.RedemptionCount+1 > *discount.MaxRedemptions {
			log.Warn("discount redeemed past its limit",
				zap.Int64("redemption_count", discount.RedemptionCount+1),
				zap.Int64("max_redemptions", *discount.MaxRedemptions),
			)
		}
		redeemed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if redeemed {
		log.Info("local discount redeemed")
	}
	return redeemed, nil
}
