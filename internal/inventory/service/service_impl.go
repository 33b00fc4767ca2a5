package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/inventory/domain"
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
	Holds domain.HoldStore
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	holds domain.HoldStore
	clock clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("inventory.service"),
		genID: p.GenID,
		repo:  p.Repo,
		holds: p.Holds,
		clock: clk,
	}
}

func (s *Service) Decrement(ctx context.Context, ref domain.OrderRef, item paymentdomain.LineItem) (domain.DecrementResult, error) {
	result := domain.DecrementResult{Quantity: item.Quantity}
	if item.Quantity <= 0 {
		return result, domain.ErrInvalidQuantity
	}

	variant, err := s.repo.ResolveVariant(ctx, s.db,
		item.PriceID,
		item.ProductID,
		item.PriceMetadata[paymentdomain.MetadataVariantID],
	)
	if err != nil {
		return result, err
	}
	if variant == nil {
		return result, domain.ErrUnknownVariant
	}
	result.VariantID = variant.ID

	now := s.clock.Now()
	applied, err := s.repo.DecrementInventory(ctx, s.db, &domain.Adjustment{
		ID:            s.genID.Generate(),
		VariantID:     variant.ID,
		QuantityDelta: -item.Quantity,
		OrderID:       ref.OrderID,
		SessionID:     ref.SessionID,
		LineItemID:    strings.TrimSpace(item.ID),
		CreatedAt:     now,
	}, now)
	if err != nil {
		return result, err
	}
	result.Applied = applied

	log := logger.WithContext(ctx, s.log)
	if applied {
		log.Info("inventory decremented",
			zap.String("variant_id", variant.ID),
			zap.Int64("quantity", item.Quantity),
			zap.String("session_id", ref.SessionID),
		)
	} else {
		log.Debug("inventory already decremented for line item",
			zap.String("variant_id", variant.ID),
			zap.String("line_item_id", item.ID),
			zap.String("session_id", ref.SessionID),
		)
	}
	return result, nil
}

func (s *Service) Hold(ctx context.Context, sessionID, variantID string, quantity int64, ttl time.Duration) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	variant, err := s.repo.FindVariant(ctx, s.db, strings.TrimSpace(variantID))
	if err != nil {
		return err
	}
	if variant == nil {
		return domain.ErrUnknownVariant
	}
	if variant.TrackInventory {
		available, err := s.available(ctx, variant)
		if err != nil {
			return err
		}
		if available < quantity {
			return domain.ErrInsufficientStock
		}
	}
	return s.holds.Place(ctx, sessionID, variant.ID, quantity, ttl)
}

func (s *Service) ReleaseHolds(ctx context.Context, sessionID string) error {
	return s.holds.Release(ctx, sessionID)
}

func (s *Service) Available(ctx context.Context, variantID string) (int64, error) {
	variant, err := s.repo.FindVariant(ctx, s.db, strings.TrimSpace(variantID))
	if err != nil {
		return 0, err
	}
	if variant == nil {
		return 0, domain.ErrUnknownVariant
	}
	return s.available(ctx, variant)
}

func (s *Service) available(ctx context.Context, variant *domain.Variant) (int64, error) {
	reserved, err := s.holds.Reserved(ctx, variant.ID)
	if err != nil {
		return 0, err
	}
	available := variant.StockQuantity - reserved
	if available < 0 {
		available = 0
	}
	return available, nil
}
