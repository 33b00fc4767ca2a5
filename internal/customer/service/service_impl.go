package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/customer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
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
		log:   p.Log.Named("customer.service"),
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) ResolveByGatewayCustomer(ctx context.Context, customerID string) (*domain.Profile, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.ErrOrphanedCustomer
	}
	profile, err := s.repo.FindByGatewayCustomer(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, domain.ErrOrphanedCustomer
	}
	return profile, nil
}

func (s *Service) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	profile, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, domain.ErrProfileNotFound
	}
	return profile, nil
}

func (s *Service) LinkGatewayCustomer(ctx context.Context, userID, customerID, email string) error {
	userID = strings.TrimSpace(userID)
	customerID = strings.TrimSpace(customerID)
	if userID == "" {
		return domain.ErrInvalidUserID
	}
	if customerID == "" {
		return nil
	}
	return s.repo.LinkGatewayCustomer(ctx, s.db, userID, customerID, email, s.clock.Now())
}

func (s *Service) ApplyTierUpgrade(ctx context.Context, userID, tier string) (domain.TierChange, error) {
	tier = strings.ToLower(strings.TrimSpace(tier))
	if tier == "" {
		return domain.TierChange{}, domain.ErrInvalidTier
	}
	profile, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return domain.TierChange{}, err
	}

	change := domain.TierChange{
		UserID:   profile.UserID,
		FromTier: profile.Tier,
		ToTier:   tier,
	}
	if profile.Tier == tier {
		return change, nil
	}
	if err := s.repo.UpdateTier(ctx, s.db, profile.UserID, tier, s.clock.Now()); err != nil {
		return domain.TierChange{}, err
	}
	s.log.Info("tier upgraded",
		zap.String("user_id", profile.UserID),
		zap.String("from_tier", change.FromTier),
		zap.String("to_tier", change.ToTier),
	)
	return change, nil
}

func (s *Service) MirrorSubscription(ctx context.Context, userID string, mirror domain.SubscriptionMirror) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrInvalidUserID
	}
	return s.repo.UpdateSubscriptionMirror(ctx, s.db, userID, mirror, s.clock.Now())
}

func (s *Service) CompleteReferral(ctx context.Context, referredUserID string) (bool, error) {
	referredUserID = strings.TrimSpace(referredUserID)
	if referredUserID == "" {
		return false, domain.ErrInvalidUserID
	}
	return s.repo.CompletePendingReferral(ctx, s.db, referredUserID, s.clock.Now())
}
