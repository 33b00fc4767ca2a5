package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	obscontext "github.com/smallbiznis/storefront/internal/observability/context"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	"github.com/smallbiznis/storefront/internal/observability/metrics"
	"github.com/smallbiznis/storefront/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/storefront/internal/subscription/domain"
	"github.com/smallbiznis/storefront/internal/webhook/domain"
	"github.com/smallbiznis/storefront/internal/webhook/signature"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const errProcessingFailed = "processing_failed"

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Cfg             config.Config
	Repo            domain.Repository
	OrderSvc        orderdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	Metrics         *metrics.Metrics         `optional:"true"`
	Pipeline        *metrics.PipelineMetrics `optional:"true"`
	Limiter         *ratelimit.AdminLimiter  `optional:"true"`
	Clock           clock.Clock              `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	pipeline *metrics.PipelineMetrics
	limiter  *ratelimit.AdminLimiter
	clock    clock.Clock

	secrets   []string
	tolerance time.Duration

	orderSvc        orderdomain.Service
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("webhook.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		tracer:   otel.Tracer("storefront/webhook"),
		metrics:  p.Metrics,
		pipeline: p.Pipeline,
		limiter:  p.Limiter,
		clock:    clk,

		secrets:   p.Cfg.Stripe.WebhookSecrets,
		tolerance: p.Cfg.Stripe.SignatureTolerance,

		orderSvc:        p.OrderSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
	}
}

// Handle verifies, admits and dispatches one delivery. It never returns an
// error: every failure is mapped onto the response the gateway should see,
// and panics raised by handlers are recovered here.
func (s *Service) Handle(ctx context.Context, payload []byte, signatureHeader string) (resp domain.Response) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "webhook.handle", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	var event domain.InboundEvent
	outcome := metrics.OutcomeFailed

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			logger.WithContext(ctx, s.log).Error("webhook handler panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			s.recordFailure(ctx, event, payload, err)
			outcome = metrics.OutcomeFailed
			resp = errorResponse(http.StatusInternalServerError, errProcessingFailed)
		}

		span.SetAttributes(tracing.SafeAttributes(
			attribute.String("event_id", event.ID),
			attribute.String("event_type", event.Type),
			attribute.String("webhook.outcome", outcome),
			attribute.Bool("webhook.duplicate", outcome == metrics.OutcomeDuplicate),
		)...)
		if resp.Status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, outcome)
		}
		s.metrics.RecordWebhookEvent(ctx, event.Type, outcome)
		s.pipeline.ObserveHandle(event.Type, outcome, time.Since(started))
	}()

	var err error
	event, err = signature.Verify(payload, signatureHeader, s.secrets, s.tolerance)
	if err != nil {
		outcome = metrics.OutcomeRejected
		logger.WithContext(ctx, s.log).Warn("webhook rejected", zap.Error(err))
		if errors.Is(err, domain.ErrInvalidPayload) {
			return errorResponse(http.StatusBadRequest, domain.ErrInvalidPayload.Error())
		}
		return errorResponse(http.StatusBadRequest, domain.ErrAuthentication.Error())
	}

	ctx = obscontext.WithEvent(ctx, event.ID, event.Type)
	log := logger.WithContext(ctx, s.log)

	fresh, err := s.repo.Admit(ctx, s.db, &domain.IdempotencyRecord{
		ID:         s.genID.Generate(),
		EventID:    event.ID,
		EventType:  event.Type,
		ReceivedAt: s.clock.Now(),
	})
	if err != nil {
		log.Error("failed to admit webhook event", zap.Error(err))
		s.recordFailure(ctx, event, payload, fmt.Errorf("admit: %w", err))
		return errorResponse(http.StatusInternalServerError, errProcessingFailed)
	}
	if !fresh {
		outcome = metrics.OutcomeDuplicate
		log.Info("duplicate webhook event ignored")
		return domain.Response{Status: http.StatusOK, Body: domain.ResponseBody{Received: true, Duplicate: true}}
	}

	handled, err := s.dispatch(ctx, event)
	if err != nil {
		log.Error("webhook event handling failed", zap.Error(err))
		s.recordFailure(ctx, event, payload, err)
		if errors.Is(err, domain.ErrInvalidPayload) {
			outcome = metrics.OutcomeRejected
			return errorResponse(http.StatusBadRequest, domain.ErrInvalidPayload.Error())
		}
		return errorResponse(http.StatusInternalServerError, errProcessingFailed)
	}

	if err := s.repo.MarkProcessed(ctx, s.db, event.ID, s.clock.Now()); err != nil {
		log.Warn("failed to stamp processed_at", zap.Error(err))
	}

	outcome = metrics.OutcomeProcessed
	if !handled {
		outcome = metrics.OutcomeIgnored
	}
	log.Info("webhook event handled", zap.String("outcome", outcome))
	return domain.Response{Status: http.StatusOK, Body: domain.ResponseBody{Received: true}}
}

// recordFailure appends to the audit log. Its own failure is logged and dropped.
func (s *Service) recordFailure(ctx context.Context, event domain.InboundEvent, payload []byte, cause error) {
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		eventID = "unknown"
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		eventType = "unknown"
	}

	raw := event.Raw
	if len(raw) == 0 {
		raw = payload
	}

	record := &domain.FailureRecord{
		ID:           s.genID.Generate(),
		EventID:      eventID,
		EventType:    eventType,
		RawPayload:   datatypes.JSON(raw),
		ErrorMessage: cause.Error(),
		LoggedAt:     s.clock.Now(),
	}
	if err := s.repo.InsertFailure(ctx, s.db, record); err != nil {
		logger.WithContext(ctx, s.log).Error("failed to write webhook failure record",
			zap.Error(err),
			zap.NamedError("cause", cause),
		)
		return
	}
	s.metrics.RecordWebhookFailure(ctx, eventType)
}

func errorResponse(status int, code string) domain.Response {
	return domain.Response{Status: status, Body: domain.ResponseBody{Error: code}}
}
