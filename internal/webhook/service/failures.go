package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/storefront/internal/observability/context"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	"github.com/smallbiznis/storefront/internal/webhook/domain"
	"github.com/smallbiznis/storefront/internal/webhook/signature"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
	"github.com/smallbiznis/storefront/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

func (s *Service) ListFailures(ctx context.Context, req domain.ListFailuresRequest) (*domain.ListFailuresResponse, error) {
	limit := req.Limit()
	filter := domain.FailureFilter{Limit: limit + 1, PendingOnly: req.PendingOnly}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.ListFailures(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	items, pageInfo, err := pagination.BuildCursorPage(items, limit, func(item *domain.FailureRecord) pagination.Cursor {
		return pagination.Cursor{ID: item.ID.String()}
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.FailureRecord{}
	}

	return &domain.ListFailuresResponse{Failures: items, PageInfo: pageInfo}, nil
}

// Replay dispatches a logged payload again. The payload was authenticated
// when it first arrived, so it is decoded without a signature check and the
// ledger is bypassed.
func (s *Service) Replay(ctx context.Context, failureID snowflake.ID) (result *domain.ReplayResult, err error) {
	record, err := s.repo.FindFailure(ctx, s.db, failureID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrFailureNotFound
	}
	if record.ReplayedAt != nil {
		return nil, domain.ErrAlreadyReplayed
	}

	event, err := signature.Decode(record.RawPayload)
	if err != nil {
		return nil, err
	}

	lockToken, locked, err := s.limiter.TryLockReplay(ctx, failureID.String())
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, domain.ErrReplayInProgress
	}
	defer func() {
		if releaseErr := s.limiter.ReleaseReplay(context.WithoutCancel(ctx), failureID.String(), lockToken); releaseErr != nil {
			s.log.Warn("failed to release replay lock", zap.Error(releaseErr))
		}
	}()

	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	ctx = obscontext.WithEvent(ctx, event.ID, event.Type)
	ctx, span := s.tracer.Start(ctx, "webhook.replay")
	defer span.End()
	log := logger.WithContext(ctx, s.log).With(zap.String("failure_id", failureID.String()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("webhook replay panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = nil
			err = fmt.Errorf("replay %s: panic: %v", event.ID, r)
		}
	}()

	if _, err := s.dispatch(ctx, event); err != nil {
		log.Error("webhook replay failed", zap.Error(err))
		return nil, fmt.Errorf("replay %s: %w", event.ID, err)
	}

	replayedAt := s.clock.Now()
	if err := s.repo.MarkReplayed(ctx, s.db, record.ID, replayedAt); err != nil {
		if errors.Is(err, domain.ErrAlreadyReplayed) {
			log.Warn("failure was replayed concurrently")
		}
		return nil, err
	}

	log.Info("webhook failure replayed")
	return &domain.ReplayResult{
		FailureID:     record.ID,
		EventID:       event.ID,
		EventType:     event.Type,
		CorrelationID: correlationID,
		ReplayedAt:    replayedAt,
	}, nil
}
