package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Admit(ctx context.Context, db *gorm.DB, record *domain.IdempotencyRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (id, event_id, event_type, received_at, processed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`,
		record.ID,
		record.EventID,
		record.EventType,
		record.ReceivedAt,
		record.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, eventID string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed_at = ?
		 WHERE event_id = ?`,
		processedAt,
		eventID,
	).Error
}

func (r *repo) InsertFailure(ctx context.Context, db *gorm.DB, record *domain.FailureRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) ListFailures(ctx context.Context, db *gorm.DB, filter domain.FailureFilter) ([]*domain.FailureRecord, error) {
	query := db.WithContext(ctx).Model(&domain.FailureRecord{})
	if filter.AfterID != 0 {
		query = query.Where("id < ?", filter.AfterID)
	}
	if filter.PendingOnly {
		query = query.Where("replayed_at IS NULL")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var items []*domain.FailureRecord
	if err := query.Order("id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindFailure(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FailureRecord, error) {
	var item domain.FailureRecord
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) MarkReplayed(ctx context.Context, db *gorm.DB, id snowflake.ID, replayedAt time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE webhook_failures
		 SET replayed_at = ?
		 WHERE id = ? AND replayed_at IS NULL`,
		replayedAt,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlreadyReplayed
	}
	return nil
}
