package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Admit inserts the record unless its event id is already present and
	// reports whether this call inserted it.
	Admit(ctx context.Context, db *gorm.DB, record *IdempotencyRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, eventID string, processedAt time.Time) error

	InsertFailure(ctx context.Context, db *gorm.DB, record *FailureRecord) error
	ListFailures(ctx context.Context, db *gorm.DB, filter FailureFilter) ([]*FailureRecord, error)
	FindFailure(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FailureRecord, error)
	MarkReplayed(ctx context.Context, db *gorm.DB, id snowflake.ID, replayedAt time.Time) error
}
