package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
)

// Service is the webhook pipeline entry point plus the operator surface over
// the failure audit log.
type Service interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) Response
	ListFailures(ctx context.Context, req ListFailuresRequest) (*ListFailuresResponse, error)
	Replay(ctx context.Context, failureID snowflake.ID) (*ReplayResult, error)
}

type ListFailuresRequest struct {
	pagination.Pagination
	PendingOnly bool `form:"pending"`
}

type ListFailuresResponse struct {
	Failures []*FailureRecord    `json:"failures"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type ReplayResult struct {
	FailureID     snowflake.ID `json:"failure_id"`
	EventID       string       `json:"event_id"`
	EventType     string       `json:"event_type"`
	CorrelationID string       `json:"correlation_id"`
	ReplayedAt    time.Time    `json:"replayed_at"`
}

var (
	ErrAuthentication   = errors.New("authentication_failed")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrDuplicateEvent   = errors.New("duplicate_event")
	ErrFailureNotFound  = errors.New("failure_not_found")
	ErrAlreadyReplayed  = errors.New("failure_already_replayed")
	ErrReplayInProgress = errors.New("replay_in_progress")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
