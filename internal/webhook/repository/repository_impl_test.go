package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/webhook/domain"
	"github.com/smallbiznis/storefront/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func TestAdmitIsInsertIfAbsent(t *testing.T) {
	db := dbtest.Open(t, &domain.IdempotencyRecord{})
	node := newNode(t)
	r := Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	fresh, err := r.Admit(ctx, db, &domain.IdempotencyRecord{ID: node.Generate(), EventID: "evt_1", EventType: "invoice.paid", ReceivedAt: now})
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = r.Admit(ctx, db, &domain.IdempotencyRecord{ID: node.Generate(), EventID: "evt_1", EventType: "invoice.paid", ReceivedAt: now})
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, r.MarkProcessed(ctx, db, "evt_1", now))
	assert.Equal(t, int64(1), dbtest.Count(t, db, "SELECT COUNT(1) FROM webhook_events WHERE event_id = ? AND processed_at IS NOT NULL", "evt_1"))
}

func TestAdmitConcurrentDeliveries(t *testing.T) {
	db := dbtest.Open(t, &domain.IdempotencyRecord{})
	node := newNode(t)
	r := Provide()

	const workers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Admit(context.Background(), db, &domain.IdempotencyRecord{
				ID:         node.Generate(),
				EventID:    "evt_race",
				EventType:  "checkout.session.completed",
				ReceivedAt: time.Now().UTC(),
			})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Equal(t, int64(1), dbtest.Count(t, db, "SELECT COUNT(1) FROM webhook_events"))
}

func TestFailuresListPagesNewestFirst(t *testing.T) {
	db := dbtest.Open(t, &domain.FailureRecord{})
	node := newNode(t)
	r := Provide()
	ctx := context.Background()

	ids := make([]snowflake.ID, 0, 3)
	for i := 0; i < 3; i++ {
		rec := &domain.FailureRecord{
			ID:           node.Generate(),
			EventID:      fmt.Sprintf("evt_%d", i),
			EventType:    "invoice.paid",
			RawPayload:   datatypes.JSON(`{"id":"evt"}`),
			ErrorMessage: "boom",
			LoggedAt:     time.Now().UTC(),
		}
		require.NoError(t, r.InsertFailure(ctx, db, rec))
		ids = append(ids, rec.ID)
	}

	page, err := r.ListFailures(ctx, db, domain.FailureFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	rest, err := r.ListFailures(ctx, db, domain.FailureFilter{AfterID: page[1].ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[0], rest[0].ID)

	require.NoError(t, r.MarkReplayed(ctx, db, ids[0], time.Now().UTC()))
	assert.ErrorIs(t, r.MarkReplayed(ctx, db, ids[0], time.Now().UTC()), domain.ErrAlreadyReplayed)

	pending, err := r.ListFailures(ctx, db, domain.FailureFilter{PendingOnly: true})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	found, err := r.FindFailure(ctx, db, ids[0])
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.NotNil(t, found.ReplayedAt)

	missing, err := r.FindFailure(ctx, db, node.Generate())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
