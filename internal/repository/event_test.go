package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/ledger-ingest/internal/domain"
	"github.com/josh-kwaku/ledger-ingest/internal/testutil"
)

func TestEventRepository_InsertIfNotExists_ConflictReturnsFalse(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	ev := testutil.AnEvent().WithQueueMessageID("1-0").Build()

	created, err := repo.InsertIfNotExists(ctx, ev)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, ev.ID)

	duplicate := *ev
	duplicate.ID = 0
	duplicate.QueueMessageID = "2-0"

	created, err = repo.InsertIfNotExists(ctx, &duplicate)
	require.NoError(t, err)
	assert.False(t, created)

	count, err := repo.CountByResourceExternalID(ctx, ev.ResourceExternalID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEventRepository_FindByResourceExternalID_IncludesChildEvents(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	payment := testutil.AnEvent().
		WithResourceExternalID("payment-1").
		WithEventType("AUTHORISATION_SUCCESSFUL").
		WithEventDate(base).
		Build()
	refund := testutil.AnEvent().
		WithResourceType(domain.ResourceTypeRefund).
		WithResourceExternalID("refund-1").
		WithParentResourceExternalID("payment-1").
		WithEventType("REFUND_CREATED_BY_SERVICE").
		WithEventDate(base.Add(time.Hour)).
		Build()
	unrelated := testutil.AnEvent().
		WithResourceExternalID("payment-2").
		WithEventDate(base.Add(30 * time.Minute)).
		Build()

	_, err := repo.InsertIfNotExists(ctx, payment)
	require.NoError(t, err)
	_, err = repo.InsertIfNotExists(ctx, refund)
	require.NoError(t, err)
	_, err = repo.InsertIfNotExists(ctx, unrelated)
	require.NoError(t, err)

	events, err := repo.FindByResourceExternalID(ctx, "payment-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "payment-1", events[0].ResourceExternalID)
	assert.Equal(t, "refund-1", events[1].ResourceExternalID)
	assert.Equal(t, "payment-1", events[1].ParentResourceExternalID)
}

func TestEventRepository_FindByResourceExternalID_OrdersByEventDate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Inserted newest first; reads must still come back in event time order.
	for _, ev := range []struct {
		eventType string
		offset    time.Duration
	}{
		{"CAPTURE_CONFIRMED", 20 * time.Second},
		{"PAYMENT_CREATED", 0},
		{"AUTHORISATION_SUCCESSFUL", 10 * time.Second},
	} {
		created, err := repo.InsertIfNotExists(ctx, testutil.AnEvent().
			WithResourceExternalID("payment-1").
			WithEventType(ev.eventType).
			WithEventDate(base.Add(ev.offset)).
			Build())
		require.NoError(t, err)
		require.True(t, created)
	}

	events, err := repo.FindByResourceExternalID(ctx, "payment-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "PAYMENT_CREATED", events[0].EventType)
	assert.Equal(t, "AUTHORISATION_SUCCESSFUL", events[1].EventType)
	assert.Equal(t, "CAPTURE_CONFIRMED", events[2].EventType)
}

func TestEventRepository_FindByResourceExternalID_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewEventRepository(db)

	events, err := repo.FindByResourceExternalID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, events)
}
