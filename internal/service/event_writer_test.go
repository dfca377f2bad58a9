package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/ledger-ingest/internal/domain"
	"github.com/josh-kwaku/ledger-ingest/internal/repository"
	"github.com/josh-kwaku/ledger-ingest/internal/testutil"
)

func TestEventWriter_CreateIfNotExists_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	events := repository.NewEventRepository(db)
	writer := NewEventWriter(events, slog.Default())
	ctx := context.Background()

	ev := testutil.AnEvent().Build()

	outcome, err := writer.CreateIfNotExists(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, EventCreated, outcome)

	// Redelivery carries the same identity key but a fresh queue message id.
	redelivered := *ev
	redelivered.ID = 0
	redelivered.QueueMessageID = "2-0"

	outcome, err = writer.CreateIfNotExists(ctx, &redelivered)
	require.NoError(t, err)
	assert.Equal(t, EventAlreadyExists, outcome)

	count, err := events.CountByResourceExternalID(ctx, ev.ResourceExternalID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEventWriter_CreateIfNotExists_DistinctEventsBothStored(t *testing.T) {
	db := testutil.SetupTestDB(t)
	events := repository.NewEventRepository(db)
	writer := NewEventWriter(events, slog.Default())
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	first := testutil.AnEvent().
		WithResourceExternalID("payment-1").
		WithEventType("PAYMENT_CREATED").
		WithEventDate(base).
		Build()
	second := testutil.AnEvent().
		WithResourceExternalID("payment-1").
		WithEventType("PAYMENT_CREATED").
		WithEventDate(base.Add(time.Second)).
		Build()

	outcome, err := writer.CreateIfNotExists(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, EventCreated, outcome)

	// Same type, different event date, so a different fact.
	outcome, err = writer.CreateIfNotExists(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, EventCreated, outcome)

	count, err := events.CountByResourceExternalID(ctx, "payment-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEventWriter_CreateIfNotExists_RejectsInvalidEvents(t *testing.T) {
	db := testutil.SetupTestDB(t)
	events := repository.NewEventRepository(db)
	writer := NewEventWriter(events, slog.Default())
	ctx := context.Background()

	tests := []struct {
		name  string
		event *domain.Event
	}{
		{
			name:  "missing resource external id",
			event: testutil.AnEvent().WithResourceExternalID("").Build(),
		},
		{
			name:  "missing event type",
			event: testutil.AnEvent().WithEventType("").Build(),
		},
		{
			name:  "missing event date",
			event: testutil.AnEvent().WithEventDate(time.Time{}).Build(),
		},
		{
			name:  "unknown resource type",
			event: testutil.AnEvent().WithResourceType(domain.ResourceType("voucher")).Build(),
		},
		{
			name:  "malformed event data",
			event: testutil.AnEvent().WithEventData(`{"amount": `).Build(),
		},
		{
			name:  "event data is a JSON array",
			event: testutil.AnEvent().WithEventData(`[1, 2]`).Build(),
		},
		{
			name:  "event data is a JSON scalar",
			event: testutil.AnEvent().WithEventData(`"paid"`).Build(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := writer.CreateIfNotExists(ctx, tt.event)
			assert.Equal(t, EventRejected, outcome)
			require.ErrorIs(t, err, domain.ErrInvalidEvent)
		})
	}

	var stored int
	err := db.QueryRow(`SELECT count(*) FROM events`).Scan(&stored)
	require.NoError(t, err)
	assert.Zero(t, stored, "rejected events must never be persisted")
}
