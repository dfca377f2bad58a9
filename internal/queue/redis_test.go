package queue

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/ledger-ingest/internal/domain"
	"github.com/josh-kwaku/ledger-ingest/internal/testutil"
)

func testGateway(t *testing.T, cfg Config) *Gateway {
	t.Helper()
	client := testutil.SetupTestRedis(t)

	if cfg.Stream == "" {
		cfg.Stream = "ledger-events"
	}
	if cfg.Group == "" {
		cfg.Group = "ledger-ingest"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.ReceiveWait == 0 {
		cfg.ReceiveWait = 100 * time.Millisecond
	}
	if cfg.Visibility == 0 {
		cfg.Visibility = time.Minute
	}

	gateway := NewGateway(client, cfg, slog.Default())
	require.NoError(t, gateway.EnsureGroup(context.Background()))
	return gateway
}

func TestGateway_ReceiveBatch_EmptyStream(t *testing.T) {
	gateway := testGateway(t, Config{})

	envelopes, err := gateway.ReceiveBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, envelopes)
}

func TestGateway_PublishReceiveAcknowledge(t *testing.T) {
	gateway := testGateway(t, Config{})
	ctx := context.Background()

	ev := testutil.AnEvent().WithResourceExternalID("payment-1").Build()
	id, err := gateway.Publish(ctx, ev, string(domain.ResourceTypePayment))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	envelopes, err := gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	env := envelopes[0]
	require.NoError(t, env.DecodeErr)
	require.NotNil(t, env.Event)
	assert.Equal(t, id, env.QueueMessageID)
	assert.Equal(t, id, env.Event.QueueMessageID)
	assert.Equal(t, "payment-1", env.Event.ResourceExternalID)
	assert.Equal(t, string(domain.ResourceTypePayment), env.Kind)
	assert.Equal(t, int64(1), env.DeliveryCount)

	require.NoError(t, gateway.Acknowledge(ctx, env))

	envelopes, err = gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, envelopes, "acknowledged messages must not redeliver")
}

func TestGateway_ReceiveBatch_MalformedEntry(t *testing.T) {
	gateway := testGateway(t, Config{})
	ctx := context.Background()

	valid := testutil.AnEvent().WithResourceExternalID("payment-1").Build()
	_, err := gateway.Publish(ctx, valid, string(domain.ResourceTypePayment))
	require.NoError(t, err)

	// Not produced by Publish: a raw entry with a truncated event body.
	err = gateway.client.XAdd(ctx, &redis.XAddArgs{
		Stream: gateway.cfg.Stream,
		Values: map[string]any{fieldEvent: `{"resource_type": `},
	}).Err()
	require.NoError(t, err)

	envelopes, err := gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	require.Len(t, envelopes, 2)
	assert.NoError(t, envelopes[0].DecodeErr)
	assert.Error(t, envelopes[1].DecodeErr)
	assert.Nil(t, envelopes[1].Event)
}

func TestGateway_ReceiveBatch_DoesNotReclaimWithinVisibility(t *testing.T) {
	gateway := testGateway(t, Config{Visibility: time.Minute})
	ctx := context.Background()

	_, err := gateway.Publish(ctx, testutil.AnEvent().Build(), "payment")
	require.NoError(t, err)

	envelopes, err := gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	// Unacknowledged but still inside the visibility window.
	envelopes, err = gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, envelopes)
}

func TestGateway_ReceiveBatch_ReclaimsAfterVisibility(t *testing.T) {
	gateway := testGateway(t, Config{Visibility: 50 * time.Millisecond})
	ctx := context.Background()

	id, err := gateway.Publish(ctx, testutil.AnEvent().Build(), "payment")
	require.NoError(t, err)

	envelopes, err := gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	time.Sleep(100 * time.Millisecond)

	envelopes, err = gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	require.Len(t, envelopes, 1, "unacknowledged message redelivers after the visibility window")
	assert.Equal(t, id, envelopes[0].QueueMessageID)
	assert.Equal(t, int64(2), envelopes[0].DeliveryCount)
}

func TestGateway_Defer_MakesMessageRedeliverable(t *testing.T) {
	gateway := testGateway(t, Config{Visibility: time.Minute})
	ctx := context.Background()

	id, err := gateway.Publish(ctx, testutil.AnEvent().Build(), "payment")
	require.NoError(t, err)

	envelopes, err := gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	// A zero delay rewinds the idle clock to the full visibility window,
	// so the message is immediately reclaimable despite the long window.
	require.NoError(t, gateway.Defer(ctx, envelopes[0], 0))

	envelopes, err = gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.Equal(t, id, envelopes[0].QueueMessageID)
}

func TestGateway_Defer_KeepsMessageInvisibleForDelay(t *testing.T) {
	gateway := testGateway(t, Config{Visibility: time.Minute})
	ctx := context.Background()

	_, err := gateway.Publish(ctx, testutil.AnEvent().Build(), "payment")
	require.NoError(t, err)

	envelopes, err := gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	require.NoError(t, gateway.Defer(ctx, envelopes[0], 30*time.Second))

	envelopes, err = gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, envelopes, "deferred message stays invisible until its delay elapses")
}

func TestGateway_ReceiveBatch_DeadLettersAfterMaxDeliveries(t *testing.T) {
	gateway := testGateway(t, Config{
		Visibility:    50 * time.Millisecond,
		MaxDeliveries: 1,
	})
	ctx := context.Background()

	_, err := gateway.Publish(ctx, testutil.AnEvent().Build(), "payment")
	require.NoError(t, err)

	// First delivery, then one reclaim; both left unacknowledged.
	for range 2 {
		envelopes, err := gateway.ReceiveBatch(ctx)
		require.NoError(t, err)
		require.Len(t, envelopes, 1)
		time.Sleep(100 * time.Millisecond)
	}

	envelopes, err := gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, envelopes, "exhausted message goes to the dead-letter stream, not the batch")

	deadLen, err := gateway.client.XLen(ctx, gateway.cfg.Stream+":dead").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deadLen)
}

func TestGateway_ReceiveBatch_TrimmedPoisonMessageAckedWithoutCopy(t *testing.T) {
	gateway := testGateway(t, Config{
		Visibility:    50 * time.Millisecond,
		MaxDeliveries: 1,
	})
	ctx := context.Background()

	id, err := gateway.Publish(ctx, testutil.AnEvent().Build(), "payment")
	require.NoError(t, err)

	// Push the delivery count past the cap first; a claim of a deleted entry
	// would otherwise just drop it from the pending list.
	for range 2 {
		envelopes, err := gateway.ReceiveBatch(ctx)
		require.NoError(t, err)
		require.Len(t, envelopes, 1)
		time.Sleep(100 * time.Millisecond)
	}

	// Trimmed out of the stream while still pending.
	require.NoError(t, gateway.client.XDel(ctx, gateway.cfg.Stream, id).Err())

	envelopes, err := gateway.ReceiveBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, envelopes)

	deadLen, err := gateway.client.XLen(ctx, gateway.cfg.Stream+":dead").Result()
	require.NoError(t, err)
	assert.Zero(t, deadLen, "nothing to copy once the entry is gone")

	pending, err := gateway.client.XPending(ctx, gateway.cfg.Stream, gateway.cfg.Group).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count, "trimmed poison message must still be acknowledged")
}
