package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/ledger-ingest/internal/domain"
)

// ErrUnavailable marks transport/service failures, as opposed to an empty
// receive, which is a normal outcome and returns an empty batch.
var ErrUnavailable = errors.New("queue unavailable")

type Config struct {
	Stream   string
	Group    string
	Consumer string

	// BatchSize and ReceiveWait bound one ReceiveBatch call.
	BatchSize   int
	ReceiveWait time.Duration

	// Visibility is how long a delivered-but-unacknowledged entry stays
	// invisible to other consumers before it is eligible for redelivery.
	Visibility time.Duration

	// MaxDeliveries moves entries delivered more than this many times to the
	// dead-letter stream (<Stream>:dead). 0 disables dead-lettering.
	MaxDeliveries int64

	// MaxLen approximately caps the stream on Publish. 0 leaves it unbounded.
	MaxLen int64
}

// Gateway adapts a Redis Stream consumer group to the at-least-once queue
// contract: batched receive, explicit acknowledge, visibility-delay defer.
// All state lives in Redis; the gateway itself holds none.
type Gateway struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger
}

// Connect initializes a Redis client from a redis:// URL or a host:port pair.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("Connect: parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

func NewGateway(client *redis.Client, cfg Config, logger *slog.Logger) *Gateway {
	return &Gateway{client: client, cfg: cfg, logger: logger}
}

// EnsureGroup creates the stream and consumer group if they do not exist yet.
func (g *Gateway) EnsureGroup(ctx context.Context) error {
	err := g.client.XGroupCreateMkStream(ctx, g.cfg.Stream, g.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("EnsureGroup: %w", unavailable(err))
	}
	return nil
}

// ReceiveBatch returns up to BatchSize envelopes, blocking up to ReceiveWait
// for new entries. Entries another consumer received but never acknowledged
// are reclaimed first once their visibility window has elapsed; fresh entries
// fill the remainder. A timeout with nothing to deliver returns an empty
// batch and no error.
func (g *Gateway) ReceiveBatch(ctx context.Context) ([]Envelope, error) {
	envelopes, err := g.reclaimExpired(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReceiveBatch: %w", err)
	}

	remaining := g.cfg.BatchSize - len(envelopes)
	if remaining <= 0 {
		return envelopes, nil
	}

	streams, err := g.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    g.cfg.Group,
		Consumer: g.cfg.Consumer,
		Streams:  []string{g.cfg.Stream, ">"},
		Count:    int64(remaining),
		Block:    g.cfg.ReceiveWait,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return envelopes, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return envelopes, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReceiveBatch: %w", unavailable(err))
	}

	for _, s := range streams {
		for _, msg := range s.Messages {
			envelopes = append(envelopes, envelopeFrom(msg, 1))
		}
	}
	return envelopes, nil
}

// reclaimExpired redelivers pending entries whose visibility window has
// elapsed, dead-lettering any that exceeded MaxDeliveries.
func (g *Gateway) reclaimExpired(ctx context.Context) ([]Envelope, error) {
	pending, err := g.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: g.cfg.Stream,
		Group:  g.cfg.Group,
		Idle:   g.cfg.Visibility,
		Start:  "-",
		End:    "+",
		Count:  int64(g.cfg.BatchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	deliveries := make(map[string]int64, len(pending))
	claimIDs := make([]string, 0, len(pending))
	for _, p := range pending {
		if g.cfg.MaxDeliveries > 0 && p.RetryCount > g.cfg.MaxDeliveries {
			if err := g.deadLetter(ctx, p.ID, p.RetryCount); err != nil {
				g.logger.Warn("failed to dead-letter message",
					"queue_message_id", p.ID, "error", err)
			}
			continue
		}
		deliveries[p.ID] = p.RetryCount
		claimIDs = append(claimIDs, p.ID)
	}
	if len(claimIDs) == 0 {
		return nil, nil
	}

	claimed, err := g.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   g.cfg.Stream,
		Group:    g.cfg.Group,
		Consumer: g.cfg.Consumer,
		MinIdle:  g.cfg.Visibility,
		Messages: claimIDs,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	envelopes := make([]Envelope, 0, len(claimed))
	for _, msg := range claimed {
		envelopes = append(envelopes, envelopeFrom(msg, deliveries[msg.ID]+1))
	}
	return envelopes, nil
}

// Acknowledge permanently removes the message from the pending list so it is
// not redelivered. A failure here means the message may be delivered again;
// ingestion is idempotent, so callers tolerate that.
func (g *Gateway) Acknowledge(ctx context.Context, env Envelope) error {
	if err := g.client.XAck(ctx, g.cfg.Stream, g.cfg.Group, env.QueueMessageID).Err(); err != nil {
		return fmt.Errorf("Acknowledge: %w", unavailable(err))
	}
	return nil
}

// Defer makes the message invisible for roughly delay, then eligible for
// redelivery. An entry is reclaimable once idle >= Visibility, so rewinding
// its idle clock to Visibility-delay re-opens it after delay. JUSTID keeps
// the delivery counter untouched, matching the visibility-change contract.
func (g *Gateway) Defer(ctx context.Context, env Envelope, delay time.Duration) error {
	idle := g.cfg.Visibility - delay
	if idle < 0 {
		idle = 0
	}
	err := g.client.Do(ctx,
		"xclaim", g.cfg.Stream, g.cfg.Group, g.cfg.Consumer, "0", env.QueueMessageID,
		"idle", int64(idle/time.Millisecond), "justid",
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("Defer: %w", unavailable(err))
	}
	return nil
}

// Publish appends an event to the stream. Used by the producer side
// (event generator, tests); consumers never call it.
func (g *Gateway) Publish(ctx context.Context, ev *domain.Event, kind string) (string, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("Publish: marshal: %w", err)
	}

	id, err := g.client.XAdd(ctx, &redis.XAddArgs{
		Stream: g.cfg.Stream,
		MaxLen: g.cfg.MaxLen,
		Approx: true,
		Values: map[string]any{fieldEvent: string(body), fieldKind: kind},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("Publish: %w", unavailable(err))
	}
	return id, nil
}

func (g *Gateway) deadLetter(ctx context.Context, id string, deliveries int64) error {
	msgs, err := g.client.XRange(ctx, g.cfg.Stream, id, id).Result()
	if err != nil {
		return unavailable(err)
	}
	if len(msgs) == 0 {
		// MAXLEN trimming removed the entry while it was pending. There is
		// nothing left to copy; ack so the pending list stops carrying it.
		if err := g.client.XAck(ctx, g.cfg.Stream, g.cfg.Group, id).Err(); err != nil {
			return unavailable(err)
		}
		g.logger.Warn("poison message trimmed before dead-lettering, content lost",
			"queue_message_id", id, "deliveries", deliveries)
		return nil
	}

	values := make(map[string]any, len(msgs[0].Values)+1)
	for k, v := range msgs[0].Values {
		values[k] = v
	}
	values["deliveries"] = deliveries
	err = g.client.XAdd(ctx, &redis.XAddArgs{
		Stream: g.cfg.Stream + ":dead",
		Values: values,
	}).Err()
	if err != nil {
		return unavailable(err)
	}
	if err := g.client.XAck(ctx, g.cfg.Stream, g.cfg.Group, id).Err(); err != nil {
		return unavailable(err)
	}
	g.logger.Warn("message moved to dead-letter stream",
		"queue_message_id", id, "deliveries", deliveries)
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
