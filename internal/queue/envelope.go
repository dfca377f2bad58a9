package queue

import (
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/ledger-ingest/internal/domain"
)

// Stream entry field names. The full event rides in "event" as JSON; "kind" is
// a coarse string attribute producers set for filtering and routing.
const (
	fieldEvent = "event"
	fieldKind  = "kind"
)

// Envelope wraps one queue message for the duration of a processing attempt.
// QueueMessageID doubles as the delivery handle for Acknowledge and Defer.
// A malformed body sets DecodeErr instead of failing the whole batch, so the
// dispatcher can report the message individually.
type Envelope struct {
	QueueMessageID string
	Kind           string
	DeliveryCount  int64
	Event          *domain.Event
	DecodeErr      error
}

func envelopeFrom(msg redis.XMessage, deliveryCount int64) Envelope {
	env := Envelope{QueueMessageID: msg.ID, DeliveryCount: deliveryCount}
	if kind, ok := msg.Values[fieldKind].(string); ok {
		env.Kind = kind
	}

	body, ok := msg.Values[fieldEvent].(string)
	if !ok {
		env.DecodeErr = fmt.Errorf("message %s has no %q field", msg.ID, fieldEvent)
		return env
	}

	var ev domain.Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		env.DecodeErr = fmt.Errorf("decode message %s: %w", msg.ID, err)
		return env
	}
	ev.QueueMessageID = msg.ID
	env.Event = &ev
	return env
}
