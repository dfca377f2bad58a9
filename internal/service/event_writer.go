package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/josh-kwaku/ledger-ingest/internal/domain"
)

type eventStore interface {
	InsertIfNotExists(ctx context.Context, event *domain.Event) (bool, error)
}

type CreateEventOutcome int

const (
	EventCreated CreateEventOutcome = iota
	EventAlreadyExists
	EventRejected
)

func (o CreateEventOutcome) String() string {
	switch o {
	case EventCreated:
		return "created"
	case EventAlreadyExists:
		return "already_exists"
	case EventRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// EventWriter durably records event facts before anything else happens to
// them: the projection is only ever fed facts that are already stored.
type EventWriter struct {
	events eventStore
	logger *slog.Logger
}

func NewEventWriter(events eventStore, logger *slog.Logger) *EventWriter {
	return &EventWriter{events: events, logger: logger}
}

// CreateIfNotExists persists the fact idempotently. EventRejected means the
// event failed validation and retrying cannot help; the returned error then
// wraps domain.ErrInvalidEvent and describes the failure. Any other non-nil
// error is an infrastructure failure and the outcome must be ignored.
func (w *EventWriter) CreateIfNotExists(ctx context.Context, event *domain.Event) (CreateEventOutcome, error) {
	if err := validateEvent(event); err != nil {
		return EventRejected, err
	}

	created, err := w.events.InsertIfNotExists(ctx, event)
	if err != nil {
		return EventCreated, fmt.Errorf("CreateIfNotExists: %w", err)
	}
	if !created {
		return EventAlreadyExists, nil
	}
	return EventCreated, nil
}

func validateEvent(event *domain.Event) error {
	switch {
	case event.ResourceExternalID == "":
		return fmt.Errorf("missing resource external id: %w", domain.ErrInvalidEvent)
	case event.EventType == "":
		return fmt.Errorf("missing event type: %w", domain.ErrInvalidEvent)
	case event.EventDate.IsZero():
		return fmt.Errorf("missing event date: %w", domain.ErrInvalidEvent)
	case !event.ResourceType.IsValid():
		return fmt.Errorf("unknown resource type %q: %w", event.ResourceType, domain.ErrInvalidEvent)
	case len(event.EventData) > 0 && !jsonObject(event.EventData):
		return fmt.Errorf("event data is not a JSON object: %w", domain.ErrInvalidEvent)
	}
	return nil
}

// jsonObject reports whether data is a single JSON object. The projection folds
// payload fields in by name, so arrays and bare scalars are invalid here even
// though they are well-formed JSON.
func jsonObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
