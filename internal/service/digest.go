package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/josh-kwaku/ledger-ingest/internal/domain"
	"github.com/josh-kwaku/ledger-ingest/internal/state"
)

type transactionStore interface {
	UpsertIfNewer(ctx context.Context, t *domain.Transaction) (bool, error)
}

type ProjectionOutcome int

const (
	ProjectionApplied ProjectionOutcome = iota
	ProjectionIgnoredStale
	ProjectionNoMapping
)

func (o ProjectionOutcome) String() string {
	switch o {
	case ProjectionApplied:
		return "applied"
	case ProjectionIgnoredStale:
		return "ignored_stale"
	case ProjectionNoMapping:
		return "no_mapping"
	default:
		return "unknown"
	}
}

// Digester folds one event into the current-state projection of the resource
// it references. Events arrive in delivery order but are compared by event
// time: an event older than the projection's last applied event never moves
// state backwards.
type Digester struct {
	transactions transactionStore
	logger       *slog.Logger
}

func NewDigester(transactions transactionStore, logger *slog.Logger) *Digester {
	return &Digester{transactions: transactions, logger: logger}
}

// Apply updates the projection for the event's resource, creating it on the
// resource's first event. Stale and unmapped events are expected outcomes,
// not errors: the fact is already stored in history either way. A non-nil
// error is an infrastructure failure and the outcome must be ignored.
func (d *Digester) Apply(ctx context.Context, event *domain.Event) (ProjectionOutcome, error) {
	st, ok := state.FromEventType(event.EventType)
	if !ok {
		d.logger.Debug("event type has no state mapping",
			"event_type", event.EventType,
			"resource_external_id", event.ResourceExternalID,
		)
		return ProjectionNoMapping, nil
	}

	applied, err := d.transactions.UpsertIfNewer(ctx, transactionFromEvent(event, st))
	if err != nil {
		return ProjectionApplied, fmt.Errorf("Apply: %w", err)
	}
	if !applied {
		d.logger.Debug("stale event ignored",
			"event_type", event.EventType,
			"resource_external_id", event.ResourceExternalID,
			"event_date", event.EventDate,
		)
		return ProjectionIgnoredStale, nil
	}
	return ProjectionApplied, nil
}

// eventPayload is the subset of the opaque event data the projection folds in.
// Producers omit fields freely; absent fields never erase earlier values.
type eventPayload struct {
	Amount           *int64 `json:"amount"`
	GatewayAccountID string `json:"gateway_account_id"`
	Reference        string `json:"reference"`
	Description      string `json:"description"`
	Email            string `json:"email"`
}

func transactionFromEvent(event *domain.Event, st state.State) *domain.Transaction {
	var p eventPayload
	if len(event.EventData) > 0 {
		// the writer only stores JSON objects; a mistyped field is the
		// producer's bug and folds in as absent
		_ = json.Unmarshal(event.EventData, &p)
	}

	return &domain.Transaction{
		ExternalID:       event.ResourceExternalID,
		ParentExternalID: event.ParentResourceExternalID,
		GatewayAccountID: p.GatewayAccountID,
		Type:             event.ResourceType,
		Amount:           p.Amount,
		Reference:        p.Reference,
		Description:      p.Description,
		Email:            p.Email,
		State:            st,
		LastEventDate:    event.EventDate,
	}
}
