package domain

import (
	"time"

	"github.com/josh-kwaku/ledger-ingest/internal/state"
)

// Transaction is the current-state projection for one resource, folded from its
// events. Rows are created on the first event for a resource and mutated in
// place afterwards; history lives in the events table, never here.
type Transaction struct {
	ID               int64
	ExternalID       string
	ParentExternalID string
	GatewayAccountID string
	Type             ResourceType
	Amount           *int64
	Reference        string
	Description      string
	Email            string
	State            state.State
	LastEventDate    time.Time
	EventCount       int
	CreatedAt        time.Time
}
