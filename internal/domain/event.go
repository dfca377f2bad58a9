package domain

import (
	"encoding/json"
	"time"
)

type ResourceType string

const (
	ResourceTypePayment ResourceType = "payment"
	ResourceTypeRefund  ResourceType = "refund"
	ResourceTypePayout  ResourceType = "payout"
	ResourceTypeDispute ResourceType = "dispute"
)

func (rt ResourceType) IsValid() bool {
	switch rt {
	case ResourceTypePayment, ResourceTypeRefund, ResourceTypePayout, ResourceTypeDispute:
		return true
	}
	return false
}

// Event is an immutable fact describing something that happened to a resource.
// Its identity is (ResourceExternalID, EventType, EventDate); two facts with the
// same identity are the same occurrence, so re-ingesting one is a no-op.
type Event struct {
	ID                       int64           `json:"-"`
	QueueMessageID           string          `json:"-"`
	ResourceType             ResourceType    `json:"resource_type"`
	ResourceExternalID       string          `json:"resource_external_id"`
	ParentResourceExternalID string          `json:"parent_resource_external_id,omitempty"`
	EventType                string          `json:"event_type"`
	EventDate                time.Time       `json:"event_date"`
	EventData                json.RawMessage `json:"event_data,omitempty"`
	CreatedAt                time.Time       `json:"-"`
}
