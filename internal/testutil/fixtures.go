package testutil

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/ledger-ingest/internal/domain"
)

// EventFixture builds domain events for tests with sensible defaults: a
// payment AUTHORISATION_SUCCESSFUL with a small payload, dated now.
type EventFixture struct {
	event domain.Event
}

func AnEvent() *EventFixture {
	return &EventFixture{event: domain.Event{
		ResourceType:       domain.ResourceTypePayment,
		ResourceExternalID: uuid.NewString(),
		EventType:          "AUTHORISATION_SUCCESSFUL",
		EventDate:          time.Now().UTC().Truncate(time.Millisecond),
		EventData:          json.RawMessage(`{"amount": 1000, "reference": "ref-1", "gateway_account_id": "account-1"}`),
	}}
}

func (f *EventFixture) WithResourceType(rt domain.ResourceType) *EventFixture {
	f.event.ResourceType = rt
	return f
}

func (f *EventFixture) WithResourceExternalID(id string) *EventFixture {
	f.event.ResourceExternalID = id
	return f
}

func (f *EventFixture) WithParentResourceExternalID(id string) *EventFixture {
	f.event.ParentResourceExternalID = id
	return f
}

func (f *EventFixture) WithEventType(eventType string) *EventFixture {
	f.event.EventType = eventType
	return f
}

func (f *EventFixture) WithEventDate(d time.Time) *EventFixture {
	f.event.EventDate = d
	return f
}

func (f *EventFixture) WithEventData(data string) *EventFixture {
	f.event.EventData = json.RawMessage(data)
	return f
}

func (f *EventFixture) WithQueueMessageID(id string) *EventFixture {
	f.event.QueueMessageID = id
	return f
}

func (f *EventFixture) Build() *domain.Event {
	ev := f.event
	return &ev
}
