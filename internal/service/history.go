package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/josh-kwaku/ledger-ingest/internal/domain"
	"github.com/josh-kwaku/ledger-ingest/internal/state"
)

type eventFinder interface {
	FindByResourceExternalID(ctx context.Context, externalID string) ([]domain.Event, error)
}

// EventState is the resolved display state of one timeline entry.
type EventState struct {
	Status   string `json:"status"`
	Finished bool   `json:"finished"`
}

// HistoryEntry is one row of a resource's timeline. State is nil when the
// event type has no mapping for the requested version.
type HistoryEntry struct {
	ResourceExternalID string              `json:"resource_external_id"`
	ResourceType       domain.ResourceType `json:"resource_type"`
	EventType          string              `json:"event_type"`
	Timestamp          time.Time           `json:"timestamp"`
	Data               json.RawMessage     `json:"data,omitempty"`
	State              *EventState         `json:"state,omitempty"`
}

// HistoryService builds deduplicated event timelines for client display. It
// shares the state table with the projection engine, so a timeline always
// agrees with the current-state view derived from the same events.
type HistoryService struct {
	events eventFinder
}

func NewHistoryService(events eventFinder) *HistoryService {
	return &HistoryService{events: events}
}

// BuildTimeline returns the resource's events (including those of linked
// refunds and disputes) in event-time order, with states resolved for the
// requested status version.
//
// When includeAll is false, repeated occurrences of the same resolved state
// for the same resource are collapsed to the first one, and events without a
// state mapping are dropped. When includeAll is true every event is returned,
// unmapped ones with a nil state.
func (s *HistoryService) BuildTimeline(ctx context.Context, externalID string, version int, includeAll bool) ([]HistoryEntry, error) {
	events, err := s.events.FindByResourceExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("BuildTimeline: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("BuildTimeline: transaction %s: %w", externalID, domain.ErrNotFound)
	}

	entries := make([]HistoryEntry, 0, len(events))
	seen := make(map[string]bool)
	for _, ev := range events {
		st, ok := state.FromEventType(ev.EventType)
		if !ok {
			if includeAll {
				entries = append(entries, entryFrom(ev, nil))
			}
			continue
		}

		resolved := &EventState{Status: st.Status(version), Finished: st.Finished()}
		if !includeAll {
			key := ev.ResourceExternalID + "|" + string(ev.ResourceType) + "|" + resolved.Status
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		entries = append(entries, entryFrom(ev, resolved))
	}
	return entries, nil
}

func entryFrom(ev domain.Event, st *EventState) HistoryEntry {
	return HistoryEntry{
		ResourceExternalID: ev.ResourceExternalID,
		ResourceType:       ev.ResourceType,
		EventType:          ev.EventType,
		Timestamp:          ev.EventDate,
		Data:               ev.EventData,
		State:              st,
	}
}
