package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josh-kwaku/ledger-ingest/internal/domain"
)

const eventColumns = `id, queue_message_id, resource_type, resource_external_id,
	parent_resource_external_id, event_type, event_date, event_data, created_at`

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// InsertIfNotExists persists the event fact unless one with the same identity
// key already exists. The unique index on (resource_external_id, event_type,
// event_date) does the deduplication, so concurrent writers racing on the same
// key collapse to a single row. Returns true when the row was newly created.
func (r *EventRepository) InsertIfNotExists(ctx context.Context, event *domain.Event) (bool, error) {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO events (
			queue_message_id, resource_type, resource_external_id,
			parent_resource_external_id, event_type, event_date, event_data
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		ON CONFLICT (resource_external_id, event_type, event_date) DO NOTHING
		RETURNING id`,
		event.QueueMessageID, event.ResourceType, event.ResourceExternalID,
		event.ParentResourceExternalID, event.EventType, event.EventDate,
		eventDataOrEmpty(event.EventData),
	).Scan(&event.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("InsertIfNotExists: %w", err)
	}
	return true, nil
}

// FindByResourceExternalID returns the resource's events plus the events of
// resources linked to it as a parent (refunds and disputes of a payment),
// ordered by event date ascending.
func (r *EventRepository) FindByResourceExternalID(ctx context.Context, externalID string) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE resource_external_id = $1 OR parent_resource_external_id = $1
		ORDER BY event_date, id`, externalID,
	)
	if err != nil {
		return nil, fmt.Errorf("FindByResourceExternalID: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("FindByResourceExternalID: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FindByResourceExternalID: rows: %w", err)
	}
	return events, nil
}

// CountByResourceExternalID returns how many facts are stored for a resource.
func (r *EventRepository) CountByResourceExternalID(ctx context.Context, externalID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM events WHERE resource_external_id = $1`, externalID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountByResourceExternalID: %w", err)
	}
	return n, nil
}

func scanEvent(s scanner) (*domain.Event, error) {
	var (
		e        domain.Event
		queueID  sql.NullString
		parentID sql.NullString
	)
	err := s.Scan(
		&e.ID, &queueID, &e.ResourceType, &e.ResourceExternalID,
		&parentID, &e.EventType, &e.EventDate, &e.EventData, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.QueueMessageID = queueID.String
	e.ParentResourceExternalID = parentID.String
	return &e, nil
}

func eventDataOrEmpty(data []byte) []byte {
	if len(data) == 0 {
		return []byte(`{}`)
	}
	return data
}
