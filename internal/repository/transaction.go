package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/josh-kwaku/ledger-ingest/internal/domain"
	"github.com/josh-kwaku/ledger-ingest/internal/state"
)

const transactionColumns = `id, external_id, parent_external_id, gateway_account_id,
	type, amount, reference, description, email, state, last_event_date,
	event_count, created_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// UpsertIfNewer creates the projection row on the resource's first event and
// otherwise applies the event's state only when its event date is strictly
// newer than the one already recorded. The condition lives in the statement
// itself, so concurrent events for the same resource cannot interleave a
// read-modify-write: the database serializes them and the stale one simply
// affects zero rows. Returns true when the projection was created or updated.
func (r *TransactionRepository) UpsertIfNewer(ctx context.Context, t *domain.Transaction) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (
			external_id, parent_external_id, gateway_account_id, type, amount,
			reference, description, email, state, last_event_date, event_count
		) VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5,
			NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10, 1)
		ON CONFLICT (external_id) DO UPDATE SET
			state = EXCLUDED.state,
			last_event_date = EXCLUDED.last_event_date,
			parent_external_id = COALESCE(EXCLUDED.parent_external_id, transactions.parent_external_id),
			gateway_account_id = COALESCE(EXCLUDED.gateway_account_id, transactions.gateway_account_id),
			amount = COALESCE(EXCLUDED.amount, transactions.amount),
			reference = COALESCE(EXCLUDED.reference, transactions.reference),
			description = COALESCE(EXCLUDED.description, transactions.description),
			email = COALESCE(EXCLUDED.email, transactions.email),
			event_count = transactions.event_count + 1
		WHERE transactions.last_event_date < EXCLUDED.last_event_date`,
		t.ExternalID, t.ParentExternalID, t.GatewayAccountID, t.Type, t.Amount,
		t.Reference, t.Description, t.Email, t.State, t.LastEventDate,
	)
	if err != nil {
		return false, fmt.Errorf("UpsertIfNewer: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("UpsertIfNewer: rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *TransactionRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE external_id = $1`,
		externalID,
	)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("FindByExternalID: transaction %s: %w", externalID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("FindByExternalID: %w", err)
	}
	return t, nil
}

// SearchFilters narrows a projection query for the external read layer.
// Zero values mean "no filter".
type SearchFilters struct {
	GatewayAccountID string
	States           []state.State
	FromDate         *time.Time
	ToDate           *time.Time
	Limit            int
}

// Search returns projections matching the filters, most recently updated
// first. This is the query surface the search/CSV layer builds on.
func (r *TransactionRepository) Search(ctx context.Context, filters SearchFilters) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any

	if filters.GatewayAccountID != "" {
		args = append(args, filters.GatewayAccountID)
		query += fmt.Sprintf(" AND gateway_account_id = $%d", len(args))
	}
	if len(filters.States) > 0 {
		states := make([]string, len(filters.States))
		for i, s := range filters.States {
			states[i] = string(s)
		}
		args = append(args, pq.Array(states))
		query += fmt.Sprintf(" AND state = ANY($%d)", len(args))
	}
	if filters.FromDate != nil {
		args = append(args, *filters.FromDate)
		query += fmt.Sprintf(" AND last_event_date >= $%d", len(args))
	}
	if filters.ToDate != nil {
		args = append(args, *filters.ToDate)
		query += fmt.Sprintf(" AND last_event_date < $%d", len(args))
	}
	query += " ORDER BY last_event_date DESC, id DESC"
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: scan: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: rows: %w", err)
	}
	return transactions, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var (
		t           domain.Transaction
		parent      sql.NullString
		account     sql.NullString
		amount      sql.NullInt64
		reference   sql.NullString
		description sql.NullString
		email       sql.NullString
	)
	err := s.Scan(
		&t.ID, &t.ExternalID, &parent, &account, &t.Type, &amount,
		&reference, &description, &email, &t.State, &t.LastEventDate,
		&t.EventCount, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.ParentExternalID = parent.String
	t.GatewayAccountID = account.String
	if amount.Valid {
		t.Amount = &amount.Int64
	}
	t.Reference = reference.String
	t.Description = description.String
	t.Email = email.String
	return &t, nil
}
