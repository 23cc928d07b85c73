package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/points-engine/loyalty"
)

// =============================================================================
// LEDGER ENTRIES (loyalty.EntryStore)
// =============================================================================

const entryColumns = `id, customer_id, tenant_id, entry_type, status, amount, points,
	reference_id, reason, idempotency_key, created_by, created_at, settled_by, settled_at`

// AppendEntry adds an entry to the ledger.
func (qs *queries) AppendEntry(ctx context.Context, e loyalty.Entry) error {
	query := `
		INSERT INTO ledger_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := qs.exec(ctx, query,
		e.ID,
		e.CustomerID,
		e.TenantID,
		e.Type,
		e.Status,
		e.Amount.String(),
		e.Points,
		nullString(e.ReferenceID),
		nullString(e.Reason),
		nullString(e.IdempotencyKey),
		e.CreatedBy,
		formatTime(e.CreatedAt),
		nullString(e.SettledBy),
		nullTime(e.SettledAt),
	)
	if err != nil {
		if mapped := qs.uniqueErr(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// Entry returns one entry by ID.
func (qs *queries) Entry(ctx context.Context, id loyalty.EntryID) (*loyalty.Entry, error) {
	row := qs.queryRow(ctx, "SELECT "+entryColumns+" FROM ledger_entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Entries returns the customer's ledger in insertion order.
func (qs *queries) Entries(ctx context.Context, customerID loyalty.CustomerID) ([]loyalty.Entry, error) {
	return qs.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM ledger_entries WHERE customer_id = ? ORDER BY created_at ASC, id ASC",
		customerID)
}

// EntriesByReference returns entries pointing at a redemption or original entry.
func (qs *queries) EntriesByReference(ctx context.Context, referenceID string) ([]loyalty.Entry, error) {
	return qs.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM ledger_entries WHERE reference_id = ? ORDER BY created_at ASC, id ASC",
		referenceID)
}

// SettleEntry moves a PENDING entry to APPROVED or REJECTED.
func (qs *queries) SettleEntry(ctx context.Context, id loyalty.EntryID, status loyalty.EntryStatus, actor string, at time.Time) (bool, error) {
	res, err := qs.exec(ctx, `
		UPDATE ledger_entries SET status = ?, settled_by = ?, settled_at = ?
		WHERE id = ? AND status = ?
	`, status, actor, formatTime(at), id, loyalty.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to settle entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// EntryExists checks if an idempotency key was already used.
func (qs *queries) EntryExists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := qs.queryRow(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func (qs *queries) queryEntries(ctx context.Context, query string, args ...any) ([]loyalty.Entry, error) {
	rows, err := qs.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []loyalty.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row scanner) (loyalty.Entry, error) {
	var (
		e              loyalty.Entry
		amount         string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		createdAt      string
		settledBy      sql.NullString
		settledAt      sql.NullString
	)
	err := row.Scan(
		&e.ID, &e.CustomerID, &e.TenantID, &e.Type, &e.Status, &amount, &e.Points,
		&referenceID, &reason, &idempotencyKey, &e.CreatedBy, &createdAt, &settledBy, &settledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	if e.Amount, err = parseDecimal(amount); err != nil {
		return e, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return e, err
	}
	if e.SettledAt, err = parseNullTime(settledAt); err != nil {
		return e, err
	}
	e.ReferenceID = referenceID.String
	e.Reason = reason.String
	e.IdempotencyKey = idempotencyKey.String
	e.SettledBy = settledBy.String
	return e, nil
}
