/*
Package sqldb implements loyalty.Store on database/sql.

PURPOSE:
  One implementation of the persistence contract shared by SQLite and
  PostgreSQL. The drivers live in store/sqlite and store/postgres, which
  only supply a Dialect: placeholder style, isolation level, row locking
  and error classification.

APPEND-ONLY ENFORCEMENT:
  - No DELETE on ledger_entries outside Reset (demo data only)
  - The only UPDATE on ledger_entries is SettleEntry, guarded by
    "WHERE status = 'PENDING'"
  - Corrections are new entries (REFUND, VOID)

GUARDED TRANSITIONS:
  Voucher status changes are conditional UPDATEs. RowsAffected == 0 means
  another actor won; the caller decides what that means.

CONCURRENCY:
  SQLite: one open connection, BEGIN IMMEDIATE, plus an in-process mutex
  around WithTx. Writers are fully serialized.
  PostgreSQL: SERIALIZABLE transactions and SELECT ... FOR UPDATE on the
  customer row. Serialization failures are retried.

TIMESTAMPS:
  Stored as fixed-width UTC text so that string comparison in SQL
  ("expires_at > ?") orders the same way as time comparison.

SEE ALSO:
  - loyalty/store.go: The contract
  - store/sqlite, store/postgres: Dialects and constructors
*/
package sqldb

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/warp/points-engine/loyalty"
)

//go:embed schema.sql
var schema string

const maxTxAttempts = 3

// Dialect captures what differs between database engines.
type Dialect struct {
	Name string

	// NumberedParams rewrites "?" placeholders to "$1", "$2", ...
	NumberedParams bool

	// TxOptions are passed to BeginTx.
	TxOptions *sql.TxOptions

	// LockCustomerSQL takes a row lock on a customer. Empty means the
	// transaction already holds the database write lock.
	LockCustomerSQL string

	// SerializeWriters wraps every WithTx in an in-process mutex.
	SerializeWriters bool

	// UniqueViolation reports the violated constraint (or column) name.
	UniqueViolation func(err error) (string, bool)

	// Retryable reports transient errors worth re-running the whole
	// transaction for.
	Retryable func(err error) bool
}

// Store implements loyalty.Store.
type Store struct {
	*queries
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex
}

var _ loyalty.Store = (*Store)(nil)

// Open wraps db and creates the schema.
func Open(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	s.queries = &queries{q: db, d: &s.dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns the dialect name.
func (s *Store) Dialect() string {
	return s.dialect.Name
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx loyalty.Tx) error) error {
	if s.dialect.SerializeWriters {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	for attempt := 1; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil || attempt >= maxTxAttempts || s.dialect.Retryable == nil || !s.dialect.Retryable(err) {
			return err
		}
	}
}

func (s *Store) runTx(ctx context.Context, fn func(tx loyalty.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx, d: &s.dialect}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// QUERIES - shared by Store and transactions
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements loyalty.Tx over a *sql.DB or *sql.Tx.
type queries struct {
	q querier
	d *Dialect
}

var _ loyalty.Tx = (*queries)(nil)

func (qs *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return qs.q.ExecContext(ctx, qs.rebind(query), args...)
}

func (qs *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return qs.q.QueryContext(ctx, qs.rebind(query), args...)
}

func (qs *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return qs.q.QueryRowContext(ctx, qs.rebind(query), args...)
}

// rebind rewrites "?" to "$n" for dialects with numbered parameters. No
// query in this package has a literal question mark.
func (qs *queries) rebind(query string) string {
	if !qs.d.NumberedParams {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// LockCustomer serializes spends of one customer until the transaction ends.
func (qs *queries) LockCustomer(ctx context.Context, id loyalty.CustomerID) error {
	if qs.d.LockCustomerSQL == "" {
		return nil
	}
	var locked string
	err := qs.queryRow(ctx, qs.d.LockCustomerSQL, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

// uniqueErr maps unique index violations to the loyalty sentinels.
func (qs *queries) uniqueErr(err error) error {
	if err == nil || qs.d.UniqueViolation == nil {
		return err
	}
	constraint, ok := qs.d.UniqueViolation(err)
	if !ok {
		return err
	}
	switch {
	case strings.Contains(constraint, "idempotency_key"):
		return loyalty.ErrDuplicateIdempotencyKey
	case strings.Contains(constraint, "code"):
		return loyalty.ErrDuplicateVoucherCode
	}
	return err
}
