/*
store.go - Persistence contract for the loyalty engine

PURPOSE:
  Defines the interface between the engine and the database. The engine
  never talks SQL; store/sqldb implements this contract for SQLite and
  PostgreSQL.

KEY INTERFACES:
  EntryStore:      Append-only ledger entries (plus the one PENDING settlement)
  CatalogStore:    Customers, rewards, tenant points configuration
  RedemptionStore: Immutable redemption records
  VoucherStore:    Vouchers and their guarded status transitions
  Tx:              Everything above, bound to one database transaction
  Store:           Tx operations outside a transaction + WithTx

APPEND-ONLY CONTRACT:
  Entries have no Update or Delete. The single exception is SettleEntry,
  which moves a PENDING entry to APPROVED or REJECTED exactly once and is
  guarded by "WHERE status = 'PENDING'".

GUARDED TRANSITIONS:
  SettleEntry and TransitionVoucher are conditional updates. They return
  false (not an error) when the precondition no longer holds, so two
  concurrent actors can never both win.

ATOMICITY AND ISOLATION:
  WithTx runs fn inside one database transaction: all writes commit or
  none do. Implementations must also serialize spends per customer:
  LockCustomer takes a row lock (PostgreSQL SELECT ... FOR UPDATE under
  SERIALIZABLE) or the store holds the database write lock for the whole
  transaction (SQLite BEGIN IMMEDIATE).

MISSING RECORDS:
  Single-record lookups return (nil, nil) when the record does not exist.
  The engine turns that into a NotFoundError.
*/
package loyalty

import (
	"context"
	"time"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

type EntryStore interface {
	// AppendEntry persists an entry. Returns ErrDuplicateIdempotencyKey if
	// the key already exists. This is the ONLY way to add ledger data.
	AppendEntry(ctx context.Context, e Entry) error

	// Entry returns one entry by ID.
	Entry(ctx context.Context, id EntryID) (*Entry, error)

	// Entries returns all entries of a customer ordered by CreatedAt.
	Entries(ctx context.Context, customerID CustomerID) ([]Entry, error)

	// EntriesByReference returns entries whose ReferenceID matches.
	EntriesByReference(ctx context.Context, referenceID string) ([]Entry, error)

	// SettleEntry moves a PENDING entry to status. Returns false if the
	// entry was no longer PENDING.
	SettleEntry(ctx context.Context, id EntryID, status EntryStatus, actor string, at time.Time) (bool, error)

	// EntryExists checks if an idempotency key was already used.
	EntryExists(ctx context.Context, idempotencyKey string) (bool, error)
}

type CatalogStore interface {
	Customer(ctx context.Context, id CustomerID) (*Customer, error)
	Reward(ctx context.Context, id RewardID) (*Reward, error)
	TenantConfig(ctx context.Context, tenantID TenantID) (*TenantPointsConfig, error)
}

type RedemptionStore interface {
	CreateRedemption(ctx context.Context, r Redemption) error
	Redemption(ctx context.Context, id RedemptionID) (*Redemption, error)
	RedemptionsByCustomer(ctx context.Context, customerID CustomerID) ([]Redemption, error)
}

type VoucherStore interface {
	// CreateVoucher persists a voucher. Returns ErrDuplicateVoucherCode if
	// the code unique index rejects it.
	CreateVoucher(ctx context.Context, v Voucher) error

	Voucher(ctx context.Context, id VoucherID) (*Voucher, error)
	VoucherByCode(ctx context.Context, code string) (*Voucher, error)
	VoucherCodeExists(ctx context.Context, code string) (bool, error)
	VouchersByCustomer(ctx context.Context, customerID CustomerID) ([]Voucher, error)

	// TransitionVoucher applies t only if the voucher is still in t.From.
	TransitionVoucher(ctx context.Context, t VoucherTransition) (bool, error)
}

// VoucherTransition is a guarded status change. At stamps the column that
// matches To (used_at, expired_at, cancelled_at).
type VoucherTransition struct {
	ID     VoucherID
	From   VoucherStatus
	To     VoucherStatus
	At     time.Time
	Tenant TenantID // Redeeming tenant, recorded for active→used

	// Unexpired additionally requires expires_at > At, so a voucher that
	// expired between the read and the write cannot be used or cancelled.
	Unexpired bool
}

// Tx is the view of the store inside a database transaction.
type Tx interface {
	EntryStore
	CatalogStore
	RedemptionStore
	VoucherStore

	// LockCustomer serializes concurrent spends of one customer until the
	// transaction ends.
	LockCustomer(ctx context.Context, id CustomerID) error
}

// Store is the full persistence contract.
type Store interface {
	Tx

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// ConfigSource resolves tenant points configuration. The store satisfies it;
// cache.ConfigCache wraps it with a read-through cache.
type ConfigSource interface {
	TenantConfig(ctx context.Context, tenantID TenantID) (*TenantPointsConfig, error)
}
