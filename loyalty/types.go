/*
Package loyalty provides the points ledger and voucher redemption engine.

PURPOSE:
  Customers earn points on purchases at partner businesses (tenants) and
  spend them on rewards or discounts. This package owns the rules that keep
  that money-like value honest:
  - Balance is DERIVED from an append-only ledger, never stored
  - Spending points and minting a voucher happen in one atomic unit
  - Vouchers move through a strict one-way state machine

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: An immutable ledger record (EARNED, SPENT, REFUND, VOID)
  - Reward: A catalog item priced in points, issued by one tenant
  - Redemption: Record of points spent on a reward or discount
  - Voucher: Redeemable proof of a redemption with its own lifecycle
  - Customer: The owner of a ledger

DESIGN PRINCIPLES:
  1. Immutability: Entries are never edited, only offset by new entries
  2. Precision: Monetary values use decimal.Decimal, points are integers
  3. Type Safety: Distinct ID types prevent mixing customers and tenants
  4. Auditability: Every entry carries reference, reason and actor

SEE ALSO:
  - ledger.go: Entry validation and the append path
  - balance.go: Folding entries into a balance and tier
  - redemption.go: Atomic spend + voucher issuance
  - voucher.go: Voucher state machine
*/
package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID string
type TenantID string
type EntryID string
type RewardID string
type RedemptionID string
type VoucherID string

// =============================================================================
// LEDGER ENTRY - Immutable record of a point-affecting event
// =============================================================================

type EntryType string

const (
	EntryEarned EntryType = "EARNED" // Points earned from a purchase or approved receipt
	EntrySpent  EntryType = "SPENT"  // Points spent on a redemption (stored positive, subtracted)
	EntryRefund EntryType = "REFUND" // Clawback after a monetary refund (stored negative)
	EntryVoid   EntryType = "VOID"   // Compensation restoring points (e.g. cancelled redemption)
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryEarned, EntrySpent, EntryRefund, EntryVoid:
		return true
	}
	return false
}

type EntryStatus string

const (
	StatusPending  EntryStatus = "PENDING"
	StatusApproved EntryStatus = "APPROVED"
	StatusRejected EntryStatus = "REJECTED"
	StatusVoid     EntryStatus = "VOID"
)

func (s EntryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusVoid:
		return true
	}
	return false
}

// Counts reports whether entries with this status contribute to balance.
// VOID-status entries count: they mark a previously approved adjustment
// whose point effect is still honored.
func (s EntryStatus) Counts() bool {
	return s == StatusApproved || s == StatusVoid
}

type Entry struct {
	ID         EntryID
	CustomerID CustomerID
	TenantID   TenantID
	Type       EntryType
	Status     EntryStatus

	// Amount is the monetary value attached to the entry (purchase value,
	// discount face value, refunded amount). Signed by the type convention.
	Amount decimal.Decimal

	// Points is signed by the type convention, see ledger.go.
	Points int64

	ReferenceID    string // Redemption, original entry, or receipt reference
	Reason         string
	IdempotencyKey string

	CreatedBy string
	CreatedAt time.Time
	SettledBy string     // Actor who approved/rejected a PENDING entry
	SettledAt *time.Time // When the entry left PENDING
}

// Delta returns the signed contribution of the entry to a balance,
// ignoring status.
func (e Entry) Delta() int64 {
	switch e.Type {
	case EntrySpent:
		return -e.Points
	default:
		// EARNED and VOID are stored positive, REFUND already negated.
		return e.Points
	}
}

// =============================================================================
// CUSTOMERS AND CATALOG
// =============================================================================

// Customer owns a ledger. Identity is verified upstream; this record only
// anchors the ledger (and its row lock) in storage.
type Customer struct {
	ID        CustomerID
	TenantID  TenantID // Tenant the customer registered with
	Name      string
	Email     string
	CreatedAt time.Time
}

// Reward is a catalog item priced in points. Vouchers for it are redeemable
// only at the issuing tenant.
type Reward struct {
	ID          RewardID
	TenantID    TenantID
	Name        string
	Description string
	PointsCost  int64
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// REDEMPTION AND VOUCHER
// =============================================================================

type RedeemKind string

const (
	RedeemReward   RedeemKind = "reward"   // Spend a reward's point price
	RedeemDiscount RedeemKind = "discount" // Spend points worth a monetary discount
)

// Redemption is immutable once created. Cancellation appends a
// compensating ledger entry instead of deleting it.
type Redemption struct {
	ID         RedemptionID
	Kind       RedeemKind
	RewardID   RewardID // Empty for discount redemptions
	CustomerID CustomerID
	TenantID   TenantID
	Points     int64
	Amount     decimal.Decimal // Discount face value, zero for rewards
	CreatedAt  time.Time
}

type VoucherStatus string

const (
	VoucherActive    VoucherStatus = "active"
	VoucherUsed      VoucherStatus = "used"
	VoucherExpired   VoucherStatus = "expired"
	VoucherCancelled VoucherStatus = "cancelled"
)

// Terminal reports whether no transition leaves this status.
func (s VoucherStatus) Terminal() bool {
	return s != VoucherActive
}

type Voucher struct {
	ID           VoucherID
	Code         string
	RedemptionID RedemptionID
	CustomerID   CustomerID
	RewardID     RewardID
	TenantID     TenantID // Issuing tenant; the only tenant allowed to redeem
	Status       VoucherStatus
	Amount       decimal.Decimal
	CreatedAt    time.Time
	ExpiresAt    time.Time
	UsedAt       *time.Time
	UsedBy       TenantID
	CancelledAt  *time.Time
	ExpiredAt    *time.Time
}

// IsExpiredAt reports whether an active voucher has passed its expiry.
func (v Voucher) IsExpiredAt(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}
