/*
ledger.go - Append-only points ledger (the Transaction Writer)

PURPOSE:
  The ledger is the immutable source of truth for every point a customer
  has earned, spent, lost to a refund, or had restored. There is no
  "points" column anywhere: balance is always recomputed from entries.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. ONE SETTLEMENT: A PENDING entry moves to APPROVED or REJECTED once,
     through a conditional update. Nothing else changes after creation.
  3. SIGN CONVENTION: Each entry type has fixed signs (table below).
  4. IDEMPOTENT: Same idempotency key = rejected second write.

SIGN CONVENTION:
  Type     Points            Amount (currency)        Fold
  EARNED   >= 0              >= 0 (purchase value)    +points
  SPENT    >  0 (the cost)   >= 0 (discount value)    -points
  REFUND   <= 0 (negated)    <= 0 (refunded amount)   +points (already negative)
  VOID     >= 0              any                      +points

STATUSES ON APPEND:
  PENDING   EARNED only (receipt awaiting approval)
  APPROVED  any type
  VOID      any type (historical adjustment still honored by the fold)
  REJECTED  never; reached only by RejectEntry

CORRECTIONS:
  A mistake is never edited. Append an offsetting entry instead: a REFUND
  for a purchase that was returned, a VOID to restore spent points.

EXAMPLE FLOW:
  1. Customer buys £300 of goods: EARNED +300 APPROVED
  2. Uploads a £200 receipt:      EARNED +200 PENDING (no balance effect)
  3. Admin approves the receipt:  status PENDING -> APPROVED
  4. Redeems a 50 point reward:   SPENT 50 APPROVED
  Balance: 300 + 200 - 50 = 450

SEE ALSO:
  - balance.go: The fold over entries
  - redemption.go: SPENT and VOID entries written with vouchers
*/
package loyalty

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/warp/points-engine/events"
)

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateEntry checks an entry against the sign convention.
func ValidateEntry(e Entry) error {
	if e.CustomerID == "" {
		return invalid("customer_id", "required")
	}
	if e.TenantID == "" {
		return invalid("tenant_id", "required")
	}
	if !e.Type.Valid() {
		return invalid("type", "unknown entry type %q", e.Type)
	}
	switch e.Status {
	case StatusApproved, StatusVoid:
	case StatusPending:
		if e.Type != EntryEarned {
			return invalid("status", "only EARNED entries may be PENDING, got %s", e.Type)
		}
	case StatusRejected:
		return invalid("status", "entries cannot be appended as REJECTED")
	default:
		return invalid("status", "unknown status %q", e.Status)
	}

	switch e.Type {
	case EntryEarned:
		if e.Points < 0 {
			return invalid("points", "EARNED points must not be negative, got %d", e.Points)
		}
		if e.Amount.IsNegative() {
			return invalid("amount", "EARNED amount must not be negative, got %s", e.Amount)
		}
	case EntrySpent:
		if e.Points <= 0 {
			return invalid("points", "SPENT points must be the positive cost, got %d", e.Points)
		}
		if e.Amount.IsNegative() {
			return invalid("amount", "SPENT amount must not be negative, got %s", e.Amount)
		}
	case EntryRefund:
		if e.Points > 0 {
			return invalid("points", "REFUND points must be negated by the caller, got %d", e.Points)
		}
		if e.Amount.IsPositive() {
			return invalid("amount", "REFUND amount must not be positive, got %s", e.Amount)
		}
	case EntryVoid:
		if e.Points < 0 {
			return invalid("points", "VOID points must not be negative, got %d", e.Points)
		}
	}
	return nil
}

// =============================================================================
// APPEND
// =============================================================================

// AppendEntryRequest is the raw writer input used by admin tooling.
type AppendEntryRequest struct {
	CustomerID     CustomerID
	TenantID       TenantID
	Type           EntryType
	Status         EntryStatus
	Amount         decimal.Decimal
	Points         int64
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Actor          string
}

// AppendEntry validates and appends one ledger entry.
func (e *Engine) AppendEntry(ctx context.Context, req AppendEntryRequest) (entry Entry, err error) {
	ctx, span := e.startSpan(ctx, "AppendEntry",
		attribute.String("customer_id", string(req.CustomerID)),
		attribute.String("entry_type", string(req.Type)))
	defer func() { endSpan(span, "append_entry", err) }()

	entry = Entry{
		ID:             EntryID(e.NewID()),
		CustomerID:     req.CustomerID,
		TenantID:       req.TenantID,
		Type:           req.Type,
		Status:         req.Status,
		Amount:         req.Amount,
		Points:         req.Points,
		ReferenceID:    req.ReferenceID,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		CreatedBy:      req.Actor,
		CreatedAt:      e.now(),
	}
	if err := e.append(ctx, e.Store, entry); err != nil {
		return Entry{}, err
	}
	e.publish(ctx, events.EntryAppended, string(entry.CustomerID), entry)
	return entry, nil
}

// append is the single write path for entries, inside or outside a
// transaction.
func (e *Engine) append(ctx context.Context, tx Tx, entry Entry) error {
	if err := ValidateEntry(entry); err != nil {
		return err
	}
	customer, err := tx.Customer(ctx, entry.CustomerID)
	if err != nil {
		return fmt.Errorf("load customer: %w", err)
	}
	if customer == nil {
		return notFound("customer", string(entry.CustomerID))
	}
	if entry.IdempotencyKey != "" {
		exists, err := tx.EntryExists(ctx, entry.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("check idempotency key: %w", err)
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return tx.AppendEntry(ctx, entry)
}

// =============================================================================
// EARNING
// =============================================================================

// PurchaseRequest records a completed purchase reported by a tenant.
type PurchaseRequest struct {
	CustomerID     CustomerID
	TenantID       TenantID
	Amount         decimal.Decimal
	Reference      string // Order or till reference
	IdempotencyKey string
	Actor          string
}

// RecordPurchase appends an APPROVED EARNED entry at the tenant's earn rate.
func (e *Engine) RecordPurchase(ctx context.Context, req PurchaseRequest) (Entry, error) {
	points, err := e.purchasePoints(ctx, req.TenantID, req.Amount)
	if err != nil {
		return Entry{}, err
	}
	return e.AppendEntry(ctx, AppendEntryRequest{
		CustomerID:     req.CustomerID,
		TenantID:       req.TenantID,
		Type:           EntryEarned,
		Status:         StatusApproved,
		Amount:         req.Amount,
		Points:         points,
		ReferenceID:    req.Reference,
		Reason:         "purchase",
		IdempotencyKey: req.IdempotencyKey,
		Actor:          req.Actor,
	})
}

// ReceiptRequest is customer-submitted purchase evidence.
type ReceiptRequest struct {
	CustomerID     CustomerID
	TenantID       TenantID
	Amount         decimal.Decimal
	ReceiptRef     string
	IdempotencyKey string
}

// SubmitReceipt appends a PENDING EARNED entry. It has no balance effect
// until an admin approves it.
func (e *Engine) SubmitReceipt(ctx context.Context, req ReceiptRequest) (Entry, error) {
	points, err := e.purchasePoints(ctx, req.TenantID, req.Amount)
	if err != nil {
		return Entry{}, err
	}
	return e.AppendEntry(ctx, AppendEntryRequest{
		CustomerID:     req.CustomerID,
		TenantID:       req.TenantID,
		Type:           EntryEarned,
		Status:         StatusPending,
		Amount:         req.Amount,
		Points:         points,
		ReferenceID:    req.ReceiptRef,
		Reason:         "receipt submitted",
		IdempotencyKey: req.IdempotencyKey,
		Actor:          string(req.CustomerID),
	})
}

func (e *Engine) purchasePoints(ctx context.Context, tenantID TenantID, amount decimal.Decimal) (int64, error) {
	if tenantID == "" {
		return 0, invalid("tenant_id", "required")
	}
	if !amount.IsPositive() {
		return 0, invalid("amount", "purchase amount must be positive, got %s", amount)
	}
	cfg, err := e.TenantConfig(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("load tenant config: %w", err)
	}
	points, err := cfg.PointsForPurchase(amount)
	if err != nil {
		return 0, err
	}
	if points == 0 {
		return 0, invalid("amount", "purchase of %s earns no points at tenant %s", amount, tenantID)
	}
	return points, nil
}

// =============================================================================
// SETTLEMENT - The human approval gate for receipts
// =============================================================================

// ApproveEntry moves a PENDING entry to APPROVED.
func (e *Engine) ApproveEntry(ctx context.Context, id EntryID, actor string) (Entry, error) {
	return e.settle(ctx, id, StatusApproved, actor)
}

// RejectEntry moves a PENDING entry to REJECTED. It never affects balance.
func (e *Engine) RejectEntry(ctx context.Context, id EntryID, actor string) (Entry, error) {
	return e.settle(ctx, id, StatusRejected, actor)
}

func (e *Engine) settle(ctx context.Context, id EntryID, status EntryStatus, actor string) (entry Entry, err error) {
	ctx, span := e.startSpan(ctx, "SettleEntry",
		attribute.String("entry_id", string(id)),
		attribute.String("status", string(status)))
	defer func() { endSpan(span, "settle_entry", err) }()

	current, err := e.Store.Entry(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("load entry: %w", err)
	}
	if current == nil {
		return Entry{}, notFound("entry", string(id))
	}
	if current.Status != StatusPending {
		return Entry{}, fmt.Errorf("entry %s is %s: %w", id, current.Status, ErrEntryNotPending)
	}

	at := e.now()
	ok, err := e.Store.SettleEntry(ctx, id, status, actor, at)
	if err != nil {
		return Entry{}, fmt.Errorf("settle entry: %w", err)
	}
	if !ok {
		return Entry{}, fmt.Errorf("entry %s settled concurrently: %w", id, ErrEntryNotPending)
	}

	entry = *current
	entry.Status = status
	entry.SettledBy = actor
	entry.SettledAt = &at
	e.Logger.InfoContext(ctx, "ledger entry settled",
		"entry_id", id, "customer_id", entry.CustomerID, "status", status, "points", entry.Points)
	e.publish(ctx, events.EntrySettled, string(entry.CustomerID), entry)
	return entry, nil
}

// =============================================================================
// REFUNDS - Claw back points earned on refunded money
// =============================================================================

// RefundRequest links a monetary refund to the EARNED entry it reverses.
type RefundRequest struct {
	OriginalEntryID EntryID
	Amount          decimal.Decimal // Refunded money, positive
	Reason          string
	IdempotencyKey  string
	Actor           string
}

// RecordRefund appends a REFUND entry clawing back the points earned on
// the refunded part of a purchase. Clawback is proportional to the points
// the original entry actually earned; the refund that completes the
// original amount takes whatever is left, so a full refund always claws
// back exactly the original points.
func (e *Engine) RecordRefund(ctx context.Context, req RefundRequest) (entry Entry, err error) {
	ctx, span := e.startSpan(ctx, "RecordRefund",
		attribute.String("original_entry_id", string(req.OriginalEntryID)))
	defer func() { endSpan(span, "record_refund", err) }()

	if !req.Amount.IsPositive() {
		return Entry{}, invalid("amount", "refund amount must be positive, got %s", req.Amount)
	}

	err = e.Store.WithTx(ctx, func(tx Tx) error {
		original, err := tx.Entry(ctx, req.OriginalEntryID)
		if err != nil {
			return fmt.Errorf("load original entry: %w", err)
		}
		if original == nil {
			return notFound("entry", string(req.OriginalEntryID))
		}
		if original.Type != EntryEarned || !original.Status.Counts() {
			return invalid("original_entry_id", "refunds apply to counted EARNED entries, got %s/%s", original.Type, original.Status)
		}
		if !original.Amount.IsPositive() {
			return invalid("original_entry_id", "original entry has no monetary amount to refund")
		}
		if err := tx.LockCustomer(ctx, original.CustomerID); err != nil {
			return fmt.Errorf("lock customer: %w", err)
		}

		prior, err := tx.EntriesByReference(ctx, string(original.ID))
		if err != nil {
			return fmt.Errorf("load prior refunds: %w", err)
		}
		refunded := decimal.Zero
		var clawed int64
		for _, p := range prior {
			if p.Type != EntryRefund {
				continue
			}
			refunded = refunded.Add(p.Amount.Neg())
			clawed += -p.Points
		}
		remaining := original.Amount.Sub(refunded)
		if req.Amount.GreaterThan(remaining) {
			return invalid("amount", "refund %s exceeds refundable %s", req.Amount, remaining)
		}

		points := original.Points - clawed
		if req.Amount.LessThan(remaining) {
			share := decimal.NewFromInt(original.Points).Mul(req.Amount).Div(original.Amount).Floor().IntPart()
			if share < points {
				points = share
			}
		}

		entry = Entry{
			ID:             EntryID(e.NewID()),
			CustomerID:     original.CustomerID,
			TenantID:       original.TenantID,
			Type:           EntryRefund,
			Status:         StatusApproved,
			Amount:         req.Amount.Neg(),
			Points:         -points,
			ReferenceID:    string(original.ID),
			Reason:         req.Reason,
			IdempotencyKey: req.IdempotencyKey,
			CreatedBy:      req.Actor,
			CreatedAt:      e.now(),
		}
		return e.append(ctx, tx, entry)
	})
	if err != nil {
		return Entry{}, err
	}

	e.Logger.InfoContext(ctx, "refund clawback recorded",
		"customer_id", entry.CustomerID, "original_entry_id", req.OriginalEntryID, "points", entry.Points)
	e.publish(ctx, events.EntryAppended, string(entry.CustomerID), entry)
	return entry, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// Entries returns a customer's full ledger, oldest first.
func (e *Engine) Entries(ctx context.Context, customerID CustomerID) ([]Entry, error) {
	customer, err := e.Store.Customer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	if customer == nil {
		return nil, notFound("customer", string(customerID))
	}
	return e.Store.Entries(ctx, customerID)
}
