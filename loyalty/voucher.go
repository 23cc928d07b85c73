/*
voucher.go - Voucher lifecycle (state machine and scan-to-redeem)

STATE MACHINE:
  active --scan-------> used       (terminal)
  active --read late--> expired    (terminal, lazy)
  active --cancel-----> cancelled  (terminal, see redemption.go)

  Nothing leaves used, expired or cancelled.

LAZY EXPIRY:
  There is no timer. Any read of an active voucher at or past ExpiresAt
  flips it to expired before returning it. The flip is a guarded update,
  so it happens exactly once however many readers race.

SCAN VALIDATION ORDER:
  1. Voucher exists
  2. Not already used
  3. Not expired (lazy expiry runs here and short-circuits)
  4. Not cancelled
  5. Issuing tenant == redeeming tenant
  6. Guarded active -> used, stamping UsedAt

CONCURRENCY:
  Two tills scanning the same code both pass steps 1-5. Only one of the
  guarded updates in step 6 matches "status = active"; the other reloads
  the voucher and reports AlreadyUsedError.
*/
package loyalty

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/warp/points-engine/events"
	"github.com/warp/points-engine/observability"
)

// =============================================================================
// READS (with lazy expiry)
// =============================================================================

// Voucher returns a voucher, expiring it first if it is due.
func (e *Engine) Voucher(ctx context.Context, id VoucherID) (Voucher, error) {
	v, err := e.Store.Voucher(ctx, id)
	if err != nil {
		return Voucher{}, fmt.Errorf("load voucher: %w", err)
	}
	if v == nil {
		return Voucher{}, notFound("voucher", string(id))
	}
	if err := e.expireIfDue(ctx, v); err != nil {
		return Voucher{}, err
	}
	return *v, nil
}

// CustomerVouchers returns all vouchers of a customer, expiring due ones.
func (e *Engine) CustomerVouchers(ctx context.Context, customerID CustomerID) ([]Voucher, error) {
	customer, err := e.Store.Customer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	if customer == nil {
		return nil, notFound("customer", string(customerID))
	}
	vouchers, err := e.Store.VouchersByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("load vouchers: %w", err)
	}
	for i := range vouchers {
		if err := e.expireIfDue(ctx, &vouchers[i]); err != nil {
			return nil, err
		}
	}
	return vouchers, nil
}

// expireIfDue flips an active voucher past its expiry to expired. If the
// guarded update loses a race, v is replaced by the stored state.
func (e *Engine) expireIfDue(ctx context.Context, v *Voucher) error {
	now := e.now()
	if v.Status != VoucherActive || !v.IsExpiredAt(now) {
		return nil
	}
	ok, err := e.Store.TransitionVoucher(ctx, VoucherTransition{
		ID:   v.ID,
		From: VoucherActive,
		To:   VoucherExpired,
		At:   now,
	})
	if err != nil {
		return fmt.Errorf("expire voucher: %w", err)
	}
	if !ok {
		current, err := e.Store.Voucher(ctx, v.ID)
		if err != nil {
			return fmt.Errorf("reload voucher: %w", err)
		}
		if current != nil {
			*v = *current
		}
		return nil
	}

	v.Status = VoucherExpired
	v.ExpiredAt = &now
	observability.Metrics().VoucherTransition(string(VoucherExpired))
	e.Logger.InfoContext(ctx, "voucher expired",
		"voucher_id", v.ID, "customer_id", v.CustomerID, "expires_at", v.ExpiresAt)
	e.publish(ctx, events.VoucherExpired, string(v.CustomerID), *v)
	return nil
}

// voucherStateError explains why a voucher cannot leave active, or returns
// nil if it still can.
func voucherStateError(v Voucher) error {
	switch v.Status {
	case VoucherUsed:
		return &AlreadyUsedError{VoucherID: v.ID, UsedAt: v.UsedAt}
	case VoucherExpired:
		return &ExpiredError{VoucherID: v.ID, ExpiresAt: v.ExpiresAt}
	case VoucherCancelled:
		return &CancelledError{VoucherID: v.ID, CancelledAt: v.CancelledAt}
	}
	return nil
}

// =============================================================================
// SCAN TO REDEEM
// =============================================================================

// NormalizeCode canonicalizes a typed or scanned code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

// RedeemVoucherCode consumes a voucher at a tenant's point of sale.
func (e *Engine) RedeemVoucherCode(ctx context.Context, code string, tenantID TenantID) (v Voucher, err error) {
	ctx, span := e.startSpan(ctx, "RedeemVoucherCode", attribute.String("tenant_id", string(tenantID)))
	defer func() { endSpan(span, "redeem_voucher_code", err) }()

	code = NormalizeCode(code)
	if code == "" {
		return Voucher{}, invalid("code", "required")
	}
	if tenantID == "" {
		return Voucher{}, invalid("tenant_id", "required")
	}

	stored, err := e.Store.VoucherByCode(ctx, code)
	if err != nil {
		return Voucher{}, fmt.Errorf("load voucher: %w", err)
	}
	if stored == nil {
		return Voucher{}, notFound("voucher", code)
	}
	v = *stored

	if v.Status == VoucherUsed {
		return v, voucherStateError(v)
	}
	if err := e.expireIfDue(ctx, &v); err != nil {
		return Voucher{}, err
	}
	if err := voucherStateError(v); err != nil {
		return v, err
	}
	if v.TenantID != tenantID {
		return v, &TenantMismatchError{VoucherID: v.ID, VoucherTenant: v.TenantID, RedeemingTenant: tenantID}
	}

	now := e.now()
	ok, err := e.Store.TransitionVoucher(ctx, VoucherTransition{
		ID:        v.ID,
		From:      VoucherActive,
		To:        VoucherUsed,
		At:        now,
		Tenant:    tenantID,
		Unexpired: true,
	})
	if err != nil {
		return Voucher{}, fmt.Errorf("use voucher: %w", err)
	}
	if !ok {
		return e.lostTransition(ctx, v.ID)
	}

	v.Status = VoucherUsed
	v.UsedAt = &now
	v.UsedBy = tenantID
	observability.Metrics().VoucherTransition(string(VoucherUsed))
	e.Logger.InfoContext(ctx, "voucher used",
		"voucher_id", v.ID, "customer_id", v.CustomerID, "tenant_id", tenantID)
	e.publish(ctx, events.VoucherUsed, string(v.CustomerID), v)
	return v, nil
}

// lostTransition reports why a guarded active transition matched no row.
func (e *Engine) lostTransition(ctx context.Context, id VoucherID) (Voucher, error) {
	current, err := e.Voucher(ctx, id)
	if err != nil {
		return Voucher{}, err
	}
	if err := voucherStateError(current); err != nil {
		return current, err
	}
	// Still active and unexpired: only possible if the row changed and
	// changed back, which the state machine forbids.
	return current, fmt.Errorf("voucher %s transition lost without state change", id)
}
