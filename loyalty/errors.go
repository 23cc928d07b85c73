/*
errors.go - Centralized error types for the loyalty engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every structured error unwraps to a sentinel so callers can branch with
  errors.Is and still read the details with errors.As.

ERROR CATEGORIES:
  1. Validation errors - Malformed input, sign/type mismatches
  2. Lookup errors - Missing customer, reward, voucher, entry
  3. Business rule errors - Insufficient points, wrong tenant
  4. Voucher state errors - Already used, expired, cancelled
  5. Store errors - Idempotency and uniqueness violations

USAGE:
  var insufficient *loyalty.InsufficientPointsError
  if errors.As(err, &insufficient) {
      // show insufficient.Required and insufficient.Available
  }

RETRIES:
  Business rule failures are never retried: the same input fails the same
  way. Storage failures may be retried by the caller, always by redoing the
  whole operation (each operation is atomic).

SEE ALSO:
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package loyalty

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientPoints is returned when a spend exceeds the derived balance.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrTenantMismatch is returned when a voucher is scanned at a tenant
	// other than the one that issued it.
	ErrTenantMismatch = errors.New("voucher issued by another tenant")

	// ErrCodeGenerationExhausted is returned when no unique voucher code was
	// found within the attempt budget.
	ErrCodeGenerationExhausted = errors.New("voucher code generation exhausted")

	// ErrVoucherUsed is returned when a voucher was already redeemed.
	ErrVoucherUsed = errors.New("voucher already used")

	// ErrVoucherExpired is returned when a voucher is past its expiry.
	ErrVoucherExpired = errors.New("voucher expired")

	// ErrVoucherCancelled is returned when a voucher was cancelled.
	ErrVoucherCancelled = errors.New("voucher cancelled")

	// ErrEntryNotPending is returned when settling an entry that already left PENDING.
	ErrEntryNotPending = errors.New("entry is not pending")

	// ErrRewardInactive is returned when redeeming a disabled reward.
	ErrRewardInactive = errors.New("reward is not active")

	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. Expected for client retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrDuplicateVoucherCode is returned by stores when the code unique
	// index rejects an insert.
	ErrDuplicateVoucherCode = errors.New("duplicate voucher code")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes which field was rejected and why.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "customer", "reward", "voucher", "entry", "redemption"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// InsufficientPointsError carries the numbers the client displays.
type InsufficientPointsError struct {
	CustomerID CustomerID
	Required   int64
	Available  int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }

// Shortfall is how many more points the customer needs.
func (e *InsufficientPointsError) Shortfall() int64 {
	return e.Required - e.Available
}

// TenantMismatchError is returned on cross-tenant scans.
type TenantMismatchError struct {
	VoucherID       VoucherID
	VoucherTenant   TenantID
	RedeemingTenant TenantID
}

func (e *TenantMismatchError) Error() string {
	return fmt.Sprintf("voucher %s issued by tenant %s cannot be redeemed at tenant %s",
		e.VoucherID, e.VoucherTenant, e.RedeemingTenant)
}

func (e *TenantMismatchError) Unwrap() error { return ErrTenantMismatch }

// CodeGenerationExhaustedError reports the attempt budget that ran out.
type CodeGenerationExhaustedError struct {
	Attempts int
}

func (e *CodeGenerationExhaustedError) Error() string {
	return fmt.Sprintf("no unique voucher code after %d attempts", e.Attempts)
}

func (e *CodeGenerationExhaustedError) Unwrap() error { return ErrCodeGenerationExhausted }

// AlreadyUsedError reports when the voucher was used.
type AlreadyUsedError struct {
	VoucherID VoucherID
	UsedAt    *time.Time
}

func (e *AlreadyUsedError) Error() string {
	if e.UsedAt == nil {
		return fmt.Sprintf("voucher %s already used", e.VoucherID)
	}
	return fmt.Sprintf("voucher %s already used at %s", e.VoucherID, e.UsedAt.Format(time.RFC3339))
}

func (e *AlreadyUsedError) Unwrap() error { return ErrVoucherUsed }

// ExpiredError reports the expiry timestamp the voucher passed.
type ExpiredError struct {
	VoucherID VoucherID
	ExpiresAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("voucher %s expired at %s", e.VoucherID, e.ExpiresAt.Format(time.RFC3339))
}

func (e *ExpiredError) Unwrap() error { return ErrVoucherExpired }

// CancelledError reports when the voucher was cancelled.
type CancelledError struct {
	VoucherID   VoucherID
	CancelledAt *time.Time
}

func (e *CancelledError) Error() string {
	if e.CancelledAt == nil {
		return fmt.Sprintf("voucher %s was cancelled", e.VoucherID)
	}
	return fmt.Sprintf("voucher %s was cancelled at %s", e.VoucherID, e.CancelledAt.Format(time.RFC3339))
}

func (e *CancelledError) Unwrap() error { return ErrVoucherCancelled }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to client input or state
// the client must change before retrying.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrTenantMismatch) ||
		errors.Is(err, ErrRewardInactive) ||
		IsConflict(err)
}

// IsConflict returns true if the error is a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVoucherUsed) ||
		errors.Is(err, ErrVoucherExpired) ||
		errors.Is(err, ErrVoucherCancelled) ||
		errors.Is(err, ErrEntryNotPending) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
