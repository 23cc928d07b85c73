/*
balance.go - Derived balance and tier (the Ledger Reader)

PURPOSE:
  Computes what a customer can spend by folding their ledger. There is no
  stored balance that could drift from the entries.

FOLD RULES:
  - Only APPROVED and VOID status entries count
  - PENDING entries are reported separately ("awaiting approval")
  - REJECTED entries are ignored entirely
  - Each counted entry contributes Entry.Delta() (see ledger.go)
  - The result is clamped at zero

ORDER INDEPENDENCE:
  The fold is a sum of signed deltas, so it is commutative. Concurrent
  appends never need to be ordered for reads. Only spending requires a
  fresh fold, taken inside the spending transaction (redemption.go).

TIERS:
  Standard  <  100
  Silver    100 - 499
  Gold      500 - 999
  Platinum  >= 1000
*/
package loyalty

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// TIER
// =============================================================================

type Tier string

const (
	TierStandard Tier = "Standard"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
)

// TierFor maps a balance to its tier.
func TierFor(balance int64) Tier {
	switch {
	case balance >= 1000:
		return TierPlatinum
	case balance >= 500:
		return TierGold
	case balance >= 100:
		return TierSilver
	default:
		return TierStandard
	}
}

// =============================================================================
// BALANCE
// =============================================================================

type Balance struct {
	CustomerID CustomerID
	Points     int64 // Spendable, never negative
	Tier       Tier

	// Raw is the unclamped sum. Negative only transiently, e.g. a refund
	// clawback after the points were already spent.
	Raw int64

	PendingPoints int64 // EARNED entries awaiting approval
	PendingCount  int
}

// Fold computes a balance from entries. Pure: the same entries always give
// the same result, in any order.
func Fold(customerID CustomerID, entries []Entry) Balance {
	b := Balance{CustomerID: customerID}
	for _, entry := range entries {
		switch {
		case entry.Status.Counts():
			b.Raw += entry.Delta()
		case entry.Status == StatusPending:
			b.PendingPoints += entry.Points
			b.PendingCount++
		}
	}
	b.Points = max(b.Raw, 0)
	b.Tier = TierFor(b.Points)
	return b
}

// Balance folds the customer's ledger.
func (e *Engine) Balance(ctx context.Context, customerID CustomerID) (b Balance, err error) {
	ctx, span := e.startSpan(ctx, "Balance", attribute.String("customer_id", string(customerID)))
	defer func() { endSpan(span, "balance", err) }()

	customer, err := e.Store.Customer(ctx, customerID)
	if err != nil {
		return Balance{}, fmt.Errorf("load customer: %w", err)
	}
	if customer == nil {
		return Balance{}, notFound("customer", string(customerID))
	}
	return balanceOf(ctx, e.Store, customerID)
}

func balanceOf(ctx context.Context, store EntryStore, customerID CustomerID) (Balance, error) {
	entries, err := store.Entries(ctx, customerID)
	if err != nil {
		return Balance{}, fmt.Errorf("load entries: %w", err)
	}
	return Fold(customerID, entries), nil
}
