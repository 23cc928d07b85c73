/*
redemption.go - Atomic points spend + voucher issuance (the Orchestrator)

PURPOSE:
  Turns points into a voucher. This is the most safety-critical path in
  the system: a crash or race here could mint a voucher without debiting
  points, debit points without a voucher, or let two concurrent spends both
  pass the balance check.

ALGORITHM (one database transaction):
  1. Lock the customer (row lock / write lock, see store.go)
  2. Price the request (reward point cost, or discount via the converter)
  3. Fold the ledger inside the transaction; never trust a cached balance
  4. Insufficient? Fail with InsufficientPointsError{Required, Available}
  5. Create the Redemption
  6. Generate a unique voucher code (bounded retries) and create the Voucher
  7. Append the SPENT entry for the cost
  Any failure rolls back steps 5-7 entirely.

CANCELLATION (one database transaction):
  1. Guarded active -> cancelled (refuses used, expired, cancelled)
  2. Append a VOID entry restoring the spent points
  The VOID entry's idempotency key is derived from the redemption, so a
  redemption can be compensated at most once.

RETRIES:
  The engine never retries a single step. The store's WithTx may re-run the
  whole transaction function (all of steps 1-7, or both cancellation steps)
  on serialization failures or deadlocks (Postgres 40001/40P01, SQLite
  busy), a bounded number of times, each on a fresh transaction. Any other
  storage failure surfaces to the caller; because each call is atomic, the
  safe retry is then the whole call with the same idempotency key.
*/
package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/warp/points-engine/events"
	"github.com/warp/points-engine/observability"
)

// =============================================================================
// REDEEM
// =============================================================================

// RedeemRequest is a tagged variant: Kind selects which fields apply.
//
//	reward:   RewardID
//	discount: TenantID + DiscountAmount
type RedeemRequest struct {
	Kind       RedeemKind
	CustomerID CustomerID

	RewardID RewardID

	TenantID       TenantID
	DiscountAmount decimal.Decimal

	IdempotencyKey string
}

// Validate checks the request shape before the orchestrator runs.
func (r RedeemRequest) Validate() error {
	if r.CustomerID == "" {
		return invalid("customer_id", "required")
	}
	switch r.Kind {
	case RedeemReward:
		if r.RewardID == "" {
			return invalid("reward_id", "required for reward redemptions")
		}
		if !r.DiscountAmount.IsZero() {
			return invalid("discount_amount", "not allowed for reward redemptions")
		}
	case RedeemDiscount:
		if r.TenantID == "" {
			return invalid("tenant_id", "required for discount redemptions")
		}
		if r.RewardID != "" {
			return invalid("reward_id", "not allowed for discount redemptions")
		}
		if !r.DiscountAmount.IsPositive() {
			return invalid("discount_amount", "must be positive, got %s", r.DiscountAmount)
		}
	default:
		return invalid("kind", "unknown redemption kind %q", r.Kind)
	}
	return nil
}

// RedeemResult is everything the redemption produced.
type RedeemResult struct {
	Redemption Redemption
	Voucher    Voucher
	Entry      Entry
	Balance    Balance // After the spend
}

// Redeem spends points and issues a voucher atomically.
func (e *Engine) Redeem(ctx context.Context, req RedeemRequest) (res RedeemResult, err error) {
	ctx, span := e.startSpan(ctx, "Redeem",
		attribute.String("customer_id", string(req.CustomerID)),
		attribute.String("kind", string(req.Kind)))
	defer func() { endSpan(span, "redeem", err) }()

	if err := req.Validate(); err != nil {
		return RedeemResult{}, err
	}

	// Tenant configuration is read before the transaction opens: it prices
	// the request but is not part of the balance.
	var discountCfg TenantPointsConfig
	if req.Kind == RedeemDiscount {
		discountCfg, err = e.TenantConfig(ctx, req.TenantID)
		if err != nil {
			return RedeemResult{}, fmt.Errorf("load tenant config: %w", err)
		}
	}

	err = e.Store.WithTx(ctx, func(tx Tx) error {
		customer, err := tx.Customer(ctx, req.CustomerID)
		if err != nil {
			return fmt.Errorf("load customer: %w", err)
		}
		if customer == nil {
			return notFound("customer", string(req.CustomerID))
		}
		if err := tx.LockCustomer(ctx, req.CustomerID); err != nil {
			return fmt.Errorf("lock customer: %w", err)
		}

		price, err := e.price(ctx, tx, req, discountCfg)
		if err != nil {
			return err
		}

		balance, err := balanceOf(ctx, tx, req.CustomerID)
		if err != nil {
			return err
		}
		if balance.Points < price.points {
			return &InsufficientPointsError{
				CustomerID: req.CustomerID,
				Required:   price.points,
				Available:  balance.Points,
			}
		}

		now := e.now()
		res.Redemption = Redemption{
			ID:         RedemptionID(e.NewID()),
			Kind:       req.Kind,
			RewardID:   price.rewardID,
			CustomerID: req.CustomerID,
			TenantID:   price.tenantID,
			Points:     price.points,
			Amount:     price.amount,
			CreatedAt:  now,
		}
		if err := tx.CreateRedemption(ctx, res.Redemption); err != nil {
			return fmt.Errorf("create redemption: %w", err)
		}

		code, err := uniqueCode(ctx, tx, e.Codes, e.MaxCodeAttempts)
		if err != nil {
			return err
		}
		res.Voucher = Voucher{
			ID:           VoucherID(e.NewID()),
			Code:         code,
			RedemptionID: res.Redemption.ID,
			CustomerID:   req.CustomerID,
			RewardID:     price.rewardID,
			TenantID:     price.tenantID,
			Status:       VoucherActive,
			Amount:       price.amount,
			CreatedAt:    now,
			ExpiresAt:    now.Add(e.VoucherValidity),
		}
		if err := tx.CreateVoucher(ctx, res.Voucher); err != nil {
			return fmt.Errorf("create voucher: %w", err)
		}

		res.Entry = Entry{
			ID:             EntryID(e.NewID()),
			CustomerID:     req.CustomerID,
			TenantID:       price.tenantID,
			Type:           EntrySpent,
			Status:         StatusApproved,
			Amount:         price.amount,
			Points:         price.points,
			ReferenceID:    string(res.Redemption.ID),
			Reason:         price.reason,
			IdempotencyKey: req.IdempotencyKey,
			CreatedBy:      string(req.CustomerID),
			CreatedAt:      now,
		}
		if err := e.append(ctx, tx, res.Entry); err != nil {
			return err
		}

		balance.Raw -= price.points
		balance.Points = max(balance.Raw, 0)
		balance.Tier = TierFor(balance.Points)
		res.Balance = balance
		return nil
	})
	if err != nil {
		var insufficient *InsufficientPointsError
		if errors.As(err, &insufficient) {
			e.Logger.DebugContext(ctx, "redemption rejected",
				"customer_id", req.CustomerID, "required", insufficient.Required, "available", insufficient.Available)
		}
		return RedeemResult{}, err
	}

	observability.Metrics().PointsSpent(string(res.Redemption.TenantID), res.Redemption.Points)
	e.Logger.InfoContext(ctx, "redemption created",
		"redemption_id", res.Redemption.ID, "customer_id", req.CustomerID,
		"voucher_id", res.Voucher.ID, "points", res.Redemption.Points, "tenant_id", res.Redemption.TenantID)
	e.publish(ctx, events.RedemptionCreated, string(req.CustomerID), res)
	return res, nil
}

type redemptionPrice struct {
	points   int64
	amount   decimal.Decimal
	tenantID TenantID
	rewardID RewardID
	reason   string
}

// price resolves the point cost of a request.
func (e *Engine) price(ctx context.Context, tx Tx, req RedeemRequest, cfg TenantPointsConfig) (redemptionPrice, error) {
	if req.Kind == RedeemDiscount {
		points, err := cfg.PointsForCurrency(req.DiscountAmount)
		if err != nil {
			return redemptionPrice{}, err
		}
		return redemptionPrice{
			points:   points,
			amount:   req.DiscountAmount,
			tenantID: req.TenantID,
			reason:   "discount " + req.DiscountAmount.StringFixed(2),
		}, nil
	}

	reward, err := tx.Reward(ctx, req.RewardID)
	if err != nil {
		return redemptionPrice{}, fmt.Errorf("load reward: %w", err)
	}
	if reward == nil {
		return redemptionPrice{}, notFound("reward", string(req.RewardID))
	}
	if !reward.Active {
		return redemptionPrice{}, fmt.Errorf("reward %s: %w", reward.ID, ErrRewardInactive)
	}
	if reward.PointsCost <= 0 {
		return redemptionPrice{}, invalid("reward_id", "reward %s has no point price", reward.ID)
	}
	return redemptionPrice{
		points:   reward.PointsCost,
		amount:   decimal.Zero,
		tenantID: reward.TenantID,
		rewardID: reward.ID,
		reason:   "reward " + reward.Name,
	}, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// CancelRequest cancels the redemption behind a voucher. CustomerID, when
// set, must own the voucher; admin tooling leaves it empty.
type CancelRequest struct {
	VoucherID  VoucherID
	CustomerID CustomerID
	Actor      string
}

// CancelResult is the cancelled voucher and the compensating entry.
type CancelResult struct {
	Voucher Voucher
	Entry   Entry
}

// CancelRedemption cancels an active voucher and restores its points.
func (e *Engine) CancelRedemption(ctx context.Context, req CancelRequest) (res CancelResult, err error) {
	ctx, span := e.startSpan(ctx, "CancelRedemption", attribute.String("voucher_id", string(req.VoucherID)))
	defer func() { endSpan(span, "cancel_redemption", err) }()

	// Reading through the lifecycle persists a due expiry even though the
	// cancellation itself will be refused.
	v, err := e.Voucher(ctx, req.VoucherID)
	if err != nil {
		return CancelResult{}, err
	}
	if req.CustomerID != "" && v.CustomerID != req.CustomerID {
		return CancelResult{}, notFound("voucher", string(req.VoucherID))
	}
	if err := voucherStateError(v); err != nil {
		return CancelResult{}, err
	}

	var lost bool
	err = e.Store.WithTx(ctx, func(tx Tx) error {
		if err := tx.LockCustomer(ctx, v.CustomerID); err != nil {
			return fmt.Errorf("lock customer: %w", err)
		}
		redemption, err := tx.Redemption(ctx, v.RedemptionID)
		if err != nil {
			return fmt.Errorf("load redemption: %w", err)
		}
		if redemption == nil {
			return notFound("redemption", string(v.RedemptionID))
		}

		now := e.now()
		ok, err := tx.TransitionVoucher(ctx, VoucherTransition{
			ID:        v.ID,
			From:      VoucherActive,
			To:        VoucherCancelled,
			At:        now,
			Unexpired: true,
		})
		if err != nil {
			return fmt.Errorf("cancel voucher: %w", err)
		}
		if !ok {
			lost = true
			return nil
		}

		res.Entry = Entry{
			ID:             EntryID(e.NewID()),
			CustomerID:     redemption.CustomerID,
			TenantID:       redemption.TenantID,
			Type:           EntryVoid,
			Status:         StatusApproved,
			Amount:         redemption.Amount,
			Points:         redemption.Points,
			ReferenceID:    string(redemption.ID),
			Reason:         "redemption cancelled",
			IdempotencyKey: "cancel:" + string(redemption.ID),
			CreatedBy:      req.Actor,
			CreatedAt:      now,
		}
		if err := e.append(ctx, tx, res.Entry); err != nil {
			return err
		}

		v.Status = VoucherCancelled
		v.CancelledAt = &now
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}
	if lost {
		current, err := e.lostTransition(ctx, v.ID)
		return CancelResult{Voucher: current}, err
	}

	res.Voucher = v
	observability.Metrics().VoucherTransition(string(VoucherCancelled))
	e.Logger.InfoContext(ctx, "redemption cancelled",
		"voucher_id", v.ID, "redemption_id", v.RedemptionID, "customer_id", v.CustomerID, "points_restored", res.Entry.Points)
	e.publish(ctx, events.RedemptionCancelled, string(v.CustomerID), res)
	return res, nil
}

// CustomerRedemptions lists a customer's redemptions, cancelled ones included.
func (e *Engine) CustomerRedemptions(ctx context.Context, customerID CustomerID) ([]Redemption, error) {
	customer, err := e.Store.Customer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	if customer == nil {
		return nil, notFound("customer", string(customerID))
	}
	redemptions, err := e.Store.RedemptionsByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("load redemptions: %w", err)
	}
	return redemptions, nil
}
