/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Every scenario goes through the engine, so the seeded
	ledger obeys the same rules as production traffic.

AVAILABLE SCENARIOS:

	silver-customer:  450 points (Silver), a 500-point reward out of reach
	discount-ready:   1300 points, enough for a £10 discount at 0.01/point
	pending-receipts: Approved purchase, pending receipt, partial refund
	voucher-wallet:   Active, used and cancelled vouchers side by side

HOW SCENARIOS WORK:
 1. Reset database (clear all data) and drop cached tenant configs
 2. Configure tenants and rewards
 3. Register customers
 4. Append ledger entries
 5. Optionally redeem, scan or cancel vouchers

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "silver-customer"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/loyalty"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "silver-customer",
		Name:        "Silver Customer",
		Description: "EARNED 300 + 200, SPENT 50: 450 points, Silver tier; the 500-point reward is refused",
		Category:    "balance",
	},
	{
		ID:          "discount-ready",
		Name:        "Discount Ready",
		Description: "1300 points at 0.01 per point: a £10 discount costs 1000 and leaves 300",
		Category:    "redemption",
	},
	{
		ID:          "pending-receipts",
		Name:        "Pending Receipts",
		Description: "Approved purchase, receipt awaiting review and a partial refund clawback",
		Category:    "ledger",
	},
	{
		ID:          "voucher-wallet",
		Name:        "Voucher Wallet",
		Description: "One active, one used and one cancelled voucher",
		Category:    "vouchers",
	},
}

const (
	demoTenant   = loyalty.TenantID("cafe-north")
	demoCustomer = loyalty.CustomerID("cust-001")
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	loaders := map[string]func(context.Context) error{
		"silver-customer":  h.loadSilverCustomerScenario,
		"discount-ready":   h.loadDiscountReadyScenario,
		"pending-receipts": h.loadPendingReceiptsScenario,
		"voucher-wallet":   h.loadVoucherWalletScenario,
	}
	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	if err := h.Engine.InvalidateTenantConfigs(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSilverCustomerScenario(ctx context.Context) error {
	if err := h.seedTenant(ctx, demoCustomer); err != nil {
		return err
	}
	for _, e := range []struct {
		typ    loyalty.EntryType
		points int64
		reason string
	}{
		{loyalty.EntryEarned, 300, "weekly shop"},
		{loyalty.EntryEarned, 200, "weekly shop"},
		{loyalty.EntrySpent, 50, "coffee voucher"},
	} {
		if _, err := h.Engine.AppendEntry(ctx, loyalty.AppendEntryRequest{
			CustomerID: demoCustomer,
			TenantID:   demoTenant,
			Type:       e.typ,
			Status:     loyalty.StatusApproved,
			Amount:     decimal.Zero,
			Points:     e.points,
			Reason:     e.reason,
			Actor:      "scenario",
		}); err != nil {
			return fmt.Errorf("append %s: %w", e.typ, err)
		}
	}
	return nil
}

func (h *Handler) loadDiscountReadyScenario(ctx context.Context) error {
	if err := h.seedTenant(ctx, demoCustomer); err != nil {
		return err
	}
	_, err := h.Engine.RecordPurchase(ctx, loyalty.PurchaseRequest{
		CustomerID: demoCustomer,
		TenantID:   demoTenant,
		Amount:     decimal.NewFromInt(1300),
		Reference:  "order-1001",
		Actor:      "scenario",
	})
	return err
}

func (h *Handler) loadPendingReceiptsScenario(ctx context.Context) error {
	if err := h.seedTenant(ctx, demoCustomer); err != nil {
		return err
	}
	purchase, err := h.Engine.RecordPurchase(ctx, loyalty.PurchaseRequest{
		CustomerID: demoCustomer,
		TenantID:   demoTenant,
		Amount:     decimal.RequireFromString("240.00"),
		Reference:  "order-2001",
		Actor:      "scenario",
	})
	if err != nil {
		return err
	}
	if _, err := h.Engine.RecordRefund(ctx, loyalty.RefundRequest{
		OriginalEntryID: purchase.ID,
		Amount:          decimal.RequireFromString("40.00"),
		Reason:          "returned item",
		Actor:           "scenario",
	}); err != nil {
		return err
	}
	_, err = h.Engine.SubmitReceipt(ctx, loyalty.ReceiptRequest{
		CustomerID: demoCustomer,
		TenantID:   demoTenant,
		Amount:     decimal.RequireFromString("65.50"),
		ReceiptRef: "paper-receipt-17",
	})
	return err
}

func (h *Handler) loadVoucherWalletScenario(ctx context.Context) error {
	if err := h.seedTenant(ctx, demoCustomer); err != nil {
		return err
	}
	if _, err := h.Engine.RecordPurchase(ctx, loyalty.PurchaseRequest{
		CustomerID: demoCustomer,
		TenantID:   demoTenant,
		Amount:     decimal.NewFromInt(800),
		Reference:  "order-3001",
		Actor:      "scenario",
	}); err != nil {
		return err
	}

	redeem := func() (loyalty.Voucher, error) {
		res, err := h.Engine.Redeem(ctx, loyalty.RedeemRequest{
			Kind:       loyalty.RedeemReward,
			CustomerID: demoCustomer,
			RewardID:   "flat-white",
		})
		return res.Voucher, err
	}

	if _, err := redeem(); err != nil {
		return err
	}
	used, err := redeem()
	if err != nil {
		return err
	}
	if _, err := h.Engine.RedeemVoucherCode(ctx, used.Code, demoTenant); err != nil {
		return err
	}
	cancelled, err := redeem()
	if err != nil {
		return err
	}
	_, err = h.Engine.CancelRedemption(ctx, loyalty.CancelRequest{
		VoucherID:  cancelled.ID,
		CustomerID: demoCustomer,
		Actor:      "scenario",
	})
	return err
}

// seedTenant configures the demo tenant, its rewards and one customer.
func (h *Handler) seedTenant(ctx context.Context, customerID loyalty.CustomerID) error {
	if _, err := h.Engine.SetTenantConfig(ctx, loyalty.TenantPointsConfig{
		TenantID:           demoTenant,
		PointFaceValue:     decimal.RequireFromString("0.01"),
		BasePointsPerPound: decimal.NewFromInt(1),
	}); err != nil {
		return fmt.Errorf("tenant config: %w", err)
	}
	for _, reward := range []loyalty.Reward{
		{ID: "flat-white", Name: "Flat White", PointsCost: 100},
		{ID: "pastry-box", Name: "Pastry Box", PointsCost: 250},
		{ID: "espresso-machine", Name: "Espresso Machine Raffle", PointsCost: 500},
	} {
		reward.TenantID = demoTenant
		reward.Active = true
		if _, err := h.Engine.SaveReward(ctx, reward); err != nil {
			return fmt.Errorf("reward %s: %w", reward.ID, err)
		}
	}
	_, err := h.Engine.RegisterCustomer(ctx, loyalty.Customer{
		ID:       customerID,
		TenantID: demoTenant,
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
	})
	return err
}
