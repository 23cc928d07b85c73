package loyalty_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/loyalty"
)

// =============================================================================
// FOLD (pure)
// =============================================================================

func entry(typ loyalty.EntryType, status loyalty.EntryStatus, points int64) loyalty.Entry {
	return loyalty.Entry{CustomerID: "c", TenantID: "t", Type: typ, Status: status, Points: points, Amount: decimal.Zero}
}

func TestFold_OrderIndependent(t *testing.T) {
	entries := []loyalty.Entry{
		entry(loyalty.EntryEarned, loyalty.StatusApproved, 300),
		entry(loyalty.EntryEarned, loyalty.StatusApproved, 200),
		entry(loyalty.EntrySpent, loyalty.StatusApproved, 150),
		entry(loyalty.EntryRefund, loyalty.StatusApproved, -40),
		entry(loyalty.EntryVoid, loyalty.StatusApproved, 150),
		entry(loyalty.EntryEarned, loyalty.StatusPending, 75),
		entry(loyalty.EntryEarned, loyalty.StatusRejected, 999),
	}
	want := loyalty.Fold("c", entries)
	assert.Equal(t, int64(460), want.Points)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := append([]loyalty.Entry(nil), entries...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, loyalty.Fold("c", shuffled))
	}
}

func TestFold_StatusRules(t *testing.T) {
	tests := []struct {
		name        string
		entries     []loyalty.Entry
		wantPoints  int64
		wantRaw     int64
		wantPending int64
	}{
		{
			name:       "pending excluded from spendable",
			entries:    []loyalty.Entry{entry(loyalty.EntryEarned, loyalty.StatusPending, 100)},
			wantPoints: 0, wantRaw: 0, wantPending: 100,
		},
		{
			name:       "rejected ignored",
			entries:    []loyalty.Entry{entry(loyalty.EntryEarned, loyalty.StatusRejected, 100)},
			wantPoints: 0, wantRaw: 0, wantPending: 0,
		},
		{
			name: "void status still counts",
			entries: []loyalty.Entry{
				entry(loyalty.EntryEarned, loyalty.StatusVoid, 80),
				entry(loyalty.EntryEarned, loyalty.StatusApproved, 20),
			},
			wantPoints: 100, wantRaw: 100,
		},
		{
			name: "spent subtracts stored cost",
			entries: []loyalty.Entry{
				entry(loyalty.EntryEarned, loyalty.StatusApproved, 100),
				entry(loyalty.EntrySpent, loyalty.StatusApproved, 30),
			},
			wantPoints: 70, wantRaw: 70,
		},
		{
			name: "clamped at zero",
			entries: []loyalty.Entry{
				entry(loyalty.EntryEarned, loyalty.StatusApproved, 100),
				entry(loyalty.EntrySpent, loyalty.StatusApproved, 100),
				entry(loyalty.EntryRefund, loyalty.StatusApproved, -50),
			},
			wantPoints: 0, wantRaw: -50,
		},
		{
			name:       "empty ledger",
			wantPoints: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := loyalty.Fold("c", tt.entries)
			assert.Equal(t, tt.wantPoints, b.Points)
			assert.Equal(t, tt.wantRaw, b.Raw)
			assert.Equal(t, tt.wantPending, b.PendingPoints)
		})
	}
}

func TestTierFor_Boundaries(t *testing.T) {
	tests := map[int64]loyalty.Tier{
		0:    loyalty.TierStandard,
		99:   loyalty.TierStandard,
		100:  loyalty.TierSilver,
		499:  loyalty.TierSilver,
		500:  loyalty.TierGold,
		999:  loyalty.TierGold,
		1000: loyalty.TierPlatinum,
		5000: loyalty.TierPlatinum,
	}
	for balance, want := range tests {
		assert.Equal(t, want, loyalty.TierFor(balance), "balance %d", balance)
	}
}

// =============================================================================
// BALANCE (through the store)
// =============================================================================

func TestBalance_WorkedExample(t *testing.T) {
	// GIVEN: EARNED 300 approved, EARNED 200 approved (a settled receipt),
	//        SPENT 50 approved
	f := newFixture(t)
	f.customer("cust-1", "tenant-a")
	f.earn("cust-1", 300)

	receipt, err := f.engine.SubmitReceipt(f.ctx, loyalty.ReceiptRequest{
		CustomerID: "cust-1", TenantID: "tenant-a", Amount: dec("200"), ReceiptRef: "rcpt-1",
	})
	require.NoError(t, err)
	_, err = f.engine.ApproveEntry(f.ctx, receipt.ID, "staff-1")
	require.NoError(t, err)

	f.reward("r-50", "tenant-a", 50)
	f.redeemReward("cust-1", "r-50")

	// THEN: Balance 450, Silver
	b := f.balance("cust-1")
	assert.Equal(t, int64(450), b.Points)
	assert.Equal(t, loyalty.TierSilver, b.Tier)

	// WHEN: Redeeming a 500 point reward
	f.reward("r-500", "tenant-a", 500)
	vouchersBefore := len(f.vouchers("cust-1"))
	entriesBefore := len(f.entries("cust-1"))
	redemptionsBefore := len(f.redemptions("cust-1"))
	require.Equal(t, 1, redemptionsBefore)
	_, err = f.engine.Redeem(f.ctx, loyalty.RedeemRequest{
		Kind: loyalty.RedeemReward, CustomerID: "cust-1", RewardID: "r-500",
	})

	// THEN: InsufficientPoints{required 500, available 450}, nothing written
	var insufficient *loyalty.InsufficientPointsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(500), insufficient.Required)
	assert.Equal(t, int64(450), insufficient.Available)
	assert.Equal(t, int64(50), insufficient.Shortfall())
	assert.Len(t, f.vouchers("cust-1"), vouchersBefore)
	assert.Len(t, f.entries("cust-1"), entriesBefore)
	assert.Len(t, f.redemptions("cust-1"), redemptionsBefore)
	assert.Equal(t, int64(450), f.balance("cust-1").Points)
}

func TestBalance_PendingReportedSeparately(t *testing.T) {
	f := newFixture(t)
	f.customer("cust-1", "tenant-a")
	f.earn("cust-1", 120)

	_, err := f.engine.SubmitReceipt(f.ctx, loyalty.ReceiptRequest{
		CustomerID: "cust-1", TenantID: "tenant-a", Amount: dec("35.80"),
	})
	require.NoError(t, err)

	b := f.balance("cust-1")
	assert.Equal(t, int64(120), b.Points)
	assert.Equal(t, int64(35), b.PendingPoints)
	assert.Equal(t, 1, b.PendingCount)
}

func TestBalance_UnknownCustomer(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Balance(f.ctx, "ghost")
	assert.True(t, errors.Is(err, loyalty.ErrNotFound))

	var nf *loyalty.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "customer", nf.Kind)
}
