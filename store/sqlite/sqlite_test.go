/*
sqlite_test.go - Store contract tests against an in-memory SQLite database

Tests for:
- Append-only entries and idempotency key uniqueness
- Guarded settlement of PENDING entries
- Guarded voucher transitions, including the expiry guard
- Voucher code uniqueness
- Transaction rollback
*/
package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/loyalty"
	"github.com/warp/points-engine/store/sqldb"
	"github.com/warp/points-engine/store/sqlite"
)

var t0 = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqldb.Store {
	t.Helper()
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SaveCustomer(context.Background(), loyalty.Customer{
		ID: "cust-1", TenantID: "tenant-a", Name: "Ada", CreatedAt: t0,
	}))
	return store
}

func earned(id string, points int64, key string) loyalty.Entry {
	return loyalty.Entry{
		ID:             loyalty.EntryID(id),
		CustomerID:     "cust-1",
		TenantID:       "tenant-a",
		Type:           loyalty.EntryEarned,
		Status:         loyalty.StatusApproved,
		Amount:         decimal.NewFromInt(points),
		Points:         points,
		IdempotencyKey: key,
		CreatedBy:      "test",
		CreatedAt:      t0,
	}
}

func seedVoucher(t *testing.T, store *sqldb.Store, id, code string, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateRedemption(ctx, loyalty.Redemption{
		ID: loyalty.RedemptionID("red-" + id), Kind: loyalty.RedeemDiscount, CustomerID: "cust-1",
		TenantID: "tenant-a", Points: 100, Amount: decimal.NewFromInt(1), CreatedAt: t0,
	}))
	require.NoError(t, store.CreateVoucher(ctx, loyalty.Voucher{
		ID: loyalty.VoucherID(id), Code: code, RedemptionID: loyalty.RedemptionID("red-" + id),
		CustomerID: "cust-1", TenantID: "tenant-a", Status: loyalty.VoucherActive,
		Amount: decimal.NewFromInt(1), CreatedAt: t0, ExpiresAt: expiresAt,
	}))
}

func TestEntries_AppendAndLoad(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	e := earned("e-1", 450, "purchase-1")
	e.ReferenceID = "order-77"
	require.NoError(t, store.AppendEntry(ctx, e))

	got, err := store.Entry(ctx, "e-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(450), got.Points)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(450)))
	assert.Equal(t, "order-77", got.ReferenceID)
	assert.Equal(t, t0, got.CreatedAt)
	assert.Nil(t, got.SettledAt)

	byRef, err := store.EntriesByReference(ctx, "order-77")
	require.NoError(t, err)
	assert.Len(t, byRef, 1)

	missing, err := store.Entry(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEntries_DuplicateIdempotencyKey(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendEntry(ctx, earned("e-1", 10, "k")))
	err := store.AppendEntry(ctx, earned("e-2", 10, "k"))
	assert.ErrorIs(t, err, loyalty.ErrDuplicateIdempotencyKey)

	exists, err := store.EntryExists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	// Entries without a key never collide.
	require.NoError(t, store.AppendEntry(ctx, earned("e-3", 10, "")))
	require.NoError(t, store.AppendEntry(ctx, earned("e-4", 10, "")))
}

func TestEntries_OrderedByCreation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	later := earned("e-b", 1, "")
	later.CreatedAt = t0.Add(time.Second)
	require.NoError(t, store.AppendEntry(ctx, later))
	require.NoError(t, store.AppendEntry(ctx, earned("e-a", 2, "")))

	entries, err := store.Entries(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, loyalty.EntryID("e-a"), entries[0].ID)
	assert.Equal(t, loyalty.EntryID("e-b"), entries[1].ID)
}

func TestSettleEntry_OnlyOnce(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	pending := earned("e-1", 25, "")
	pending.Status = loyalty.StatusPending
	require.NoError(t, store.AppendEntry(ctx, pending))

	ok, err := store.SettleEntry(ctx, "e-1", loyalty.StatusApproved, "staff-1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SettleEntry(ctx, "e-1", loyalty.StatusRejected, "staff-2", t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "second settlement must not apply")

	got, err := store.Entry(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, loyalty.StatusApproved, got.Status)
	assert.Equal(t, "staff-1", got.SettledBy)
	require.NotNil(t, got.SettledAt)
	assert.Equal(t, t0.Add(time.Hour), *got.SettledAt)
}

func TestVoucher_CodeUnique(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedVoucher(t, store, "v-1", "ABCDEFGH23", t0.Add(time.Hour))

	exists, err := store.VoucherCodeExists(ctx, "ABCDEFGH23")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.CreateRedemption(ctx, loyalty.Redemption{
		ID: "red-v-2", Kind: loyalty.RedeemDiscount, CustomerID: "cust-1", TenantID: "tenant-a",
		Points: 1, Amount: decimal.Zero, CreatedAt: t0,
	}))
	err = store.CreateVoucher(ctx, loyalty.Voucher{
		ID: "v-2", Code: "ABCDEFGH23", RedemptionID: "red-v-2", CustomerID: "cust-1",
		TenantID: "tenant-a", Status: loyalty.VoucherActive, Amount: decimal.Zero,
		CreatedAt: t0, ExpiresAt: t0.Add(time.Hour),
	})
	assert.ErrorIs(t, err, loyalty.ErrDuplicateVoucherCode)

	v, err := store.VoucherByCode(ctx, "ABCDEFGH23")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, loyalty.VoucherID("v-1"), v.ID)
}

func TestRedemptionsByCustomer(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedVoucher(t, store, "v-2", "CODE333333", t0.Add(time.Hour))
	seedVoucher(t, store, "v-1", "CODE444444", t0.Add(time.Hour))

	list, err := store.RedemptionsByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, loyalty.RedemptionID("red-v-1"), list[0].ID, "same instant orders by id")
	assert.Equal(t, loyalty.RedeemDiscount, list[0].Kind)
	assert.True(t, list[0].Amount.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, t0, list[0].CreatedAt)

	none, err := store.RedemptionsByCustomer(ctx, "cust-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTransitionVoucher_Guarded(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedVoucher(t, store, "v-1", "CODE222222", t0.Add(time.Hour))

	usedAt := t0.Add(time.Minute)
	ok, err := store.TransitionVoucher(ctx, loyalty.VoucherTransition{
		ID: "v-1", From: loyalty.VoucherActive, To: loyalty.VoucherUsed,
		At: usedAt, Tenant: "tenant-a", Unexpired: true,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// A second actor loses.
	ok, err = store.TransitionVoucher(ctx, loyalty.VoucherTransition{
		ID: "v-1", From: loyalty.VoucherActive, To: loyalty.VoucherCancelled, At: usedAt,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := store.Voucher(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, loyalty.VoucherUsed, v.Status)
	assert.Equal(t, loyalty.TenantID("tenant-a"), v.UsedBy)
	require.NotNil(t, v.UsedAt)
	assert.Equal(t, usedAt, *v.UsedAt)
	assert.Nil(t, v.CancelledAt)
}

func TestTransitionVoucher_ExpiryGuard(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	expiresAt := t0.Add(time.Hour)
	seedVoucher(t, store, "v-1", "CODE333333", expiresAt)

	// At the expiry instant the voucher counts as expired.
	ok, err := store.TransitionVoucher(ctx, loyalty.VoucherTransition{
		ID: "v-1", From: loyalty.VoucherActive, To: loyalty.VoucherUsed,
		At: expiresAt, Tenant: "tenant-a", Unexpired: true,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.TransitionVoucher(ctx, loyalty.VoucherTransition{
		ID: "v-1", From: loyalty.VoucherActive, To: loyalty.VoucherExpired, At: expiresAt,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := store.Voucher(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, loyalty.VoucherExpired, v.Status)
	require.NotNil(t, v.ExpiredAt)
}

func TestWithTx_RollsBack(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx loyalty.Tx) error {
		if err := tx.LockCustomer(ctx, "cust-1"); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, earned("e-1", 10, "")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := store.Entries(ctx, "cust-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCatalog_RoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveReward(ctx, loyalty.Reward{
		ID: "r-1", TenantID: "tenant-a", Name: "Coffee", PointsCost: 150, Active: true,
		CreatedAt: t0, UpdatedAt: t0,
	}))
	r, err := store.Reward(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.Active)
	assert.Equal(t, int64(150), r.PointsCost)

	rewards, err := store.Rewards(ctx, "tenant-b")
	require.NoError(t, err)
	assert.Empty(t, rewards)

	cfg, err := store.TenantConfig(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, cfg, "no stored config")

	require.NoError(t, store.SaveTenantConfig(ctx, loyalty.TenantPointsConfig{
		TenantID:           "tenant-a",
		PointFaceValue:     decimal.RequireFromString("0.01"),
		BasePointsPerPound: decimal.NewFromInt(2),
		UpdatedAt:          t0,
	}))
	cfg, err = store.TenantConfig(ctx, "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.PointFaceValue.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, cfg.MinPurchaseAmount.IsZero())
}

func TestReset(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.AppendEntry(ctx, earned("e-1", 10, "")))
	seedVoucher(t, store, "v-1", "CODE444444", t0.Add(time.Hour))

	require.NoError(t, store.Reset(ctx))

	c, err := store.Customer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Nil(t, c)
	v, err := store.Voucher(ctx, "v-1")
	require.NoError(t, err)
	assert.Nil(t, v)
}
