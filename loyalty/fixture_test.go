package loyalty_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/events"
	"github.com/warp/points-engine/loyalty"
	"github.com/warp/points-engine/store/sqldb"
	"github.com/warp/points-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var start = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *sqldb.Store
	engine *loyalty.Engine
	events *events.Recorder
	now    time.Time
	ids    atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  store,
		events: events.NewRecorder(),
		now:    start,
	}
	f.engine = loyalty.NewEngine(store)
	f.engine.Events = f.events
	f.engine.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine.Now = func() time.Time { return f.now }
	f.engine.NewID = func() string {
		return fmt.Sprintf("id-%04d", f.ids.Add(1))
	}
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) customer(id loyalty.CustomerID, tenant loyalty.TenantID) {
	f.t.Helper()
	_, err := f.engine.RegisterCustomer(f.ctx, loyalty.Customer{ID: id, TenantID: tenant, Name: string(id)})
	require.NoError(f.t, err)
}

// earn appends an APPROVED EARNED entry worth points.
func (f *fixture) earn(id loyalty.CustomerID, points int64) loyalty.Entry {
	f.t.Helper()
	entry, err := f.engine.AppendEntry(f.ctx, loyalty.AppendEntryRequest{
		CustomerID: id,
		TenantID:   "tenant-a",
		Type:       loyalty.EntryEarned,
		Status:     loyalty.StatusApproved,
		Amount:     decimal.NewFromInt(points),
		Points:     points,
		Reason:     "test purchase",
		Actor:      "test",
	})
	require.NoError(f.t, err)
	return entry
}

func (f *fixture) reward(id loyalty.RewardID, tenant loyalty.TenantID, cost int64) loyalty.Reward {
	f.t.Helper()
	r, err := f.engine.SaveReward(f.ctx, loyalty.Reward{
		ID: id, TenantID: tenant, Name: "Reward " + string(id), PointsCost: cost, Active: true,
	})
	require.NoError(f.t, err)
	return r
}

func (f *fixture) balance(id loyalty.CustomerID) loyalty.Balance {
	f.t.Helper()
	b, err := f.engine.Balance(f.ctx, id)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) redeemReward(id loyalty.CustomerID, reward loyalty.RewardID) loyalty.RedeemResult {
	f.t.Helper()
	res, err := f.engine.Redeem(f.ctx, loyalty.RedeemRequest{
		Kind: loyalty.RedeemReward, CustomerID: id, RewardID: reward,
	})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) entries(id loyalty.CustomerID) []loyalty.Entry {
	f.t.Helper()
	entries, err := f.engine.Entries(f.ctx, id)
	require.NoError(f.t, err)
	return entries
}

func (f *fixture) vouchers(id loyalty.CustomerID) []loyalty.Voucher {
	f.t.Helper()
	vouchers, err := f.store.VouchersByCustomer(f.ctx, id)
	require.NoError(f.t, err)
	return vouchers
}

func (f *fixture) redemptions(id loyalty.CustomerID) []loyalty.Redemption {
	f.t.Helper()
	redemptions, err := f.engine.CustomerRedemptions(f.ctx, id)
	require.NoError(f.t, err)
	return redemptions
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
