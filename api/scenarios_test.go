/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Each scenario is loaded through the HTTP surface and the resulting
	ledger is checked against the numbers its description promises.
*/
package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/cache"
)

var demoAda = Identity{Subject: string(demoCustomer), Role: RoleCustomer}

func (s *testServer) load(id string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/scenarios/load", admin, LoadScenarioRequest{ScenarioID: id})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenario_SilverCustomer(t *testing.T) {
	// GIVEN: EARNED 300 + EARNED 200 + SPENT 50
	s := newTestServer(t)
	s.load("silver-customer")

	// THEN: 450 points, Silver
	b := s.balance(demoAda)
	assert.Equal(t, int64(450), b.Points)
	assert.Equal(t, "Silver", b.Tier)

	// AND: The 500-point reward is out of reach
	rec := s.do(http.MethodPost, "/api/customers/cust-001/redemptions", demoAda, map[string]any{
		"kind": "reward", "reward_id": "espresso-machine",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, int64(500), *body.Required)
	assert.Equal(t, int64(450), *body.Available)
	assert.Equal(t, int64(450), s.balance(demoAda).Points, "failed redemption writes nothing")
}

func TestScenario_DiscountReady(t *testing.T) {
	s := newTestServer(t)
	s.load("discount-ready")
	require.Equal(t, int64(1300), s.balance(demoAda).Points)

	rec := s.do(http.MethodPost, "/api/customers/cust-001/redemptions", demoAda, map[string]any{
		"kind": "discount", "tenant_id": "cafe-north", "discount_amount": "10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[RedeemResponse](t, rec)
	assert.Equal(t, int64(1000), res.Redemption.Points)
	assert.Equal(t, int64(300), res.Balance.Points)
}

func TestScenario_PendingReceipts(t *testing.T) {
	s := newTestServer(t)
	s.load("pending-receipts")

	b := s.balance(demoAda)
	assert.Equal(t, int64(200), b.Points, "240 earned, 40 clawed back")
	assert.Equal(t, int64(65), b.PendingPoints)
	assert.Equal(t, 1, b.PendingCount)
}

func TestScenario_VoucherWallet(t *testing.T) {
	s := newTestServer(t)
	s.load("voucher-wallet")

	rec := s.do(http.MethodGet, "/api/customers/cust-001/vouchers", demoAda, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	statuses := map[string]int{}
	for _, v := range decode[[]VoucherDTO](t, rec) {
		statuses[v.Status]++
	}
	assert.Equal(t, map[string]int{"active": 1, "used": 1, "cancelled": 1}, statuses)
	assert.Equal(t, int64(600), s.balance(demoAda).Points)
}

func TestScenario_ReloadResets(t *testing.T) {
	s := newTestServer(t)
	s.load("discount-ready")
	s.load("silver-customer")
	assert.Equal(t, int64(450), s.balance(demoAda).Points)

	rec := s.do(http.MethodGet, "/api/scenarios/current", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "silver-customer", decode[ScenarioDTO](t, rec).ID)
}

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	s := newTestServer(t)
	for _, sc := range scenarios {
		s.load(sc.ID)
	}

	rec := s.do(http.MethodPost, "/api/scenarios/load", admin, LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/scenarios", demoAda, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestScenario_ReloadDropsCachedTenantConfigs(t *testing.T) {
	// GIVEN: Config reads go through a cache and a tenant has a custom rate
	s := newTestServer(t)
	s.handler.Engine.Configs = cache.NewConfigCache(s.handler.Store, cache.NewInMemoryCache(), time.Hour)
	rec := s.do(http.MethodPut, "/api/admin/tenants/cafe-south/config", admin, map[string]any{
		"point_face_value": "0.10", "base_points_per_pound": "1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cfg, err := s.handler.Engine.TenantConfig(context.Background(), "cafe-south")
	require.NoError(t, err)
	require.True(t, cfg.PointFaceValue.Equal(decimal.RequireFromString("0.10")))

	// WHEN: A scenario wipes the store
	s.load("silver-customer")

	// THEN: The wiped tenant is back on the default rate
	cfg, err = s.handler.Engine.TenantConfig(context.Background(), "cafe-south")
	require.NoError(t, err)
	assert.True(t, cfg.PointFaceValue.Equal(decimal.RequireFromString("0.01")))
}
