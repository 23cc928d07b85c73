/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP API, kept apart from the loyalty domain types so
  storage and domain fields can change without breaking clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Monetary fields are decimal.Decimal. They are written as JSON strings
  ("10.50") and accepted as strings or numbers.

VALIDATION:
  Validation is done by the engine, not in DTOs. DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/loyalty"
)

// =============================================================================
// LEDGER
// =============================================================================

// BalanceDTO is a customer's derived balance.
type BalanceDTO struct {
	CustomerID    string `json:"customer_id"`
	Points        int64  `json:"points"`
	Tier          string `json:"tier"`
	PendingPoints int64  `json:"pending_points"`
	PendingCount  int    `json:"pending_count"`
}

// EntryDTO is one ledger entry.
type EntryDTO struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customer_id"`
	TenantID       string          `json:"tenant_id"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	Points         int64           `json:"points"`
	Delta          int64           `json:"delta"`
	Amount         decimal.Decimal `json:"amount"`
	ReferenceID    string          `json:"reference_id,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedBy      string          `json:"created_by,omitempty"`
	CreatedAt      string          `json:"created_at"`
	SettledBy      string          `json:"settled_by,omitempty"`
	SettledAt      string          `json:"settled_at,omitempty"`
}

// ReceiptRequest submits purchase evidence for review.
type ReceiptRequest struct {
	TenantID       string          `json:"tenant_id"`
	Amount         decimal.Decimal `json:"amount"`
	ReceiptRef     string          `json:"receipt_ref"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// PurchaseRequest records a completed purchase (admin/integration).
type PurchaseRequest struct {
	CustomerID     string          `json:"customer_id"`
	TenantID       string          `json:"tenant_id"`
	Amount         decimal.Decimal `json:"amount"`
	Reference      string          `json:"reference,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// RefundRequest claws back points earned on refunded money.
type RefundRequest struct {
	OriginalEntryID string          `json:"original_entry_id"`
	Amount          decimal.Decimal `json:"amount"`
	Reason          string          `json:"reason,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
}

// =============================================================================
// REDEMPTION AND VOUCHERS
// =============================================================================

// RedeemRequest spends points on a reward or a tenant discount.
//
//	{"kind": "reward", "reward_id": "..."}
//	{"kind": "discount", "tenant_id": "...", "discount_amount": "10.00"}
type RedeemRequest struct {
	Kind           string          `json:"kind"`
	RewardID       string          `json:"reward_id,omitempty"`
	TenantID       string          `json:"tenant_id,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// RedemptionDTO is an issued redemption.
type RedemptionDTO struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	RewardID   string          `json:"reward_id,omitempty"`
	CustomerID string          `json:"customer_id"`
	TenantID   string          `json:"tenant_id"`
	Points     int64           `json:"points"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  string          `json:"created_at"`
}

// RedeemResponse is everything a redemption produced.
type RedeemResponse struct {
	Redemption RedemptionDTO `json:"redemption"`
	Voucher    VoucherDTO    `json:"voucher"`
	Entry      EntryDTO      `json:"entry"`
	Balance    BalanceDTO    `json:"balance"`
}

// VoucherDTO is a voucher as shown to customers and tills.
type VoucherDTO struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	RedemptionID string          `json:"redemption_id"`
	CustomerID   string          `json:"customer_id"`
	RewardID     string          `json:"reward_id,omitempty"`
	TenantID     string          `json:"tenant_id"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedAt    string          `json:"created_at"`
	ExpiresAt    string          `json:"expires_at"`
	UsedAt       string          `json:"used_at,omitempty"`
	UsedBy       string          `json:"used_by,omitempty"`
	CancelledAt  string          `json:"cancelled_at,omitempty"`
	ExpiredAt    string          `json:"expired_at,omitempty"`
}

// CancelResponse is the cancelled voucher and its compensating entry.
type CancelResponse struct {
	Voucher VoucherDTO `json:"voucher"`
	Entry   EntryDTO   `json:"entry"`
}

// ScanRequest is a code typed or scanned at a till.
type ScanRequest struct {
	Code string `json:"code"`
}

// =============================================================================
// CATALOG
// =============================================================================

type CustomerDTO struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type RewardDTO struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PointsCost  int64  `json:"points_cost"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// TenantConfigDTO is a tenant's exchange rate and earning limits.
type TenantConfigDTO struct {
	TenantID             string          `json:"tenant_id"`
	PointFaceValue       decimal.Decimal `json:"point_face_value"`
	BasePointsPerPound   decimal.Decimal `json:"base_points_per_pound"`
	MinPurchaseAmount    decimal.Decimal `json:"min_purchase_amount"`
	MaxPointsPerPurchase int64           `json:"max_points_per_purchase"`
	UpdatedAt            string          `json:"updated_at,omitempty"`
}

// =============================================================================
// ERRORS AND SCENARIOS
// =============================================================================

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// Set for insufficient points.
	Required  *int64 `json:"required,omitempty"`
	Available *int64 `json:"available,omitempty"`

	// Set when a voucher can no longer be used.
	VoucherID   string `json:"voucher_id,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	UsedAt      string `json:"used_at,omitempty"`
	CancelledAt string `json:"cancelled_at,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func toBalanceDTO(b loyalty.Balance) BalanceDTO {
	return BalanceDTO{
		CustomerID:    string(b.CustomerID),
		Points:        b.Points,
		Tier:          string(b.Tier),
		PendingPoints: b.PendingPoints,
		PendingCount:  b.PendingCount,
	}
}

func toEntryDTO(e loyalty.Entry) EntryDTO {
	return EntryDTO{
		ID:             string(e.ID),
		CustomerID:     string(e.CustomerID),
		TenantID:       string(e.TenantID),
		Type:           string(e.Type),
		Status:         string(e.Status),
		Points:         e.Points,
		Delta:          e.Delta(),
		Amount:         e.Amount,
		ReferenceID:    e.ReferenceID,
		Reason:         e.Reason,
		IdempotencyKey: e.IdempotencyKey,
		CreatedBy:      e.CreatedBy,
		CreatedAt:      formatTime(e.CreatedAt),
		SettledBy:      e.SettledBy,
		SettledAt:      formatTimePtr(e.SettledAt),
	}
}

func toEntryDTOs(entries []loyalty.Entry) []EntryDTO {
	out := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryDTO(e))
	}
	return out
}

func toRedemptionDTO(r loyalty.Redemption) RedemptionDTO {
	return RedemptionDTO{
		ID:         string(r.ID),
		Kind:       string(r.Kind),
		RewardID:   string(r.RewardID),
		CustomerID: string(r.CustomerID),
		TenantID:   string(r.TenantID),
		Points:     r.Points,
		Amount:     r.Amount,
		CreatedAt:  formatTime(r.CreatedAt),
	}
}

func toVoucherDTO(v loyalty.Voucher) VoucherDTO {
	return VoucherDTO{
		ID:           string(v.ID),
		Code:         v.Code,
		RedemptionID: string(v.RedemptionID),
		CustomerID:   string(v.CustomerID),
		RewardID:     string(v.RewardID),
		TenantID:     string(v.TenantID),
		Status:       string(v.Status),
		Amount:       v.Amount,
		CreatedAt:    formatTime(v.CreatedAt),
		ExpiresAt:    formatTime(v.ExpiresAt),
		UsedAt:       formatTimePtr(v.UsedAt),
		UsedBy:       string(v.UsedBy),
		CancelledAt:  formatTimePtr(v.CancelledAt),
		ExpiredAt:    formatTimePtr(v.ExpiredAt),
	}
}

func toVoucherDTOs(vouchers []loyalty.Voucher) []VoucherDTO {
	out := make([]VoucherDTO, 0, len(vouchers))
	for _, v := range vouchers {
		out = append(out, toVoucherDTO(v))
	}
	return out
}

func toCustomerDTO(c loyalty.Customer) CustomerDTO {
	return CustomerDTO{
		ID:        string(c.ID),
		TenantID:  string(c.TenantID),
		Name:      c.Name,
		Email:     c.Email,
		CreatedAt: formatTime(c.CreatedAt),
	}
}

func toRewardDTO(r loyalty.Reward) RewardDTO {
	return RewardDTO{
		ID:          string(r.ID),
		TenantID:    string(r.TenantID),
		Name:        r.Name,
		Description: r.Description,
		PointsCost:  r.PointsCost,
		Active:      r.Active,
		CreatedAt:   formatTime(r.CreatedAt),
		UpdatedAt:   formatTime(r.UpdatedAt),
	}
}

func toTenantConfigDTO(c loyalty.TenantPointsConfig) TenantConfigDTO {
	return TenantConfigDTO{
		TenantID:             string(c.TenantID),
		PointFaceValue:       c.PointFaceValue,
		BasePointsPerPound:   c.BasePointsPerPound,
		MinPurchaseAmount:    c.MinPurchaseAmount,
		MaxPointsPerPurchase: c.MaxPointsPerPurchase,
		UpdatedAt:            formatTime(c.UpdatedAt),
	}
}
