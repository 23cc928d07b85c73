/*
handlers.go - HTTP API handlers for the points engine

PURPOSE:
  Exposes the loyalty engine via REST API. Handles HTTP request/response,
  JSON serialization and caller authorization, and delegates every rule to
  the engine.

ENDPOINTS:
  Customers (owner or admin):
    GET    /api/customers/{id}/balance      Balance, tier, pending points
    GET    /api/customers/{id}/entries      Ledger history
    GET    /api/customers/{id}/vouchers     Vouchers (lazy expiry applied)
    POST   /api/customers/{id}/receipts     Submit purchase evidence
    POST   /api/customers/{id}/redemptions  Redeem a reward or discount

  Vouchers (owner or admin):
    GET    /api/vouchers/{id}               Voucher (lazy expiry applied)
    POST   /api/vouchers/{id}/cancel        Cancel and restore points

  Tenants:
    GET    /api/tenants/{tenantID}/rewards  Reward catalog
    POST   /api/tenants/{tenantID}/scan     Redeem a code at a till (staff)

  Admin:
    POST   /api/admin/customers             Register a customer
    POST   /api/admin/rewards               Create/update a reward
    PUT    /api/admin/tenants/{tenantID}/config  Set exchange rate
    POST   /api/admin/purchases             Record purchase earning
    POST   /api/admin/refunds               Record refund clawback
    POST   /api/admin/entries/{id}/approve  Approve pending receipt
    POST   /api/admin/entries/{id}/reject   Reject pending receipt

  Scenarios (dev only):
    GET    /api/scenarios                   List demo scenarios
    POST   /api/scenarios/load              Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Caller may not act on the resource, cross-tenant scan
  - 404: Resource not found (also for other customers' vouchers)
  - 409: Used/expired/cancelled voucher, duplicate idempotency key,
         settled entry, inactive reward
  - 422: Insufficient points (body carries required/available)
  - 429: Scan rate limit
  - 503: Voucher code space exhausted, database unavailable
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Identity and authorization rules
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/warp/points-engine/loyalty"
	"github.com/warp/points-engine/store/sqldb"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *loyalty.Engine
	Store  *sqldb.Store
	Logger *slog.Logger

	Auth        *Authenticator
	ScanLimiter *TenantLimiter // nil disables scan throttling

	AllowedOrigins []string

	// EnableScenarios mounts the demo data endpoints.
	EnableScenarios bool

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler trusting gateway identity headers.
func NewHandler(engine *loyalty.Engine, store *sqldb.Store) *Handler {
	return &Handler{
		Engine: engine,
		Store:  store,
		Logger: slog.Default(),
		Auth:   NewAuthenticator("", ""),
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"dialect": h.Store.Dialect(),
	})
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// customerID returns the {id} route parameter if the caller may act for it.
func (h *Handler) customerID(w http.ResponseWriter, r *http.Request) (loyalty.CustomerID, Identity, bool) {
	id := chi.URLParam(r, "id")
	caller, _ := IdentityFrom(r.Context())
	if !canActFor(caller, id) {
		writeError(w, http.StatusForbidden, "Forbidden", errors.New("not your account"))
		return "", caller, false
	}
	return loyalty.CustomerID(id), caller, true
}

// GetBalance returns the derived balance of a customer.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	customerID, _, ok := h.customerID(w, r)
	if !ok {
		return
	}
	balance, err := h.Engine.Balance(r.Context(), customerID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// GetEntries returns the ledger of a customer, oldest first.
func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	customerID, _, ok := h.customerID(w, r)
	if !ok {
		return
	}
	entries, err := h.Engine.Entries(r.Context(), customerID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// GetVouchers lists a customer's vouchers with due expiries applied.
func (h *Handler) GetVouchers(w http.ResponseWriter, r *http.Request) {
	customerID, _, ok := h.customerID(w, r)
	if !ok {
		return
	}
	vouchers, err := h.Engine.CustomerVouchers(r.Context(), customerID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVoucherDTOs(vouchers))
}

// GetRedemptions returns the customer's redemption history.
func (h *Handler) GetRedemptions(w http.ResponseWriter, r *http.Request) {
	customerID, _, ok := h.customerID(w, r)
	if !ok {
		return
	}
	redemptions, err := h.Engine.CustomerRedemptions(r.Context(), customerID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	out := make([]RedemptionDTO, 0, len(redemptions))
	for _, red := range redemptions {
		out = append(out, toRedemptionDTO(red))
	}
	writeJSON(w, http.StatusOK, out)
}

// SubmitReceipt records purchase evidence as a PENDING entry.
func (h *Handler) SubmitReceipt(w http.ResponseWriter, r *http.Request) {
	customerID, _, ok := h.customerID(w, r)
	if !ok {
		return
	}
	var req ReceiptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.Engine.SubmitReceipt(r.Context(), loyalty.ReceiptRequest{
		CustomerID:     customerID,
		TenantID:       loyalty.TenantID(req.TenantID),
		Amount:         req.Amount,
		ReceiptRef:     req.ReceiptRef,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// Redeem spends points and issues a voucher.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	customerID, _, ok := h.customerID(w, r)
	if !ok {
		return
	}
	var req RedeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.Engine.Redeem(r.Context(), loyalty.RedeemRequest{
		Kind:           loyalty.RedeemKind(strings.ToLower(req.Kind)),
		CustomerID:     customerID,
		RewardID:       loyalty.RewardID(req.RewardID),
		TenantID:       loyalty.TenantID(req.TenantID),
		DiscountAmount: req.DiscountAmount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RedeemResponse{
		Redemption: toRedemptionDTO(res.Redemption),
		Voucher:    toVoucherDTO(res.Voucher),
		Entry:      toEntryDTO(res.Entry),
		Balance:    toBalanceDTO(res.Balance),
	})
}

// =============================================================================
// VOUCHER HANDLERS
// =============================================================================

// GetVoucher returns one voucher. Other customers' vouchers look missing.
func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	v, err := h.Engine.Voucher(r.Context(), loyalty.VoucherID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if !canActFor(caller, string(v.CustomerID)) {
		writeError(w, http.StatusNotFound, "Voucher not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toVoucherDTO(v))
}

// CancelVoucher cancels an active voucher and restores its points.
func (h *Handler) CancelVoucher(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	req := loyalty.CancelRequest{
		VoucherID: loyalty.VoucherID(chi.URLParam(r, "id")),
		Actor:     caller.Subject,
	}
	switch caller.Role {
	case RoleAdmin:
	case RoleCustomer:
		req.CustomerID = loyalty.CustomerID(caller.Subject)
	default:
		writeError(w, http.StatusForbidden, "Forbidden", errors.New("only the owner or an admin can cancel"))
		return
	}
	res, err := h.Engine.CancelRedemption(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{
		Voucher: toVoucherDTO(res.Voucher),
		Entry:   toEntryDTO(res.Entry),
	})
}

// =============================================================================
// TENANT HANDLERS
// =============================================================================

// ListRewards returns a tenant's reward catalog.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.Engine.Rewards(r.Context(), loyalty.TenantID(chi.URLParam(r, "tenantID")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	out := make([]RewardDTO, 0, len(rewards))
	for _, reward := range rewards {
		out = append(out, toRewardDTO(reward))
	}
	writeJSON(w, http.StatusOK, out)
}

// ScanVoucher redeems a code at the tenant's till.
func (h *Handler) ScanVoucher(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	caller, _ := IdentityFrom(r.Context())
	if !canScanFor(caller, tenantID) {
		writeError(w, http.StatusForbidden, "Forbidden", errors.New("staff can only scan for their own tenant"))
		return
	}
	var req ScanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := h.Engine.RedeemVoucherCode(r.Context(), req.Code, loyalty.TenantID(tenantID))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVoucherDTO(v))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RegisterCustomer creates or updates a customer record.
func (h *Handler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Engine.RegisterCustomer(r.Context(), loyalty.Customer{
		ID:       loyalty.CustomerID(req.ID),
		TenantID: loyalty.TenantID(req.TenantID),
		Name:     req.Name,
		Email:    req.Email,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(c))
}

// SaveReward creates or updates a catalog reward.
func (h *Handler) SaveReward(w http.ResponseWriter, r *http.Request) {
	var req RewardDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	reward, err := h.Engine.SaveReward(r.Context(), loyalty.Reward{
		ID:          loyalty.RewardID(req.ID),
		TenantID:    loyalty.TenantID(req.TenantID),
		Name:        req.Name,
		Description: req.Description,
		PointsCost:  req.PointsCost,
		Active:      req.Active,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardDTO(reward))
}

// SetTenantConfig replaces a tenant's exchange rate.
func (h *Handler) SetTenantConfig(w http.ResponseWriter, r *http.Request) {
	var req TenantConfigDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := h.Engine.SetTenantConfig(r.Context(), loyalty.TenantPointsConfig{
		TenantID:             loyalty.TenantID(chi.URLParam(r, "tenantID")),
		PointFaceValue:       req.PointFaceValue,
		BasePointsPerPound:   req.BasePointsPerPound,
		MinPurchaseAmount:    req.MinPurchaseAmount,
		MaxPointsPerPurchase: req.MaxPointsPerPurchase,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantConfigDTO(cfg))
}

// RecordPurchase credits points for a completed purchase.
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	var req PurchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.Engine.RecordPurchase(r.Context(), loyalty.PurchaseRequest{
		CustomerID:     loyalty.CustomerID(req.CustomerID),
		TenantID:       loyalty.TenantID(req.TenantID),
		Amount:         req.Amount,
		Reference:      req.Reference,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          caller.Subject,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// RecordRefund claws back the points earned on refunded money.
func (h *Handler) RecordRefund(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	var req RefundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.Engine.RecordRefund(r.Context(), loyalty.RefundRequest{
		OriginalEntryID: loyalty.EntryID(req.OriginalEntryID),
		Amount:          req.Amount,
		Reason:          req.Reason,
		IdempotencyKey:  req.IdempotencyKey,
		Actor:           caller.Subject,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

func (h *Handler) ApproveEntry(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	entry, err := h.Engine.ApproveEntry(r.Context(), loyalty.EntryID(chi.URLParam(r, "id")), caller.Subject)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

func (h *Handler) RejectEntry(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	entry, err := h.Engine.RejectEntry(r.Context(), loyalty.EntryID(chi.URLParam(r, "id")), caller.Subject)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, loyalty.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, loyalty.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, loyalty.ErrInsufficientPoints):
		return http.StatusUnprocessableEntity
	case errors.Is(err, loyalty.ErrTenantMismatch):
		return http.StatusForbidden
	case errors.Is(err, loyalty.ErrCodeGenerationExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, loyalty.ErrRewardInactive), loyalty.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger().ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}
	var insufficient *loyalty.InsufficientPointsError
	if errors.As(err, &insufficient) {
		resp.Error = "Insufficient points"
		resp.Required = &insufficient.Required
		resp.Available = &insufficient.Available
	}
	var (
		expired   *loyalty.ExpiredError
		used      *loyalty.AlreadyUsedError
		cancelled *loyalty.CancelledError
	)
	switch {
	case errors.As(err, &expired):
		resp.VoucherID = string(expired.VoucherID)
		resp.ExpiresAt = formatTime(expired.ExpiresAt)
	case errors.As(err, &used):
		resp.VoucherID = string(used.VoucherID)
		resp.UsedAt = formatTimePtr(used.UsedAt)
	case errors.As(err, &cancelled):
		resp.VoucherID = string(cancelled.VoucherID)
		resp.CancelledAt = formatTimePtr(cancelled.CancelledAt)
	}
	if status == http.StatusInternalServerError {
		resp.Details = ""
	}
	writeJSON(w, status, resp)
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
