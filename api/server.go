/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Latency histogram per route pattern
  5. CORS:       Cross-origin requests for the customer app
  6. Auth:       Caller identity on /api routes only

ROUTE GROUPS:
  /healthz              Liveness, pings the database
  /metrics              Prometheus scrape endpoint
  /api/customers/*      Customer ledger, vouchers and redemptions
  /api/vouchers/*       Voucher reads and cancellation
  /api/tenants/*        Catalog and till scans
  /api/admin/*          Admin operations
  /api/scenarios/*      Demo scenarios (when enabled)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Identity middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/points-engine/observability"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	origins := h.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type",
			HeaderCustomerID, HeaderRole, HeaderTenantID},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", observability.Handler())

	auth := h.Auth
	if auth == nil {
		auth = NewAuthenticator("", "")
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		// Customer routes; ownership is checked per handler
		r.Route("/customers/{id}", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Get("/entries", h.GetEntries)
			r.Get("/vouchers", h.GetVouchers)
			r.Post("/receipts", h.SubmitReceipt)
			r.Get("/redemptions", h.GetRedemptions)
			r.Post("/redemptions", h.Redeem)
		})

		r.Route("/vouchers/{id}", func(r chi.Router) {
			r.Get("/", h.GetVoucher)
			r.Post("/cancel", h.CancelVoucher)
		})

		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Get("/rewards", h.ListRewards)
			r.Group(func(r chi.Router) {
				r.Use(RequireRole(RoleStaff, RoleAdmin))
				if h.ScanLimiter != nil {
					r.Use(h.ScanLimiter.Middleware)
				}
				r.Post("/scan", h.ScanVoucher)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin))
			r.Post("/customers", h.RegisterCustomer)
			r.Post("/rewards", h.SaveReward)
			r.Put("/tenants/{tenantID}/config", h.SetTenantConfig)
			r.Post("/purchases", h.RecordPurchase)
			r.Post("/refunds", h.RecordRefund)
			r.Post("/entries/{id}/approve", h.ApproveEntry)
			r.Post("/entries/{id}/reject", h.RejectEntry)
		})

		// Scenario routes (demo data)
		if h.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Use(RequireRole(RoleAdmin))
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}

// metricsMiddleware records request latency labelled by route pattern, so
// path parameters do not explode the label space.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.Metrics().ObserveHTTP(route, r.Method, strconv.Itoa(status), time.Since(start).Seconds())
	})
}
