package loyalty

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/points-engine/events"
	"github.com/warp/points-engine/observability"
)

const (
	DefaultVoucherValidity = 365 * 24 * time.Hour
	DefaultMaxCodeAttempts = 10
)

var tracer = otel.Tracer("github.com/warp/points-engine/loyalty")

// =============================================================================
// ENGINE - Entry point for every ledger and voucher operation
// =============================================================================

// Engine holds the dependencies of the loyalty operations. Every operation
// is request scoped: there is no in-process state besides configuration.
type Engine struct {
	Store   Store
	Configs ConfigSource
	Events  events.Publisher
	Logger  *slog.Logger
	Codes   CodeGenerator

	// Catalog is set when the store also supports reference data writes.
	Catalog CatalogWriter

	// Now is the clock. Tests replace it to move past voucher expiry.
	Now func() time.Time

	// NewID generates record IDs.
	NewID func() string

	VoucherValidity time.Duration
	MaxCodeAttempts int

	// DefaultConfig is used for tenants without stored configuration.
	// TenantID is filled in per lookup.
	DefaultConfig TenantPointsConfig
}

// NewEngine creates an engine with production defaults.
func NewEngine(store Store) *Engine {
	catalog, _ := store.(CatalogWriter)
	return &Engine{
		Catalog:         catalog,
		Store:           store,
		Configs:         store,
		Events:          events.Discard{},
		Logger:          slog.Default(),
		Codes:           RandomCodes(DefaultCodeLength),
		Now:             func() time.Time { return time.Now().UTC() },
		NewID:           uuid.NewString,
		VoucherValidity: DefaultVoucherValidity,
		MaxCodeAttempts: DefaultMaxCodeAttempts,
		DefaultConfig:   DefaultTenantConfig(""),
	}
}

// TenantConfig resolves a tenant's points configuration, falling back to
// the default when none is stored.
func (e *Engine) TenantConfig(ctx context.Context, tenantID TenantID) (TenantPointsConfig, error) {
	cfg, err := e.Configs.TenantConfig(ctx, tenantID)
	if err != nil {
		return TenantPointsConfig{}, err
	}
	if cfg == nil {
		def := e.DefaultConfig
		def.TenantID = tenantID
		return def, nil
	}
	return *cfg, nil
}

func (e *Engine) now() time.Time {
	return e.Now().UTC()
}

// publish emits an event after commit. Failures are logged, never returned:
// the ledger is already consistent.
func (e *Engine) publish(ctx context.Context, eventType events.Type, key string, payload any) {
	ev := events.Event{Type: eventType, Key: key, OccurredAt: e.now(), Payload: payload}
	if err := e.Events.Publish(ctx, ev); err != nil {
		e.Logger.ErrorContext(ctx, "event publish failed", "type", eventType, "key", key, "error", err)
	}
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "loyalty."+name, trace.WithAttributes(attrs...))
}

// endSpan records the outcome on the span and in the operation metrics.
func endSpan(span trace.Span, op string, err error) {
	outcome := observability.Outcome(err, IsClientError(err) || IsNotFound(err))
	observability.Metrics().ObserveOperation(op, outcome)
	if err != nil {
		span.RecordError(err)
		if outcome == observability.OutcomeError {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
