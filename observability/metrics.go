package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Outcome classifies an operation result for metrics and spans. Rejected
// means a business rule or client input refused it; error means the
// system failed.
func Outcome(err error, rejected bool) string {
	switch {
	case err == nil:
		return OutcomeOK
	case rejected:
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

// LoyaltyMetrics is the process-wide prometheus collector set.
type LoyaltyMetrics struct {
	operations *prometheus.CounterVec
	vouchers   *prometheus.CounterVec
	spent      *prometheus.CounterVec
	http       *prometheus.HistogramVec
}

var (
	metricsOnce     sync.Once
	metricsRegistry *LoyaltyMetrics
)

// Metrics returns the lazily-initialised metrics registry.
func Metrics() *LoyaltyMetrics {
	metricsOnce.Do(func() {
		metricsRegistry = &LoyaltyMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "points",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Ledger and voucher operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			vouchers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "points",
				Subsystem: "voucher",
				Name:      "transitions_total",
				Help:      "Voucher status transitions segmented by target status.",
			}, []string{"status"}),
			spent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "points",
				Subsystem: "ledger",
				Name:      "points_spent_total",
				Help:      "Points converted into vouchers segmented by issuing tenant.",
			}, []string{"tenant"}),
			http: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "points",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method", "status"}),
		}
		prometheus.MustRegister(
			metricsRegistry.operations,
			metricsRegistry.vouchers,
			metricsRegistry.spent,
			metricsRegistry.http,
		)
	})
	return metricsRegistry
}

func (m *LoyaltyMetrics) ObserveOperation(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *LoyaltyMetrics) VoucherTransition(status string) {
	m.vouchers.WithLabelValues(status).Inc()
}

func (m *LoyaltyMetrics) PointsSpent(tenant string, points int64) {
	m.spent.WithLabelValues(tenant).Add(float64(points))
}

func (m *LoyaltyMetrics) ObserveHTTP(route, method, status string, seconds float64) {
	m.http.WithLabelValues(route, method, status).Observe(seconds)
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
