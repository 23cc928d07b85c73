package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogging_RenamesKeysAndAddsService(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogging(LogConfig{Service: "points-engine", Env: "test", Level: "debug"}, &buf)
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))) })

	logger.Debug("voucher used", "voucher_id", "v-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "voucher used", line["message"])
	assert.Equal(t, "DEBUG", line["severity"])
	assert.Equal(t, "points-engine", line["service"])
	assert.Equal(t, "test", line["env"])
	assert.Equal(t, "v-1", line["voucher_id"])
	assert.Contains(t, line, "timestamp")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, Outcome(nil, false))
	assert.Equal(t, OutcomeRejected, Outcome(errors.New("insufficient"), true))
	assert.Equal(t, OutcomeError, Outcome(errors.New("db down"), false))
}

func TestMetrics_IsSingleton(t *testing.T) {
	m := Metrics()
	assert.Same(t, m, Metrics())

	m.ObserveOperation("redeem", OutcomeOK)
	m.VoucherTransition("used")
	m.PointsSpent("tenant-a", 500)
	m.ObserveHTTP("/api/vouchers/{id}", "GET", "200", 0.01)
}

func TestSetupTracing_DisabledIsNoop(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTracing_RequiresServiceName(t *testing.T) {
	_, err := SetupTracing(context.Background(), TracingConfig{Enabled: true})
	assert.Error(t, err)
}
