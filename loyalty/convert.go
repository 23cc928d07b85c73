/*
convert.go - Points <-> currency conversion per tenant

PURPOSE:
  Each tenant decides what a point is worth (face value, spend side) and
  how many points a unit of currency earns (earn rate). Both sides are
  used by the engine:
  - Earn:  purchase amount -> points   (PointsForPurchase, floor)
  - Spend: discount amount -> points   (PointsForCurrency, ceiling)
  - Show:  points -> currency          (CurrencyForPoints, exact)

ROUNDING:
  Earning rounds DOWN to whole points, a customer never receives a
  fraction. Spending rounds UP, a discount never costs less than its face
  value. Currency for points is a straight multiplication: it represents a
  monetary amount and is not rounded.

CORRUPT CONFIGURATION:
  A zero or negative face value would make every discount free (or the
  division meaningless). Conversion fails with a ValidationError instead of
  silently producing a zero-cost redemption.

DEFAULTS:
  Tenants without a stored configuration use face value 0.01 and one point
  per pound. A stored configuration is never patched with defaults: if it
  is corrupt, conversions fail.
*/
package loyalty

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var (
	DefaultPointFaceValue     = decimal.RequireFromString("0.01")
	DefaultBasePointsPerPound = decimal.NewFromInt(1)
)

// TenantPointsConfig is the per-tenant exchange rate.
type TenantPointsConfig struct {
	TenantID TenantID

	// PointFaceValue is the currency worth of one point when spent.
	PointFaceValue decimal.Decimal

	// BasePointsPerPound is the earn rate per unit of currency.
	BasePointsPerPound decimal.Decimal

	// Optional overrides. Zero values disable them.
	MinPurchaseAmount    decimal.Decimal
	MaxPointsPerPurchase int64

	UpdatedAt time.Time
}

// DefaultTenantConfig returns the configuration used when a tenant has none.
func DefaultTenantConfig(tenantID TenantID) TenantPointsConfig {
	return TenantPointsConfig{
		TenantID:           tenantID,
		PointFaceValue:     DefaultPointFaceValue,
		BasePointsPerPound: DefaultBasePointsPerPound,
	}
}

// Validate rejects configurations that would make conversion meaningless.
func (c TenantPointsConfig) Validate() error {
	if !c.PointFaceValue.IsPositive() {
		return invalid("point_face_value", "must be positive, got %s", c.PointFaceValue)
	}
	if c.BasePointsPerPound.IsNegative() {
		return invalid("base_points_per_pound", "must not be negative, got %s", c.BasePointsPerPound)
	}
	if c.MinPurchaseAmount.IsNegative() {
		return invalid("min_purchase_amount", "must not be negative")
	}
	if c.MaxPointsPerPurchase < 0 {
		return invalid("max_points_per_purchase", "must not be negative")
	}
	return nil
}

// PointsForCurrency returns the points required to pay for amount.
// Fails if the face value is unusable or the result is not a positive
// whole number of points.
func (c TenantPointsConfig) PointsForCurrency(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, invalid("amount", "must be positive, got %s", amount)
	}
	if !c.PointFaceValue.IsPositive() {
		return 0, invalid("point_face_value", "tenant %s has unusable face value %s", c.TenantID, c.PointFaceValue)
	}
	points := amount.Div(c.PointFaceValue).Ceil()
	if !points.IsPositive() {
		return 0, invalid("amount", "converts to %s points", points)
	}
	if points.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, invalid("amount", "converts to more points than can be represented")
	}
	return points.IntPart(), nil
}

// CurrencyForPoints returns the monetary worth of points.
func (c TenantPointsConfig) CurrencyForPoints(points int64) decimal.Decimal {
	return c.PointFaceValue.Mul(decimal.NewFromInt(points))
}

// PointsForPurchase returns the points earned by a purchase.
func (c TenantPointsConfig) PointsForPurchase(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, invalid("amount", "purchase amount must not be negative, got %s", amount)
	}
	if c.BasePointsPerPound.IsNegative() {
		return 0, invalid("base_points_per_pound", "tenant %s has negative earn rate", c.TenantID)
	}
	if c.MinPurchaseAmount.IsPositive() && amount.LessThan(c.MinPurchaseAmount) {
		return 0, nil
	}
	points := amount.Mul(c.BasePointsPerPound).Floor()
	if points.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, invalid("amount", "earns more points than can be represented")
	}
	earned := points.IntPart()
	if c.MaxPointsPerPurchase > 0 && earned > c.MaxPointsPerPurchase {
		earned = c.MaxPointsPerPurchase
	}
	return earned, nil
}
