package loyalty

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// CATALOG ADMINISTRATION
// =============================================================================

// CatalogWriter persists reference data: customers, rewards and tenant
// exchange rates. None of it is ledger data.
type CatalogWriter interface {
	SaveCustomer(ctx context.Context, c Customer) error
	SaveReward(ctx context.Context, r Reward) error
	Rewards(ctx context.Context, tenantID TenantID) ([]Reward, error)
	SaveTenantConfig(ctx context.Context, c TenantPointsConfig) error
}

// configInvalidator is implemented by caching config sources.
type configInvalidator interface {
	Invalidate(ctx context.Context, tenantID TenantID) error
	InvalidateAll(ctx context.Context) error
}

func (e *Engine) catalog() (CatalogWriter, error) {
	if e.Catalog == nil {
		return nil, fmt.Errorf("catalog administration not configured")
	}
	return e.Catalog, nil
}

// RegisterCustomer creates or updates a customer record. CreatedAt is kept
// from the existing record.
func (e *Engine) RegisterCustomer(ctx context.Context, c Customer) (Customer, error) {
	cat, err := e.catalog()
	if err != nil {
		return Customer{}, err
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.ID == "" {
		return Customer{}, invalid("id", "required")
	}
	if c.TenantID == "" {
		return Customer{}, invalid("tenant_id", "required")
	}
	if c.Name == "" {
		return Customer{}, invalid("name", "required")
	}

	existing, err := e.Store.Customer(ctx, c.ID)
	if err != nil {
		return Customer{}, fmt.Errorf("load customer: %w", err)
	}
	if existing != nil {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = e.now()
	}
	if err := cat.SaveCustomer(ctx, c); err != nil {
		return Customer{}, err
	}
	e.Logger.InfoContext(ctx, "customer saved", "customer_id", c.ID, "tenant_id", c.TenantID)
	return c, nil
}

// SaveReward creates or updates a catalog reward.
func (e *Engine) SaveReward(ctx context.Context, r Reward) (Reward, error) {
	cat, err := e.catalog()
	if err != nil {
		return Reward{}, err
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.ID == "" {
		r.ID = RewardID(e.NewID())
	}
	if r.TenantID == "" {
		return Reward{}, invalid("tenant_id", "required")
	}
	if r.Name == "" {
		return Reward{}, invalid("name", "required")
	}
	if r.PointsCost <= 0 {
		return Reward{}, invalid("points_cost", "must be positive, got %d", r.PointsCost)
	}

	existing, err := e.Store.Reward(ctx, r.ID)
	if err != nil {
		return Reward{}, fmt.Errorf("load reward: %w", err)
	}
	now := e.now()
	r.CreatedAt, r.UpdatedAt = now, now
	if existing != nil {
		if existing.TenantID != r.TenantID {
			return Reward{}, invalid("tenant_id", "reward %s belongs to tenant %s", r.ID, existing.TenantID)
		}
		r.CreatedAt = existing.CreatedAt
	}
	if err := cat.SaveReward(ctx, r); err != nil {
		return Reward{}, err
	}
	e.Logger.InfoContext(ctx, "reward saved", "reward_id", r.ID, "tenant_id", r.TenantID, "points_cost", r.PointsCost)
	return r, nil
}

// Rewards lists a tenant's rewards, or all rewards for an empty tenant.
func (e *Engine) Rewards(ctx context.Context, tenantID TenantID) ([]Reward, error) {
	cat, err := e.catalog()
	if err != nil {
		return nil, err
	}
	return cat.Rewards(ctx, tenantID)
}

// SetTenantConfig stores a tenant's exchange rate. Corrupt rates are
// refused here so conversions never see them.
func (e *Engine) SetTenantConfig(ctx context.Context, c TenantPointsConfig) (TenantPointsConfig, error) {
	cat, err := e.catalog()
	if err != nil {
		return TenantPointsConfig{}, err
	}
	if c.TenantID == "" {
		return TenantPointsConfig{}, invalid("tenant_id", "required")
	}
	if err := c.Validate(); err != nil {
		return TenantPointsConfig{}, err
	}
	c.UpdatedAt = e.now()
	if err := cat.SaveTenantConfig(ctx, c); err != nil {
		return TenantPointsConfig{}, err
	}
	if inv, ok := e.Configs.(configInvalidator); ok {
		if err := inv.Invalidate(ctx, c.TenantID); err != nil {
			e.Logger.WarnContext(ctx, "tenant config cache invalidation failed", "tenant_id", c.TenantID, "error", err)
		}
	}
	e.Logger.InfoContext(ctx, "tenant config saved",
		"tenant_id", c.TenantID, "point_face_value", c.PointFaceValue, "base_points_per_pound", c.BasePointsPerPound)
	return c, nil
}

// InvalidateTenantConfigs drops all cached tenant configuration. Call it
// after the store is wiped so no conversion prices with a deleted rate.
func (e *Engine) InvalidateTenantConfigs(ctx context.Context) error {
	inv, ok := e.Configs.(configInvalidator)
	if !ok {
		return nil
	}
	if err := inv.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("failed to invalidate tenant config cache: %w", err)
	}
	return nil
}
