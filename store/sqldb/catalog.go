package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/points-engine/loyalty"
)

// =============================================================================
// CUSTOMERS
// =============================================================================

func (qs *queries) Customer(ctx context.Context, id loyalty.CustomerID) (*loyalty.Customer, error) {
	var (
		c         loyalty.Customer
		createdAt string
	)
	err := qs.queryRow(ctx,
		"SELECT id, tenant_id, name, email, created_at FROM customers WHERE id = ?",
		id,
	).Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCustomer inserts or updates a customer record.
func (qs *queries) SaveCustomer(ctx context.Context, c loyalty.Customer) error {
	_, err := qs.exec(ctx, `
		INSERT INTO customers (id, tenant_id, name, email, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			name = excluded.name,
			email = excluded.email
	`, c.ID, c.TenantID, c.Name, c.Email, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

// =============================================================================
// REWARDS
// =============================================================================

const rewardColumns = "id, tenant_id, name, description, points_cost, active, created_at, updated_at"

func (qs *queries) Reward(ctx context.Context, id loyalty.RewardID) (*loyalty.Reward, error) {
	r, err := scanReward(qs.queryRow(ctx, "SELECT "+rewardColumns+" FROM rewards WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveReward inserts or updates a catalog reward.
func (qs *queries) SaveReward(ctx context.Context, r loyalty.Reward) error {
	_, err := qs.exec(ctx, `
		INSERT INTO rewards (`+rewardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			name = excluded.name,
			description = excluded.description,
			points_cost = excluded.points_cost,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, r.ID, r.TenantID, r.Name, r.Description, r.PointsCost, r.Active,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save reward: %w", err)
	}
	return nil
}

// Rewards lists a tenant's catalog, or every reward when tenantID is empty.
func (qs *queries) Rewards(ctx context.Context, tenantID loyalty.TenantID) ([]loyalty.Reward, error) {
	query := "SELECT " + rewardColumns + " FROM rewards"
	var args []any
	if tenantID != "" {
		query += " WHERE tenant_id = ?"
		args = append(args, tenantID)
	}
	query += " ORDER BY points_cost ASC, id ASC"

	rows, err := qs.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rows.Close()

	var rewards []loyalty.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

func scanReward(row scanner) (loyalty.Reward, error) {
	var (
		r                    loyalty.Reward
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.TenantID, &r.Name, &r.Description, &r.PointsCost, &r.Active, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return r, err
	}
	return r, nil
}

// =============================================================================
// TENANT POINTS CONFIGURATION
// =============================================================================

func (qs *queries) TenantConfig(ctx context.Context, tenantID loyalty.TenantID) (*loyalty.TenantPointsConfig, error) {
	var (
		c                                loyalty.TenantPointsConfig
		faceValue, rate, minPurchase, at string
	)
	err := qs.queryRow(ctx, `
		SELECT tenant_id, point_face_value, base_points_per_pound, min_purchase_amount,
		       max_points_per_purchase, updated_at
		FROM tenant_configs WHERE tenant_id = ?
	`, tenantID).Scan(&c.TenantID, &faceValue, &rate, &minPurchase, &c.MaxPointsPerPurchase, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.PointFaceValue, err = parseDecimal(faceValue); err != nil {
		return nil, err
	}
	if c.BasePointsPerPound, err = parseDecimal(rate); err != nil {
		return nil, err
	}
	if c.MinPurchaseAmount, err = parseDecimal(minPurchase); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(at); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveTenantConfig replaces a tenant's exchange rate.
func (qs *queries) SaveTenantConfig(ctx context.Context, c loyalty.TenantPointsConfig) error {
	_, err := qs.exec(ctx, `
		INSERT INTO tenant_configs (tenant_id, point_face_value, base_points_per_pound,
			min_purchase_amount, max_points_per_purchase, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			point_face_value = excluded.point_face_value,
			base_points_per_pound = excluded.base_points_per_pound,
			min_purchase_amount = excluded.min_purchase_amount,
			max_points_per_purchase = excluded.max_points_per_purchase,
			updated_at = excluded.updated_at
	`, c.TenantID, c.PointFaceValue.String(), c.BasePointsPerPound.String(),
		c.MinPurchaseAmount.String(), c.MaxPointsPerPurchase, formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save tenant config: %w", err)
	}
	return nil
}

// =============================================================================
// RESET (demo scenarios)
// =============================================================================

// Reset deletes all data. Demo and test use only.
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(tx loyalty.Tx) error {
		qs := tx.(*queries)
		// Children first for the foreign keys.
		for _, table := range []string{"vouchers", "ledger_entries", "redemptions", "rewards", "tenant_configs", "customers"} {
			if _, err := qs.exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to reset %s: %w", table, err)
			}
		}
		return nil
	})
}
