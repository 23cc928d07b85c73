package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/points-engine/loyalty"
)

// =============================================================================
// REDEMPTIONS
// =============================================================================

func (qs *queries) CreateRedemption(ctx context.Context, r loyalty.Redemption) error {
	_, err := qs.exec(ctx, `
		INSERT INTO redemptions (id, kind, reward_id, customer_id, tenant_id, points, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Kind, nullString(string(r.RewardID)), r.CustomerID, r.TenantID, r.Points,
		r.Amount.String(), formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create redemption: %w", err)
	}
	return nil
}

const redemptionColumns = `id, kind, reward_id, customer_id, tenant_id, points, amount, created_at`

func (qs *queries) Redemption(ctx context.Context, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	row := qs.queryRow(ctx, "SELECT "+redemptionColumns+" FROM redemptions WHERE id = ?", id)
	r, err := scanRedemption(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RedemptionsByCustomer returns a customer's redemptions, oldest first.
func (qs *queries) RedemptionsByCustomer(ctx context.Context, customerID loyalty.CustomerID) ([]loyalty.Redemption, error) {
	rows, err := qs.query(ctx,
		"SELECT "+redemptionColumns+" FROM redemptions WHERE customer_id = ? ORDER BY created_at ASC, id ASC",
		customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemptions: %w", err)
	}
	defer rows.Close()

	var out []loyalty.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRedemption(row scanner) (loyalty.Redemption, error) {
	var (
		r                 loyalty.Redemption
		rewardID          sql.NullString
		amount, createdAt string
	)
	err := row.Scan(&r.ID, &r.Kind, &rewardID, &r.CustomerID, &r.TenantID, &r.Points, &amount, &createdAt)
	if err != nil {
		return r, err
	}
	r.RewardID = loyalty.RewardID(rewardID.String)
	if r.Amount, err = parseDecimal(amount); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	return r, nil
}

// =============================================================================
// VOUCHERS
// =============================================================================

const voucherColumns = `id, code, redemption_id, customer_id, reward_id, tenant_id, status, amount,
	created_at, expires_at, used_at, used_by, cancelled_at, expired_at`

func (qs *queries) CreateVoucher(ctx context.Context, v loyalty.Voucher) error {
	_, err := qs.exec(ctx, `
		INSERT INTO vouchers (`+voucherColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.ID,
		v.Code,
		v.RedemptionID,
		v.CustomerID,
		nullString(string(v.RewardID)),
		v.TenantID,
		v.Status,
		v.Amount.String(),
		formatTime(v.CreatedAt),
		formatTime(v.ExpiresAt),
		nullTime(v.UsedAt),
		nullString(string(v.UsedBy)),
		nullTime(v.CancelledAt),
		nullTime(v.ExpiredAt),
	)
	if err != nil {
		if mapped := qs.uniqueErr(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create voucher: %w", err)
	}
	return nil
}

func (qs *queries) Voucher(ctx context.Context, id loyalty.VoucherID) (*loyalty.Voucher, error) {
	return qs.oneVoucher(ctx, "SELECT "+voucherColumns+" FROM vouchers WHERE id = ?", id)
}

// VoucherByCode looks a voucher up by its normalized code.
func (qs *queries) VoucherByCode(ctx context.Context, code string) (*loyalty.Voucher, error) {
	return qs.oneVoucher(ctx, "SELECT "+voucherColumns+" FROM vouchers WHERE code = ?", code)
}

func (qs *queries) VoucherCodeExists(ctx context.Context, code string) (bool, error) {
	var count int
	err := qs.queryRow(ctx, "SELECT COUNT(*) FROM vouchers WHERE code = ?", code).Scan(&count)
	return count > 0, err
}

func (qs *queries) VouchersByCustomer(ctx context.Context, customerID loyalty.CustomerID) ([]loyalty.Voucher, error) {
	rows, err := qs.query(ctx,
		"SELECT "+voucherColumns+" FROM vouchers WHERE customer_id = ? ORDER BY created_at ASC, id ASC",
		customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []loyalty.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

// TransitionVoucher applies a guarded status change. It returns false when
// the voucher is no longer in t.From (or, with t.Unexpired, has reached its
// expiry instant).
func (qs *queries) TransitionVoucher(ctx context.Context, t loyalty.VoucherTransition) (bool, error) {
	var stampColumn string
	switch t.To {
	case loyalty.VoucherUsed:
		stampColumn = "used_at"
	case loyalty.VoucherExpired:
		stampColumn = "expired_at"
	case loyalty.VoucherCancelled:
		stampColumn = "cancelled_at"
	default:
		return false, fmt.Errorf("invalid voucher transition %s -> %s", t.From, t.To)
	}

	at := formatTime(t.At)
	query := "UPDATE vouchers SET status = ?, " + stampColumn + " = ?"
	args := []any{t.To, at}
	if t.To == loyalty.VoucherUsed {
		query += ", used_by = ?"
		args = append(args, nullString(string(t.Tenant)))
	}
	query += " WHERE id = ? AND status = ?"
	args = append(args, t.ID, t.From)
	if t.Unexpired {
		query += " AND expires_at > ?"
		args = append(args, at)
	}

	res, err := qs.exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition voucher: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (qs *queries) oneVoucher(ctx context.Context, query string, arg any) (*loyalty.Voucher, error) {
	v, err := scanVoucher(qs.queryRow(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanVoucher(row scanner) (loyalty.Voucher, error) {
	var (
		v                    loyalty.Voucher
		rewardID, usedBy     sql.NullString
		amount               string
		createdAt, expiresAt string
		usedAt, cancelledAt  sql.NullString
		expiredAt            sql.NullString
	)
	err := row.Scan(
		&v.ID, &v.Code, &v.RedemptionID, &v.CustomerID, &rewardID, &v.TenantID, &v.Status, &amount,
		&createdAt, &expiresAt, &usedAt, &usedBy, &cancelledAt, &expiredAt,
	)
	if err != nil {
		return v, err
	}

	v.RewardID = loyalty.RewardID(rewardID.String)
	v.UsedBy = loyalty.TenantID(usedBy.String)
	if v.Amount, err = parseDecimal(amount); err != nil {
		return v, err
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return v, err
	}
	if v.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return v, err
	}
	if v.UsedAt, err = parseNullTime(usedAt); err != nil {
		return v, err
	}
	if v.CancelledAt, err = parseNullTime(cancelledAt); err != nil {
		return v, err
	}
	if v.ExpiredAt, err = parseNullTime(expiredAt); err != nil {
		return v, err
	}
	return v, nil
}
