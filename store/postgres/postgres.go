/*
Package postgres opens the points ledger on PostgreSQL.

PURPOSE:
  Multi-node deployments. The SQL lives in store/sqldb; this package
  supplies the lib/pq driver and the dialect.

ISOLATION:
  Transactions run SERIALIZABLE and redemptions lock the customer row with
  SELECT ... FOR UPDATE, so two concurrent spends of one customer queue up
  instead of both reading the same balance. Serialization failures
  (SQLSTATE 40001) and deadlocks (40P01) re-run the whole transaction.
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/warp/points-engine/store/sqldb"
)

// Dialect is the PostgreSQL flavour of the shared store.
var Dialect = sqldb.Dialect{
	Name:            "postgres",
	NumberedParams:  true,
	TxOptions:       &sql.TxOptions{Isolation: sql.LevelSerializable},
	LockCustomerSQL: "SELECT id FROM customers WHERE id = ? FOR UPDATE",
	UniqueViolation: uniqueViolation,
	Retryable:       retryable,
}

// New connects to PostgreSQL and migrates the schema.
func New(ctx context.Context, dsn string) (*sqldb.Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := sqldb.Open(ctx, db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// uniqueViolation returns the constraint name, e.g. "vouchers_code_key".
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return "", false
	}
	return pqErr.Constraint, true
}

func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
