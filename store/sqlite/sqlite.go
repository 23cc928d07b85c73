/*
Package sqlite opens the points ledger on SQLite.

PURPOSE:
  Development and single-node deployments. The SQL lives in store/sqldb;
  this package supplies the driver, connection settings and dialect.

CONNECTION SETTINGS:
  - _txlock=immediate: every transaction takes the write lock at BEGIN, so
    the balance read and the SPENT insert of a redemption can never
    interleave with another writer
  - _foreign_keys=on: entries and vouchers must reference real rows
  - _journal_mode=WAL: readers don't block the writer
  - MaxOpenConns(1): one connection serializes all access. It also keeps
    ":memory:" databases alive, since each new connection would otherwise
    open a fresh, empty database

USAGE:
  store, err := sqlite.New(ctx, "./data/points.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := loyalty.NewEngine(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/points-engine/store/sqldb"
)

// Dialect is the SQLite flavour of the shared store.
var Dialect = sqldb.Dialect{
	Name:             "sqlite",
	SerializeWriters: true,
	UniqueViolation:  uniqueViolation,
	Retryable:        retryable,
}

// New opens (and migrates) a SQLite database. Use ":memory:" for an
// in-memory database.
func New(ctx context.Context, dbPath string) (*sqldb.Store, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store, err := sqldb.Open(ctx, db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"
}

// uniqueViolation extracts "table.column" from
// "UNIQUE constraint failed: vouchers.code".
func uniqueViolation(err error) (string, bool) {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return "", false
	}
	msg := sqliteErr.Error()
	if i := strings.LastIndex(msg, ":"); i >= 0 {
		return strings.TrimSpace(msg[i+1:]), true
	}
	return msg, true
}

func retryable(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
