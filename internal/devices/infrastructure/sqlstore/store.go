// Package sqlstore persists brands and devices in a SQL database.
// Queries use $N placeholders, which both the pgx and sqlite3 drivers accept.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	devices "devices-api/internal/devices/domain"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements devices.Store on top of database/sql.
type Store struct {
	db *sql.DB
	q  DBTX
}

// NewStore constructs a Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// Brands returns the brand repository bound to the current connection or transaction.
func (s *Store) Brands() devices.BrandRepository {
	return NewBrandRepository(s.q)
}

// Devices returns the device repository bound to the current connection or transaction.
func (s *Store) Devices() devices.DeviceRepository {
	return NewDeviceRepository(s.q)
}

// WithinTx runs fn inside a transaction. Calls on a store that is already
// transactional join the running transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(devices.Store) error) error {
	if s == nil || s.q == nil {
		return errors.New("device store: nil db")
	}
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Store{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
