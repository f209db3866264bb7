package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrNoCoverage is returned when no materialized shift covers the
	// queried instant. Callers must treat it as "no on-call coverage", an
	// operational condition, never a silent default.
	ErrNoCoverage = errors.New("no on-call coverage")
	// ErrConflict is returned when an optimistic incident advance lost the
	// race against a concurrent scan. The winner already achieved the
	// intended effect, so callers drop it.
	ErrConflict = errors.New("concurrent advance conflict")
)

type DB struct {
	Pool *pgxpool.Pool
}

func New(dsn string) (*DB, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	d.Pool.Close()
}
