package readthrough

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the part of a pgx connection or pool used by [RowLoader].
// *pgxpool.Pool, *pgx.Conn and pgx.Tx all satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RowLoader returns a loader running sql with the key as its only argument
// ($1) and scanning exactly one row into T by column name (or `db` tag).
//
// No rows maps to [ErrNotFound]; more than one row is an error.
func RowLoader[K comparable, T any](q Querier, sql string) Loader[K, T] {
	return func(ctx context.Context, key K) (T, error) {
		var zero T

		rows, err := q.Query(ctx, sql, key)
		if err != nil {
			return zero, fmt.Errorf("querying row: %w", err)
		}

		v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[T])
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, ErrNotFound
		}

		if err != nil {
			return zero, fmt.Errorf("scanning row: %w", err)
		}

		return v, nil
	}
}

// ConnectPostgres opens a pool for connString and verifies it with a ping.
func ConnectPostgres(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return pool, nil
}
