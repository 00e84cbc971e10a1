package postgresrepo

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/seatswap/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

const maxTxAttempts = 3

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const op = "postgresrepo.Migrate"

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// RunTx runs fn in a READ COMMITTED transaction. Exclusivity is enforced by
// conditional updates and explicit row locks inside fn. Serialization and
// deadlock failures are retried.
func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTxOnce(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}

func (s *Store) runTxOnce(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, txRepos{pool: s.pool, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Listings() repository.Listings           { return &ListingRepo{conn: conn{pool: s.pool}} }
func (s *Store) Reservations() repository.Reservations   { return &ReservationRepo{conn: conn{pool: s.pool}} }
func (s *Store) Orders() repository.Orders               { return &OrderRepo{conn: conn{pool: s.pool}} }
func (s *Store) Payments() repository.Payments           { return &PaymentRepo{conn: conn{pool: s.pool}} }
func (s *Store) Notifications() repository.Notifications { return &NotificationRepo{conn: conn{pool: s.pool}} }
func (s *Store) Events() repository.Events               { return &EventRepo{conn: conn{pool: s.pool}} }
func (s *Store) Members() repository.Members             { return &MemberRepo{conn: conn{pool: s.pool}} }
func (s *Store) Ratings() repository.Ratings             { return &RatingRepo{conn: conn{pool: s.pool}} }
func (s *Store) Stats() repository.Stats                 { return &StatsRepo{conn: conn{pool: s.pool}} }

type txRepos struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (t txRepos) Listings() repository.Listings {
	return (&ListingRepo{conn: conn{pool: t.pool}}).With(t.tx)
}

func (t txRepos) Reservations() repository.Reservations {
	return (&ReservationRepo{conn: conn{pool: t.pool}}).With(t.tx)
}

func (t txRepos) Orders() repository.Orders {
	return (&OrderRepo{conn: conn{pool: t.pool}}).With(t.tx)
}

func (t txRepos) Payments() repository.Payments {
	return (&PaymentRepo{conn: conn{pool: t.pool}}).With(t.tx)
}

func (t txRepos) Notifications() repository.Notifications {
	return (&NotificationRepo{conn: conn{pool: t.pool}}).With(t.tx)
}

func (t txRepos) Events() repository.Events {
	return (&EventRepo{conn: conn{pool: t.pool}}).With(t.tx)
}

func (t txRepos) Members() repository.Members {
	return (&MemberRepo{conn: conn{pool: t.pool}}).With(t.tx)
}

func (t txRepos) Ratings() repository.Ratings {
	return (&RatingRepo{conn: conn{pool: t.pool}}).With(t.tx)
}

func (t txRepos) Stats() repository.Stats {
	return (&StatsRepo{conn: conn{pool: t.pool}}).With(t.tx)
}

// conn is embedded by every repo: a pool plus an optional transaction.
type conn struct {
	pool *pgxpool.Pool
	db   DB
}

func (c conn) handle() DB {
	if c.db != nil {
		return c.db
	}
	return c.pool
}
