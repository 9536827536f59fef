// Package pg implements the store.Store contract (C1) against PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/devstz/autoposter-node/internal/store"
)

// OpenDB opens a pgx-backed database/sql handle and verifies connectivity.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// pgStore is the Store implementation. It owns the pool and never runs
// outside a transaction once WithinTransaction is entered.
type pgStore struct {
	db *sql.DB
}

type uowKey struct{}

// NewStore wraps an already-open database handle as a store.Store.
func NewStore(db *sql.DB) store.Store {
	return &pgStore{db: db}
}

func (s *pgStore) Close() error {
	return s.db.Close()
}

// WithinTransaction begins a *sql.Tx, builds repositories bound to it, and
// commits on a nil return / rolls back otherwise, per spec §4.1 and §5.
func (s *pgStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, uow store.UnitOfWork) error) error {
	if ctx.Value(uowKey{}) != nil {
		return store.ErrNestedUnitOfWork
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	innerCtx := context.WithValue(ctx, uowKey{}, struct{}{})
	uow := &unitOfWork{tx: tx}

	if err := fn(innerCtx, uow); err != nil {
		return err
	}
	return tx.Commit()
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, letting repository methods
// that bypass optimistic locking run against either handle.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type unitOfWork struct {
	tx *sql.Tx
}

func (u *unitOfWork) Bots() store.BotRepository         { return &botRepo{db: u.tx} }
func (u *unitOfWork) Groups() store.GroupRepository     { return &groupRepo{db: u.tx} }
func (u *unitOfWork) Posts() store.PostRepository       { return &postRepo{db: u.tx} }
func (u *unitOfWork) Attempts() store.AttemptRepository { return &attemptRepo{db: u.tx} }
func (u *unitOfWork) Settings() store.SettingRepository { return &settingRepo{db: u.tx} }
func (u *unitOfWork) Users() store.UserRepository       { return &userRepo{db: u.tx} }
