// Package postgres provides a Repository backed by PostgreSQL through the
// pgx database/sql driver. Objects are stored detached as JSONB payloads.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"carerules/pkg/domain"
)

var _ domain.Repository = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/carerules?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const objectsDDL = `CREATE TABLE IF NOT EXISTS objects (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store persists objects in the objects table.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed repository using dsn (falls back to
// defaultDSN), pings the server and ensures the objects table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, objectsDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure objects table: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// Get loads the object stored under id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Object, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM objects WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, domain.PersistenceError{ID: id, Err: fmt.Errorf("select: %w", err)}
	}
	var obj domain.Object
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, domain.PersistenceError{ID: id, Err: fmt.Errorf("decode: %w", err)}
	}
	return &obj, nil
}

// Save upserts a detached copy of obj inside a transaction, assigning an id
// when it has none.
func (s *Store) Save(ctx context.Context, obj *domain.Object) (retErr error) {
	if obj == nil {
		return domain.PersistenceError{Err: errors.New("object is nil")}
	}
	if obj.Type == "" {
		return domain.PersistenceError{ID: obj.ID, Err: errors.New("object type missing")}
	}
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}
	payload, err := json.Marshal(obj.Detach())
	if err != nil {
		return domain.PersistenceError{ID: obj.ID, Err: fmt.Errorf("encode: %w", err)}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.PersistenceError{ID: obj.ID, Err: fmt.Errorf("begin: %w", err)}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO objects (id, type, payload) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type, payload = EXCLUDED.payload, updated_at = now()`,
		obj.ID, obj.Type, payload); err != nil {
		return domain.PersistenceError{ID: obj.ID, Err: fmt.Errorf("upsert: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return domain.PersistenceError{ID: obj.ID, Err: fmt.Errorf("commit: %w", err)}
	}
	committed = true
	return nil
}

// Delete removes the object stored under id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE id = $1`, id)
	if err != nil {
		return domain.PersistenceError{ID: id, Err: fmt.Errorf("delete: %w", err)}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NotFoundError{ID: id}
	}
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
