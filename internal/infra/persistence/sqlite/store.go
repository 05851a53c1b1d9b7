// Package sqlite provides a Repository backed by an embedded SQLite file.
// Objects are stored detached, one JSON payload per row.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"carerules/pkg/domain"
)

var _ domain.Repository = (*Store)(nil)

const defaultPath = "carerules.db"

// Store persists objects in the objects table.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database file at path and ensures the
// schema exists. ":memory:" opens a private in-memory database.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS objects (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create objects table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get loads the object stored under id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Object, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM objects WHERE id = ?`, id).Scan(&payload)
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

// Save upserts a detached copy of obj, assigning an id when it has none.
func (s *Store) Save(ctx context.Context, obj *domain.Object) error {
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
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO objects(id, type, payload) VALUES(?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET type = excluded.type, payload = excluded.payload`,
		obj.ID, obj.Type, payload); err != nil {
		return domain.PersistenceError{ID: obj.ID, Err: fmt.Errorf("upsert: %w", err)}
	}
	return nil
}

// Delete removes the object stored under id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id)
	if err != nil {
		return domain.PersistenceError{ID: id, Err: fmt.Errorf("delete: %w", err)}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NotFoundError{ID: id}
	}
	return nil
}

// List returns every stored object of the given type sorted by id; an empty
// type lists all objects.
func (s *Store) List(ctx context.Context, typ string) (_ []*domain.Object, retErr error) {
	query := `SELECT payload FROM objects ORDER BY id`
	var args []any
	if typ != "" {
		query = `SELECT payload FROM objects WHERE type = ? ORDER BY id`
		args = append(args, typ)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.PersistenceError{Err: fmt.Errorf("select: %w", err)}
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && retErr == nil {
			retErr = domain.PersistenceError{Err: cerr}
		}
	}()
	var out []*domain.Object
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, domain.PersistenceError{Err: fmt.Errorf("scan: %w", err)}
		}
		var obj domain.Object
		if err := json.Unmarshal(payload, &obj); err != nil {
			return nil, domain.PersistenceError{Err: fmt.Errorf("decode: %w", err)}
		}
		out = append(out, &obj)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.PersistenceError{Err: err}
	}
	return out, nil
}
