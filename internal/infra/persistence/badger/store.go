// Package badger provides a Repository backed by an embedded Badger
// key/value store. Objects are stored detached as JSON under object/<id>.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"carerules/pkg/domain"
)

var _ domain.Repository = (*Store)(nil)

const keyPrefix = "object/"

// Store persists objects in a Badger database.
type Store struct {
	db *badgerdb.DB
}

// Option customises the store.
type Option func(*badgerdb.Options)

// WithLogger routes Badger's internal logging through l.
func WithLogger(l zerolog.Logger) Option {
	return func(o *badgerdb.Options) {
		*o = o.WithLogger(logAdapter{l: l})
	}
}

// NewStore opens the database directory at dir. An empty dir keeps all data
// in memory.
func NewStore(dir string, opts ...Option) (*Store, error) {
	o := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		o = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	for _, opt := range opts {
		opt(&o)
	}
	db, err := badgerdb.Open(o)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

func objectKey(id string) []byte { return []byte(keyPrefix + id) }

// Get loads the object stored under id.
func (s *Store) Get(_ context.Context, id string) (*domain.Object, error) {
	var payload []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(objectKey(id))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, domain.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, domain.PersistenceError{ID: id, Err: fmt.Errorf("read: %w", err)}
	}
	var obj domain.Object
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, domain.PersistenceError{ID: id, Err: fmt.Errorf("decode: %w", err)}
	}
	return &obj, nil
}

// Save writes a detached copy of obj, assigning an id when it has none.
func (s *Store) Save(_ context.Context, obj *domain.Object) error {
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
	if err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(objectKey(obj.ID), payload)
	}); err != nil {
		return domain.PersistenceError{ID: obj.ID, Err: fmt.Errorf("write: %w", err)}
	}
	return nil
}

// Delete removes the object stored under id.
func (s *Store) Delete(_ context.Context, id string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(objectKey(id)); err != nil {
			return err
		}
		return txn.Delete(objectKey(id))
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return domain.NotFoundError{ID: id}
	}
	if err != nil {
		return domain.PersistenceError{ID: id, Err: fmt.Errorf("delete: %w", err)}
	}
	return nil
}

// List returns every stored object of the given type in key order; an empty
// type lists all objects.
func (s *Store) List(_ context.Context, typ string) ([]*domain.Object, error) {
	var out []*domain.Object
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			payload, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var obj domain.Object
			if err := json.Unmarshal(payload, &obj); err != nil {
				return fmt.Errorf("decode %s: %w", strings.TrimPrefix(string(item.Key()), keyPrefix), err)
			}
			if typ == "" || obj.Type == typ {
				out = append(out, &obj)
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.PersistenceError{Err: err}
	}
	return out, nil
}

type logAdapter struct{ l zerolog.Logger }

func (a logAdapter) Errorf(format string, args ...any)   { a.l.Error().Msgf(strings.TrimSpace(format), args...) }
func (a logAdapter) Warningf(format string, args ...any) { a.l.Warn().Msgf(strings.TrimSpace(format), args...) }
func (a logAdapter) Infof(format string, args ...any)    { a.l.Info().Msgf(strings.TrimSpace(format), args...) }
func (a logAdapter) Debugf(format string, args ...any)   { a.l.Debug().Msgf(strings.TrimSpace(format), args...) }
