// Package redis provides a Repository backed by a Redis server. Each object
// is a JSON string under <prefix>object:<id>; a set under <prefix>objects
// indexes the stored ids.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"carerules/pkg/domain"
)

var _ domain.Repository = (*Store)(nil)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "carerules:"

// Store persists objects in Redis.
type Store struct {
	client *goredis.Client
	prefix string
}

// NewStore connects to the server at url (redis://[user:pass@]host:port/db)
// and verifies the connection. An empty prefix selects DefaultPrefix.
func NewStore(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}, nil
}

// Close releases the client connections.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) objectKey(id string) string { return s.prefix + "object:" + id }
func (s *Store) indexKey() string           { return s.prefix + "objects" }

// Get loads the object stored under id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Object, error) {
	payload, err := s.client.Get(ctx, s.objectKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, domain.PersistenceError{ID: id, Err: fmt.Errorf("get: %w", err)}
	}
	var obj domain.Object
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, domain.PersistenceError{ID: id, Err: fmt.Errorf("decode: %w", err)}
	}
	return &obj, nil
}

// Save writes a detached copy of obj and indexes its id in one transaction.
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
	if _, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.objectKey(obj.ID), payload, 0)
		pipe.SAdd(ctx, s.indexKey(), obj.ID)
		return nil
	}); err != nil {
		return domain.PersistenceError{ID: obj.ID, Err: fmt.Errorf("write: %w", err)}
	}
	return nil
}

// Delete removes the object stored under id.
func (s *Store) Delete(ctx context.Context, id string) error {
	var del *goredis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, s.objectKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
		return nil
	}); err != nil {
		return domain.PersistenceError{ID: id, Err: fmt.Errorf("delete: %w", err)}
	}
	if del.Val() == 0 {
		return domain.NotFoundError{ID: id}
	}
	return nil
}

// List returns every stored object of the given type sorted by id; an empty
// type lists all objects.
func (s *Store) List(ctx context.Context, typ string) ([]*domain.Object, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, domain.PersistenceError{Err: fmt.Errorf("index: %w", err)}
	}
	sort.Strings(ids)
	var out []*domain.Object
	for _, id := range ids {
		obj, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if typ == "" || obj.Type == typ {
			out = append(out, obj)
		}
	}
	return out, nil
}
