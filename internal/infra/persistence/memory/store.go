// Package memory provides an in-memory Repository used for tests and
// ephemeral hosts.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"carerules/pkg/domain"
)

// Compile-time contract assertion ensuring Store adheres to the repository capability.
var _ domain.Repository = (*Store)(nil)

// Store keeps detached copies of saved objects keyed by id.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*domain.Object
	newID   func() string
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		objects: make(map[string]*domain.Object),
		newID:   uuid.NewString,
	}
}

// Get returns a copy of the stored object. Loaded references are never
// returned; callers hydrate through the repository again.
func (s *Store) Get(_ context.Context, id string) (*domain.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, domain.NotFoundError{ID: id}
	}
	return obj.Clone(), nil
}

// Save stores a detached copy of obj, assigning an id when it has none.
func (s *Store) Save(_ context.Context, obj *domain.Object) error {
	if obj == nil {
		return domain.PersistenceError{Err: errNilObject}
	}
	if obj.Type == "" {
		return domain.PersistenceError{ID: obj.ID, Err: errMissingType}
	}
	if obj.ID == "" {
		obj.ID = s.newID()
	}
	stored := obj.Detach()
	s.mu.Lock()
	s.objects[obj.ID] = stored
	s.mu.Unlock()
	return nil
}

// Delete removes an object; deleting an unknown id reports NotFound.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; !ok {
		return domain.NotFoundError{ID: id}
	}
	delete(s.objects, id)
	return nil
}

// List returns copies of every stored object sorted by id.
func (s *Store) List(_ context.Context) ([]*domain.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Object, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, obj.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len reports how many objects are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
