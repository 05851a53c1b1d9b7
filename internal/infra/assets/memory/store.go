// Package memory implements an in-memory asset Store for tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"carerules/internal/assets/store"
)

type entry struct {
	info store.Info
	data []byte
}

// Store implements store.Store backed by process memory.
type Store struct {
	mu   sync.RWMutex
	objs map[string]entry
	now  func() time.Time
}

// New returns an in-memory asset store.
func New() *Store {
	return &Store{objs: make(map[string]entry), now: func() time.Time { return time.Now().UTC() }}
}

// Driver returns the driver identifier.
func (s *Store) Driver() store.Driver { return store.DriverMemory }

// Put stores a new blob; errors if key exists.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts store.PutOptions) (store.Info, error) {
	if strings.TrimSpace(key) == "" {
		return store.Info{}, fmt.Errorf("empty key")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return store.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return store.Info{}, fmt.Errorf("asset %s: %w", key, store.ErrExists)
	}
	info := store.Info{Key: key, Size: int64(len(b)), ContentType: opts.ContentType, Metadata: store.CloneMetadata(opts.Metadata), LastModified: s.now()}
	s.objs[key] = entry{info: info, data: b}
	return info, nil
}

// Get returns metadata and a reader over a copy of the content.
func (s *Store) Get(_ context.Context, key string) (store.Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return store.Info{}, nil, fmt.Errorf("asset %s: %w", key, store.ErrNotExist)
	}
	data := bytes.Clone(obj.data)
	info := obj.info
	info.Metadata = store.CloneMetadata(info.Metadata)
	return info, io.NopCloser(bytes.NewReader(data)), nil
}

// Head returns metadata only.
func (s *Store) Head(_ context.Context, key string) (store.Info, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return store.Info{}, fmt.Errorf("asset %s: %w", key, store.ErrNotExist)
	}
	info := obj.info
	info.Metadata = store.CloneMetadata(info.Metadata)
	return info, nil
}

// Delete removes the blob returning true if it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	if ok {
		delete(s.objs, key)
	}
	return ok, nil
}

// List returns all blobs matching prefix.
func (s *Store) List(_ context.Context, prefix string) ([]store.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Info, 0, len(s.objs))
	for k, v := range s.objs {
		if strings.HasPrefix(k, prefix) {
			inf := v.info
			inf.Metadata = store.CloneMetadata(inf.Metadata)
			out = append(out, inf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
