package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"carerules/internal/assets/store"
	"carerules/pkg/domain"
)

var _ domain.AssetLoader = (*Loader)(nil)

// DefaultExtensions are probed, in order, after the bare name.
var DefaultExtensions = []string{".yaml", ".yml", ".json"}

// Loader resolves data asset names against a Store. Resolved contents are
// cached until Invalidate; a read that overlaps an Invalidate is returned
// but not cached.
type Loader struct {
	store      Store
	extensions []string

	mu    sync.RWMutex
	cache map[string][]byte
	gen   uint64
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithExtensions replaces the probed file extensions.
func WithExtensions(exts ...string) LoaderOption {
	return func(l *Loader) { l.extensions = append([]string(nil), exts...) }
}

// NewLoader constructs a Loader over s.
func NewLoader(s Store, opts ...LoaderOption) *Loader {
	l := &Loader{store: s, extensions: DefaultExtensions, cache: make(map[string][]byte)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadDataAsset returns the raw bytes of the named asset. Unknown names fail
// with domain.AssetNotFoundError. Callers receive their own copy.
func (l *Loader) LoadDataAsset(ctx context.Context, name string) ([]byte, error) {
	if name == "" {
		return nil, domain.AssetNotFoundError{Name: name}
	}
	l.mu.RLock()
	cached, ok := l.cache[name]
	gen := l.gen
	l.mu.RUnlock()
	if ok {
		return bytes.Clone(cached), nil
	}
	for _, key := range l.candidates(name) {
		data, err := l.read(ctx, key)
		if errors.Is(err, store.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load asset %s: %w", name, err)
		}
		l.mu.Lock()
		if l.gen == gen {
			l.cache[name] = data
		}
		l.mu.Unlock()
		return bytes.Clone(data), nil
	}
	return nil, domain.AssetNotFoundError{Name: name}
}

// Invalidate drops cached contents so the next load hits the store.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cache = make(map[string][]byte)
	l.gen++
	l.mu.Unlock()
}

func (l *Loader) candidates(name string) []string {
	out := make([]string, 0, len(l.extensions)+1)
	out = append(out, name)
	for _, ext := range l.extensions {
		out = append(out, name+ext)
	}
	return out
}

func (l *Loader) read(ctx context.Context, key string) (_ []byte, retErr error) {
	_, rc, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil && retErr == nil {
			retErr = cerr
		}
	}()
	return io.ReadAll(rc)
}
