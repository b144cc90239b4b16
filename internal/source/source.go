// Package source provides the value sources reference tokens resolve against
// and the registry that maps token prefixes to sources.
//
// Every source receives the full token string, prefix and modifiers included,
// and interprets it itself. Most sources only care about token.Path():
//
//	env:HOME@upper      -> Env looks up HOME
//	file:secrets/db     -> File reads <base>/secrets/db
//	kv:/prod/db/host    -> KV reads key /prod/db/host from the sqlite store
//	age:secrets/api     -> Age decrypts <base>/secrets/api.age
//
// A source reports "no value" with found=false and a nil error. Errors are
// reserved for failures the caller should see (I/O errors, decryption
// failures, paths escaping a base directory).
package source

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/roach88/configur8/internal/token"
)

// Source fetches values for tokens carrying its prefix.
type Source interface {
	// Prefix is the token prefix this source owns.
	Prefix() string

	// Value returns the value for the full token string.
	Value(ctx context.Context, raw string) (value string, found bool, err error)
}

var (
	// ErrDuplicatePrefix is returned when two sources claim the same prefix.
	ErrDuplicatePrefix = errors.New("prefix already registered")

	// ErrInvalidPrefix is returned for prefixes the token grammar cannot produce.
	ErrInvalidPrefix = errors.New("invalid prefix")
)

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Registry maps prefixes to sources.
//
// Thread-safety: safe for concurrent use. Lookups take a read lock.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry holding the given sources.
// Returns an error if any two share a prefix.
func NewRegistry(sources ...Source) (*Registry, error) {
	r := &Registry{sources: make(map[string]Source, len(sources))}
	for _, s := range sources {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a source under its prefix.
func (r *Registry) Register(s Source) error {
	prefix := s.Prefix()
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[prefix]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicatePrefix, prefix)
	}
	r.sources[prefix] = s
	return nil
}

// FindSource returns the source owning the token's prefix.
func (r *Registry) FindSource(raw string) (Source, bool) {
	prefix, ok := token.PrefixOf(raw)
	if !ok {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[prefix]
	return s, ok
}

// Prefixes returns the registered prefixes in sorted order.
func (r *Registry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.sources))
	for p := range r.sources {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// pathOf parses raw and returns its path.
func pathOf(raw string) (string, error) {
	tok, err := token.Parse(raw)
	if err != nil {
		return "", err
	}
	return tok.Path(), nil
}
