package source

import (
	"context"
	"sync"
)

// Static serves values from memory.
//
// Keys may be full tokens ("ssm:/prod/db/host") or bare paths
// ("/prod/db/host"). A full-token key wins over a path key.
type Static struct {
	prefix string

	mu     sync.RWMutex
	values map[string]string
}

// NewStatic creates a Static source. The values map is copied.
func NewStatic(prefix string, values map[string]string) *Static {
	s := &Static{prefix: prefix, values: make(map[string]string, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *Static) Prefix() string { return s.prefix }

// Set stores a value under key.
func (s *Static) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *Static) Value(_ context.Context, raw string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.values[raw]; ok {
		return v, true, nil
	}

	path, err := pathOf(raw)
	if err != nil {
		return "", false, err
	}
	v, ok := s.values[path]
	return v, ok, nil
}
