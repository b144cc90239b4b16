package document

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Tree is a mutable document backed by nested map[string]any and []any values.
//
// Thread-safety: all methods are safe for concurrent use. Updates to
// different keys may run in parallel.
type Tree struct {
	mu    sync.RWMutex
	root  map[string]any
	index map[string][]step // flattened key -> path, rebuilt by Flatten
}

// step is one hop from a container to a child.
type step struct {
	field   string
	index   int
	isIndex bool
}

// NewTree wraps root. Nested values are normalised in place: map[any]any
// becomes map[string]any, []string becomes []any and json.Number becomes
// int64 or float64.
func NewTree(root map[string]any) *Tree {
	if root == nil {
		root = map[string]any{}
	}
	normalized, _ := normalize(root).(map[string]any)
	return &Tree{root: normalized}
}

// Flatten returns every leaf in key order. Maps are visited in sorted key
// order and slices by index.
func (t *Tree) Flatten() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var entries []Entry
	index := make(map[string][]step)
	walk(t.root, "", nil, func(key string, path []step, value any) {
		entries = append(entries, Entry{Key: key, Value: value})
		index[key] = path
	})
	t.index = index
	return entries
}

// Update replaces the leaf at key. Returns a *KeyError wrapping
// ErrKeyNotFound when key does not address an existing location.
func (t *Tree) Update(key string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path, ok := t.index[key]
	if !ok {
		parsed, err := parseKey(key)
		if err != nil {
			return &KeyError{Key: key, Err: err}
		}
		path = parsed
	}
	if len(path) == 0 {
		return &KeyError{Key: key, Err: ErrKeyNotFound}
	}

	parent, ok := lookup(t.root, path[:len(path)-1])
	if !ok {
		return &KeyError{Key: key, Err: ErrKeyNotFound}
	}

	last := path[len(path)-1]
	value = normalize(value)
	switch c := parent.(type) {
	case map[string]any:
		if last.isIndex {
			return &KeyError{Key: key, Err: ErrKeyNotFound}
		}
		if _, exists := c[last.field]; !exists {
			return &KeyError{Key: key, Err: ErrKeyNotFound}
		}
		c[last.field] = value
	case []any:
		if !last.isIndex || last.index < 0 || last.index >= len(c) {
			return &KeyError{Key: key, Err: ErrKeyNotFound}
		}
		c[last.index] = value
	default:
		return &KeyError{Key: key, Err: ErrKeyNotFound}
	}
	return nil
}

// Get returns the value stored at key.
func (t *Tree) Get(key string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	path, ok := t.index[key]
	if !ok {
		parsed, err := parseKey(key)
		if err != nil {
			return nil, false
		}
		path = parsed
	}
	return lookup(t.root, path)
}

// Root returns a deep copy of the document tree.
func (t *Tree) Root() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out, _ := deepCopy(t.root).(map[string]any)
	return out
}

func walk(node any, key string, path []step, visit func(string, []step, any)) {
	switch n := node.(type) {
	case map[string]any:
		fields := make([]string, 0, len(n))
		for f := range n {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			walk(n[f], fieldKey(key, f), appendStep(path, step{field: f}), visit)
		}
	case []any:
		for i, v := range n {
			walk(v, key+"["+strconv.Itoa(i)+"]", appendStep(path, step{index: i, isIndex: true}), visit)
		}
	default:
		visit(key, path, node)
	}
}

// appendStep copies path so sibling walks never share a backing array.
func appendStep(path []step, s step) []step {
	out := make([]step, len(path)+1)
	copy(out, path)
	out[len(path)] = s
	return out
}

func lookup(node any, path []step) (any, bool) {
	cur := node
	for _, s := range path {
		switch c := cur.(type) {
		case map[string]any:
			if s.isIndex {
				return nil, false
			}
			next, ok := c[s.field]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			if !s.isIndex || s.index < 0 || s.index >= len(c) {
				return nil, false
			}
			cur = c[s.index]
		default:
			return nil, false
		}
	}
	return cur, true
}

// fieldKey appends field f to key. Fields that would be ambiguous in dotted
// form are written quoted: a["b.c"], ["x[0]"].
func fieldKey(key, f string) string {
	if f == "" || strings.ContainsAny(f, `.[]"`) {
		return key + "[" + strconv.Quote(f) + "]"
	}
	if key == "" {
		return f
	}
	return key + "." + f
}

// parseKey turns `a.b[0]["c.d"]` into steps.
func parseKey(key string) ([]step, error) {
	if key == "" {
		return nil, fmt.Errorf("empty key: %w", ErrKeyNotFound)
	}
	malformed := func() error {
		return fmt.Errorf("malformed key %q: %w", key, ErrKeyNotFound)
	}

	var path []step
	afterDot := false
	for i := 0; i < len(key); {
		switch key[i] {
		case '.':
			if len(path) == 0 || afterDot {
				return nil, malformed()
			}
			afterDot = true
			i++
		case '[':
			if afterDot {
				return nil, malformed()
			}
			rest := key[i+1:]
			if strings.HasPrefix(rest, `"`) {
				quoted, err := strconv.QuotedPrefix(rest)
				if err != nil || !strings.HasPrefix(rest[len(quoted):], "]") {
					return nil, malformed()
				}
				field, _ := strconv.Unquote(quoted)
				path = append(path, step{field: field})
				i += 1 + len(quoted) + 1
				continue
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, malformed()
			}
			n, err := strconv.Atoi(rest[:end])
			if err != nil {
				return nil, fmt.Errorf("malformed index in key %q: %w", key, ErrKeyNotFound)
			}
			path = append(path, step{index: n, isIndex: true})
			i += 1 + end + 1
		default:
			if len(path) > 0 && !afterDot {
				return nil, malformed()
			}
			end := i
			for end < len(key) && key[end] != '.' && key[end] != '[' {
				end++
			}
			path = append(path, step{field: key[i:end]})
			afterDot = false
			i = end
		}
	}
	if afterDot {
		return nil, malformed()
	}
	return path, nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			val[k] = normalize(child)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[fmt.Sprint(k)] = normalize(child)
		}
		return out
	case []any:
		for i, child := range val {
			val[i] = normalize(child)
		}
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return v
	}
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
