// Package document provides the structured documents the replacement engine
// operates on.
//
// A document is a tree of maps, slices and scalar leaves. The engine never
// walks the tree itself: it reads a flattened snapshot of the leaves and
// writes back by key. Keys address a leaf with dots for map fields and
// brackets for slice indices:
//
//	db.host
//	servers[0].name
//	matrix[1][2]
//
// Tree is the in-memory implementation. It is safe for concurrent use, so
// independent entries can be updated from different goroutines.
package document

import (
	"errors"
	"fmt"
)

// Document is the contract the replacement engine consumes.
type Document interface {
	// Flatten returns a snapshot of every leaf in the document.
	Flatten() []Entry

	// Update replaces the value stored at key. value is a string or []string
	// when called by the engine.
	Update(key string, value any) error
}

// Entry is one flattened leaf.
type Entry struct {
	Key   string
	Value any
}

// ErrKeyNotFound is returned when an update names a key the document does not have.
var ErrKeyNotFound = errors.New("key not found")

// KeyError reports a key that could not be updated.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("document key %q: %v", e.Key, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}
