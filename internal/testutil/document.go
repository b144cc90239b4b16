package testutil

import (
	"sync"

	"github.com/roach88/configur8/internal/document"
)

// RecordingDocument wraps a Document and counts updates per key.
// Updates for keys registered with FailUpdate return the configured error
// without reaching the wrapped document.
//
// Thread-safety: safe for concurrent use if the wrapped document is.
type RecordingDocument struct {
	document.Document

	mu       sync.Mutex
	updates  map[string]int
	failures map[string]error
}

// NewRecordingDocument wraps doc.
func NewRecordingDocument(doc document.Document) *RecordingDocument {
	return &RecordingDocument{
		Document: doc,
		updates:  make(map[string]int),
		failures: make(map[string]error),
	}
}

// FailUpdate makes updates to key fail with err.
func (d *RecordingDocument) FailUpdate(key string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[key] = err
}

// Update records the call and forwards it.
func (d *RecordingDocument) Update(key string, value any) error {
	d.mu.Lock()
	d.updates[key]++
	err := d.failures[key]
	d.mu.Unlock()

	if err != nil {
		return err
	}
	return d.Document.Update(key, value)
}

// Updates returns how many times key was updated, failed attempts included.
func (d *RecordingDocument) Updates(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updates[key]
}

// Counts returns a copy of the per-key update counts.
func (d *RecordingDocument) Counts() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.updates))
	for k, n := range d.updates {
		out[k] = n
	}
	return out
}

// TotalUpdates returns the number of update calls across all keys.
func (d *RecordingDocument) TotalUpdates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, n := range d.updates {
		total += n
	}
	return total
}
