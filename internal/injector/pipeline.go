package injector

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/configur8/internal/document"
)

// Injector is one pass over a document.
type Injector interface {
	Priority() int
	ReplaceAllIn(ctx context.Context, doc document.Document) (document.Document, error)
}

// Pipeline runs injectors in ascending priority order. Injectors with equal
// priority keep the order they were given in.
type Pipeline struct {
	injectors []Injector
}

// NewPipeline creates a pipeline over injectors.
func NewPipeline(injectors ...Injector) *Pipeline {
	sorted := make([]Injector, len(injectors))
	copy(sorted, injectors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Pipeline{injectors: sorted}
}

// Injectors returns the injectors in run order.
func (p *Pipeline) Injectors() []Injector {
	out := make([]Injector, len(p.injectors))
	copy(out, p.injectors)
	return out
}

// Run feeds doc through every injector. It stops at the first injector that
// returns an error and returns that injector's document with the error, so
// the caller still sees the entries that resolved.
func (p *Pipeline) Run(ctx context.Context, doc document.Document) (document.Document, error) {
	for i, inj := range p.injectors {
		out, err := inj.ReplaceAllIn(ctx, doc)
		if out != nil {
			doc = out
		}
		if err != nil {
			return doc, fmt.Errorf("injector %d (priority %d): %w", i, inj.Priority(), err)
		}
	}
	return doc, nil
}
