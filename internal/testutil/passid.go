package testutil

// FixedPassIDGenerator generates the same pass ID every time.
//
// Unlike injector.FixedGenerator which returns IDs in sequence, this
// generator never runs out, so a test can run any number of passes and
// still compare logs byte for byte.
//
// Thread-safety: FixedPassIDGenerator is stateless and safe for concurrent use.
type FixedPassIDGenerator struct {
	id string
}

// NewFixedPassIDGenerator creates a generator returning id.
// If id is empty, Generate() returns "test-pass-default".
func NewFixedPassIDGenerator(id string) *FixedPassIDGenerator {
	if id == "" {
		id = "test-pass-default"
	}
	return &FixedPassIDGenerator{id: id}
}

// Generate returns the fixed pass ID.
func (g *FixedPassIDGenerator) Generate() string {
	return g.id
}
