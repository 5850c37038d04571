package testutil

// FixedRunID generates the same journal run id every time.
//
// A scenario recorded with FixedRunID produces byte-identical journal rows,
// which keeps golden comparisons stable.
//
// Thread-safety: FixedRunID is stateless and safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a fixed run id generator.
// If id is empty, Generate() returns "test-run-default".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run id.
//
// Implements journal.RunIDGenerator.
func (g *FixedRunID) Generate() string {
	return g.id
}
