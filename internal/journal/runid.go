package journal

import "github.com/google/uuid"

// RunIDGenerator produces journal run ids.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7 generates time-sortable run ids, so lexical order of ids matches
// start order.
//
// Thread-safety: UUIDv7 is stateless and safe for concurrent use.
type UUIDv7 struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the system random source fails.
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
