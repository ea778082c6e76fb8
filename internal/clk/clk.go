// Package clk provides ID generation and a test-injectable clock used
// across the store, workflow engine, and event bus.
package clk

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a new UUIDv7 for use as an entity primary key.
// UUIDv7 embeds a millisecond timestamp so IDs sort chronologically,
// which keeps SQLite's rowid-adjacent ordering useful for listing
// queries without a separate index.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fall back to v4 if the v7 generator fails (e.g. entropy
		// exhaustion). Still a valid, unique identifier.
		return uuid.New().String()
	}
	return id.String()
}

// Clock abstracts time.Now so components can be tested with a fixed
// or advancing virtual clock instead of wall time.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock backed by time.Now.
type Real struct{}

// Now returns the current wall-clock time.
func (Real) Now() time.Time { return time.Now() }

// Frozen is a Clock that always returns a fixed time. Useful in tests
// that assert on exact timestamps.
type Frozen struct {
	At time.Time
}

// Now returns the frozen time.
func (f Frozen) Now() time.Time { return f.At }
