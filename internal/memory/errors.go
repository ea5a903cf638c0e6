package memory

import "errors"

var (
	// ErrResourceExhausted is returned by Store when the node table is at
	// the configured capacity. Callers are expected to run Consolidate or
	// PruneWeakRelationships; the store never evicts silently.
	ErrResourceExhausted = errors.New("memory store at capacity")

	// ErrCorruption indicates a structural invariant was violated, such as
	// a relationship pointing at a missing node. Mutation halts and the
	// error surfaces for operator intervention.
	ErrCorruption = errors.New("memory store corruption")

	// ErrNotFound is returned when a node id does not exist.
	ErrNotFound = errors.New("node not found")
)
