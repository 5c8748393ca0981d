package governance

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine operations.
var (
	// ErrNotFound is returned when a referenced item id does not exist.
	ErrNotFound = errors.New("content item not found")

	// ErrPreconditionFailed is returned when an operation's state
	// precondition is not met, e.g. merge without approval. The item is
	// left unchanged.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrCycleDetected is returned when a dependency edge would make
	// the graph cyclic.
	ErrCycleDetected = errors.New("dependency cycle detected")

	// ErrInvalidTransition is returned when a state transition outside
	// the fixed sequences is requested.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrBranchNameRequired is returned by CreateBranch for an empty
	// branch name.
	ErrBranchNameRequired = errors.New("branch name is required")

	// ErrActorRequired is returned when an operation is called without
	// an actor.
	ErrActorRequired = errors.New("actor is required")

	// ErrSelfDependency marks the degenerate cycle of an item asked to
	// depend on itself. It matches ErrCycleDetected under errors.Is.
	ErrSelfDependency = fmt.Errorf("%w: item cannot depend on itself", ErrCycleDetected)
)
