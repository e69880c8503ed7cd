package job

import "context"

// Store persists job records keyed by job id.
//
// The store is the single shared mutable resource of the orchestrator.
// Transition is the concurrency primitive: a check-and-set on the stage code
// that is atomic with respect to concurrent dispatch attempts for the same id.
// Implementations live in internal/store.
type Store interface {
	// Insert stores a new record. Returns a conflict error if the id exists.
	Insert(ctx context.Context, j *Job) error

	// Get returns the stored record, or a not-found error.
	Get(ctx context.Context, id string) (*Job, error)

	// Update replaces the stored record, but only while the stored stage
	// still equals from. A stale writer that lost a race gets a conflict
	// error naming the current stage; the record is left untouched.
	Update(ctx context.Context, j *Job, from Stage) error

	// SetStatus updates only the status document. Progress writes from a
	// training task go through here; last write wins. A terminal stage is
	// final: overwriting it returns a conflict error.
	SetStatus(ctx context.Context, id string, st Status) error

	// Transition atomically moves a job from one stage to a new status and
	// returns the updated record. If the stored stage differs from `from`,
	// it returns a conflict error naming the current stage and changes
	// nothing.
	Transition(ctx context.Context, id string, from Stage, to Status) (*Job, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
