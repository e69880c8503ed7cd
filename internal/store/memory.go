// Package store provides job.Store implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"mltrain/internal/apperrors"
	"mltrain/internal/job"
)

// Memory is an in-memory job.Store for single-process deployments and tests.
// Records are deep-copied on the way in and out so callers never share state
// with the store.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*job.Job),
	}
}

// Insert stores a new record. Returns a conflict error if the id exists.
func (m *Memory) Insert(ctx context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[j.ID]; exists {
		return apperrors.Conflict("job", j.ID, fmt.Sprintf("job %s already exists", j.ID))
	}
	m.jobs[j.ID] = j.Clone()
	return nil
}

// Get returns a copy of the stored record.
func (m *Memory) Get(ctx context.Context, id string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, exists := m.jobs[id]
	if !exists {
		return nil, apperrors.NotFound("job", id)
	}
	return j.Clone(), nil
}

// Update replaces the stored record while the stored stage still equals
// from. A writer that stalled past a stage change gets a conflict.
func (m *Memory) Update(ctx context.Context, j *job.Job, from job.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.jobs[j.ID]
	if !exists {
		return apperrors.NotFound("job", j.ID)
	}
	if current.Status.Code != from {
		return apperrors.Conflict("job", j.ID,
			fmt.Sprintf("job %s is %q, expected %q", j.ID, current.Status.Description, from.Description()))
	}
	m.jobs[j.ID] = j.Clone()
	return nil
}

// SetStatus updates only the status document. Terminal stages are final
// and cannot be overwritten.
func (m *Memory) SetStatus(ctx context.Context, id string, st job.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, exists := m.jobs[id]
	if !exists {
		return apperrors.NotFound("job", id)
	}
	if j.Status.Code.Terminal() {
		return apperrors.Conflict("job", id,
			fmt.Sprintf("job %s is %q, a terminal stage cannot be overwritten", id, j.Status.Description))
	}
	j.Status = st
	if st.Progress != nil {
		p := *st.Progress
		j.Status.Progress = &p
	}
	return nil
}

// Transition atomically moves a job from one stage to a new status.
func (m *Memory) Transition(ctx context.Context, id string, from job.Stage, to job.Status) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, exists := m.jobs[id]
	if !exists {
		return nil, apperrors.NotFound("job", id)
	}
	if j.Status.Code != from {
		return nil, apperrors.Conflict("job", id,
			fmt.Sprintf("job %s is %q, expected %q", id, j.Status.Description, from.Description()))
	}
	j.Status = to
	if to.Progress != nil {
		p := *to.Progress
		j.Status.Progress = &p
	}
	return j.Clone(), nil
}

// Ping always succeeds for the in-memory store.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

// Verify Memory implements job.Store
var _ job.Store = (*Memory)(nil)
