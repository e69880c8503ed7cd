package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mltrain/internal/apperrors"
	"mltrain/internal/job"
)

func newJob(id string) *job.Job {
	return &job.Job{
		ID:          id,
		Definition:  map[string]any{"hidden_units": float64(10)},
		Status:      job.NewStatus(job.StageRegistered),
		ArtifactRef: job.ArtifactName(id),
		CreatedAt:   time.Now().UTC(),
	}
}

func TestMemory_InsertAndGet(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	if err := m.Insert(ctx, newJob("j1")); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	got, err := m.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if got.ID != "j1" || got.Status.Code != job.StageRegistered {
		t.Errorf("unexpected record: %+v", got)
	}

	// Duplicate insert conflicts
	err = m.Insert(ctx, newJob("j1"))
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict on duplicate insert, got %v", err)
	}
}

func TestMemory_GetUnknown(t *testing.T) {
	t.Parallel()
	m := NewMemory()

	_, err := m.Get(context.Background(), "missing")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	if err := m.Insert(ctx, newJob("j1")); err != nil {
		t.Fatal(err)
	}

	first, _ := m.Get(ctx, "j1")
	first.Definition["hidden_units"] = float64(999)
	first.Status = job.NewStatus(job.StageDone)

	second, _ := m.Get(ctx, "j1")
	if second.Definition["hidden_units"] != float64(10) {
		t.Error("mutating a returned record leaked into the store")
	}
	if second.Status.Code != job.StageRegistered {
		t.Error("mutating a returned status leaked into the store")
	}
}

func TestMemory_SetStatus(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	if err := m.Insert(ctx, newJob("j1")); err != nil {
		t.Fatal(err)
	}

	if err := m.SetStatus(ctx, "j1", job.TrainingStatus(42)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := m.Get(ctx, "j1")
	if got.Status.Code != job.StageTraining || got.Status.Progress == nil || *got.Status.Progress != 42 {
		t.Errorf("unexpected status: %+v", got.Status)
	}

	err := m.SetStatus(ctx, "missing", job.NewStatus(job.StageDone))
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMemory_UpdateStageGuard(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	if err := m.Insert(ctx, newJob("j1")); err != nil {
		t.Fatal(err)
	}

	updated := newJob("j1")
	updated.Status = job.NewStatus(job.StageDatasetAttached)
	if err := m.Update(ctx, updated, job.StageRegistered); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A writer holding a stale stage cannot move the record backwards.
	stale := newJob("j1")
	stale.Status = job.NewStatus(job.StageDatasetAttached)
	err := m.Update(ctx, stale, job.StageRegistered)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict for stale writer, got %v", err)
	}

	got, _ := m.Get(ctx, "j1")
	if got.Status.Code != job.StageDatasetAttached {
		t.Errorf("stale writer changed the record: %+v", got.Status)
	}

	err = m.Update(ctx, newJob("missing"), job.StageRegistered)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMemory_SetStatusTerminalIsFinal(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	if err := m.Insert(ctx, newJob("j1")); err != nil {
		t.Fatal(err)
	}
	if err := m.SetStatus(ctx, "j1", job.NewStatus(job.StageDone)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A late progress write must not resurrect a finished job.
	err := m.SetStatus(ctx, "j1", job.TrainingStatus(99))
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict overwriting a terminal stage, got %v", err)
	}

	got, _ := m.Get(ctx, "j1")
	if got.Status.Code != job.StageDone {
		t.Errorf("terminal stage was overwritten: %+v", got.Status)
	}

	if err := m.SetStatus(ctx, "j1", job.FailedStatus("late")); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict for any write over a terminal stage, got %v", err)
	}
}

func TestMemory_Transition(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	if err := m.Insert(ctx, newJob("j1")); err != nil {
		t.Fatal(err)
	}

	updated, err := m.Transition(ctx, "j1", job.StageRegistered, job.NewStatus(job.StageDatasetAttached))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status.Code != job.StageDatasetAttached {
		t.Errorf("expected stage %d, got %d", job.StageDatasetAttached, updated.Status.Code)
	}

	// Second transition from the old stage conflicts
	_, err = m.Transition(ctx, "j1", job.StageRegistered, job.NewStatus(job.StageDatasetAttached))
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestMemory_TransitionRace(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	j := newJob("j1")
	j.Status = job.NewStatus(job.StageDatasetAttached)
	if err := m.Insert(ctx, j); err != nil {
		t.Fatal(err)
	}

	// Many concurrent dispatch attempts; exactly one may win.
	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	wg.Add(attempts)
	for range attempts {
		go func() {
			defer wg.Done()
			_, err := m.Transition(ctx, "j1", job.StageDatasetAttached, job.NewStatus(job.StageDispatched))
			if err == nil {
				wins <- struct{}{}
			} else if !errors.Is(err, apperrors.ErrConflict) {
				t.Errorf("unexpected error kind: %v", err)
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Errorf("expected exactly one winning transition, got %d", won)
	}
}
