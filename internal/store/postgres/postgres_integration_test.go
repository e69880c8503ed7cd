//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"mltrain/internal/apperrors"
	"mltrain/internal/job"
)

// Requires a reachable PostgreSQL, e.g.:
//
//	DATABASE_URL=postgres://localhost/mltrain_test?sslmode=disable go test -tags integration ./internal/store/postgres
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	s, err := Open(context.Background(), url)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	j := &job.Job{
		ID:          id,
		Definition:  map[string]any{"hidden_units": float64(10)},
		Status:      job.NewStatus(job.StageRegistered),
		ArtifactRef: job.ArtifactName(id),
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := s.Insert(ctx, j); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(ctx, j); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict on duplicate insert, got %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != id || got.Status.Code != job.StageRegistered {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Definition["hidden_units"] != float64(10) {
		t.Errorf("definition lost in round trip: %+v", got.Definition)
	}

	if _, err := s.Get(ctx, uuid.NewString()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestStore_Transition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	j := &job.Job{
		ID:          id,
		Definition:  map[string]any{},
		Status:      job.NewStatus(job.StageDatasetAttached),
		ArtifactRef: job.ArtifactName(id),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Insert(ctx, j); err != nil {
		t.Fatalf("insert: %v", err)
	}

	updated, err := s.Transition(ctx, id, job.StageDatasetAttached, job.NewStatus(job.StageDispatched))
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.Status.Code != job.StageDispatched {
		t.Errorf("expected dispatched, got %+v", updated.Status)
	}

	// Check-and-set from the stale stage must conflict.
	_, err = s.Transition(ctx, id, job.StageDatasetAttached, job.NewStatus(job.StageDispatched))
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	// Progress writes land in the document.
	if err := s.SetStatus(ctx, id, job.TrainingStatus(55)); err != nil {
		t.Fatalf("setStatus: %v", err)
	}
	got, _ := s.Get(ctx, id)
	if got.Status.Progress == nil || *got.Status.Progress != 55 {
		t.Errorf("expected progress 55, got %+v", got.Status)
	}
}

func TestStore_UpdateStageGuard(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	j := &job.Job{
		ID:          id,
		Definition:  map[string]any{},
		Status:      job.NewStatus(job.StageRegistered),
		ArtifactRef: job.ArtifactName(id),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Insert(ctx, j); err != nil {
		t.Fatalf("insert: %v", err)
	}

	j.Status = job.NewStatus(job.StageDatasetAttached)
	if err := s.Update(ctx, j, job.StageRegistered); err != nil {
		t.Fatalf("update: %v", err)
	}

	// A writer holding a stale stage must not rewind the record.
	stale := *j
	stale.Status = job.NewStatus(job.StageDatasetAttached)
	if err := s.Update(ctx, &stale, job.StageRegistered); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict for stale writer, got %v", err)
	}

	got, _ := s.Get(ctx, id)
	if got.Status.Code != job.StageDatasetAttached {
		t.Errorf("stale writer changed the record: %+v", got.Status)
	}
}

func TestStore_SetStatusTerminalIsFinal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	j := &job.Job{
		ID:          id,
		Definition:  map[string]any{},
		Status:      job.NewStatus(job.StageTraining),
		ArtifactRef: job.ArtifactName(id),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Insert(ctx, j); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.SetStatus(ctx, id, job.NewStatus(job.StageDone)); err != nil {
		t.Fatalf("setStatus: %v", err)
	}

	// A late progress write must not resurrect a finished job.
	if err := s.SetStatus(ctx, id, job.TrainingStatus(99)); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict overwriting a terminal stage, got %v", err)
	}
	got, _ := s.Get(ctx, id)
	if got.Status.Code != job.StageDone {
		t.Errorf("terminal stage was overwritten: %+v", got.Status)
	}
}
