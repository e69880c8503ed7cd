// Package postgres implements the job store on PostgreSQL.
//
// Each job is one row holding the full record as a JSONB document plus the
// stage code as a plain column so transitions can check-and-set without
// touching the document.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"mltrain/internal/apperrors"
	"mltrain/internal/job"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	stage      INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// Store is a PostgreSQL-backed JobStore.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, apperrors.Unavailable("store.open", err)
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.Unavailable("store.ping", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.Internal("store.migrate", err)
	}
	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores a new record.
func (s *Store) Insert(ctx context.Context, j *job.Job) error {
	doc, err := json.Marshal(j)
	if err != nil {
		return apperrors.Internal("store.insert", err)
	}

	const query = `INSERT INTO jobs (id, doc, stage, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query, j.ID, doc, int(j.Status.Code), j.CreatedAt)
	if err != nil {
		return apperrors.Unavailable("store.insert", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Conflict("job", j.ID, fmt.Sprintf("job %s already exists", j.ID))
	}
	return nil
}

// Get returns the stored record.
func (s *Store) Get(ctx context.Context, id string) (*job.Job, error) {
	const query = `SELECT doc FROM jobs WHERE id = $1`

	var doc []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job", id)
	}
	if err != nil {
		return nil, apperrors.Unavailable("store.get", err)
	}

	var j job.Job
	if err := json.Unmarshal(doc, &j); err != nil {
		return nil, apperrors.Internal("store.get", err)
	}
	return &j, nil
}

// Update replaces the stored record while the stored stage still equals
// from. The stage column guards the write the same way Transition does.
func (s *Store) Update(ctx context.Context, j *job.Job, from job.Stage) error {
	doc, err := json.Marshal(j)
	if err != nil {
		return apperrors.Internal("store.update", err)
	}

	const query = `UPDATE jobs SET doc = $2, stage = $3 WHERE id = $1 AND stage = $4`
	res, err := s.db.ExecContext(ctx, query, j.ID, doc, int(j.Status.Code), int(from))
	if err != nil {
		return apperrors.Unavailable("store.update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, getErr := s.Get(ctx, j.ID)
		if getErr != nil {
			return getErr
		}
		return apperrors.Conflict("job", j.ID,
			fmt.Sprintf("job %s is %q, expected %q", j.ID, current.Status.Description, from.Description()))
	}
	return nil
}

// SetStatus updates only the status document inside the record. Rows
// already at a terminal stage are never touched; a late writer gets a
// conflict instead.
func (s *Store) SetStatus(ctx context.Context, id string, st job.Status) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return apperrors.Internal("store.setStatus", err)
	}

	const query = `UPDATE jobs SET doc = jsonb_set(doc, '{status}', $2::jsonb), stage = $3
		WHERE id = $1 AND stage NOT IN ($4, $5)`
	res, err := s.db.ExecContext(ctx, query, id, doc, int(st.Code), int(job.StageDone), int(job.StageFailed))
	if err != nil {
		return apperrors.Unavailable("store.setStatus", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		return apperrors.Conflict("job", id,
			fmt.Sprintf("job %s is %q, a terminal stage cannot be overwritten", id, current.Status.Description))
	}
	return nil
}

// Transition atomically moves a job from one stage to a new status and
// returns the updated record. The stage column guards the check-and-set.
func (s *Store) Transition(ctx context.Context, id string, from job.Stage, to job.Status) (*job.Job, error) {
	doc, err := json.Marshal(to)
	if err != nil {
		return nil, apperrors.Internal("store.transition", err)
	}

	const query = `UPDATE jobs SET doc = jsonb_set(doc, '{status}', $3::jsonb), stage = $4
		WHERE id = $1 AND stage = $2
		RETURNING doc`
	var updated []byte
	err = s.db.QueryRowContext(ctx, query, id, int(from), doc, int(to.Code)).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing job from a stage mismatch.
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.Conflict("job", id,
			fmt.Sprintf("job %s is %q, expected %q", id, current.Status.Description, from.Description()))
	}
	if err != nil {
		return nil, apperrors.Unavailable("store.transition", err)
	}

	var j job.Job
	if err := json.Unmarshal(updated, &j); err != nil {
		return nil, apperrors.Internal("store.transition", err)
	}
	return &j, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.Unavailable("store.ping", err)
	}
	return nil
}

// Verify Store implements job.Store
var _ job.Store = (*Store)(nil)
