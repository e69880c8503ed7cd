package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mltrain/internal/apperrors"
	"mltrain/internal/blob"
	"mltrain/internal/observability"
)

// Validation limits
const (
	maxTestSize       = 1.0
	maxCallbackEvents = 16
	maxSkipEntries    = 256
)

// terminalWriteTimeout bounds the status write that moves a job to a
// terminal stage, which runs on a context detached from shutdown.
const terminalWriteTimeout = 30 * time.Second

// reservedKeys are definition fields owned by the service. They are
// stripped from registration payloads so clients cannot forge lifecycle
// state.
var reservedKeys = []string{"id", "status", "artifactRef", "createdAt", "callback"}

// Service orchestrates the training job lifecycle.
//
// All job state lives in the Store; the Service itself only tracks its
// in-flight training tasks so shutdown can wait for them. Dispatch is the
// single point where a request hands off to a background task, guarded by
// the store's check-and-set Transition.
type Service struct {
	store    Store
	blobs    blob.Store
	runner   Runner
	notifier Notifier
	metrics  *observability.Metrics

	// taskCtx is the lifetime of background training tasks. It is
	// independent of request contexts and only cancelled on shutdown.
	taskCtx    context.Context
	cancelTask context.CancelFunc
	tasks      sync.WaitGroup
}

// NewService creates a new job service.
func NewService(store Store, blobs blob.Store, runner Runner, notifier Notifier, metrics *observability.Metrics) *Service {
	taskCtx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:      store,
		blobs:      blobs,
		runner:     runner,
		notifier:   notifier,
		metrics:    metrics,
		taskCtx:    taskCtx,
		cancelTask: cancel,
	}
}

// Register validates a model definition and stores a new job record.
// The payload is stored verbatim minus reserved fields; an optional
// "callback" object configures webhook delivery of lifecycle events.
func (s *Service) Register(ctx context.Context, payload map[string]any) (*Job, error) {
	if payload == nil {
		return nil, apperrors.Validation("body", "model definition must be a JSON object")
	}

	callback, err := extractCallback(payload)
	if err != nil {
		return nil, err
	}

	definition := make(map[string]any, len(payload))
	for k, v := range payload {
		definition[k] = v
	}
	for _, k := range reservedKeys {
		delete(definition, k)
	}

	id := uuid.NewString()
	j := &Job{
		ID:          id,
		Definition:  definition,
		Status:      NewStatus(StageRegistered),
		ArtifactRef: ArtifactName(id),
		Callback:    callback,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.Insert(ctx, j); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordJobRegistered(ctx)
	}

	slog.Info("Job registered", "jobId", id)

	return j, nil
}

// Get returns the stored record for a job.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.store.Get(ctx, id)
}

// AttachDataset stores the uploaded training set and records the dataset
// parameters. The job must still be in the registered stage; validation
// happens before any side effect.
func (s *Service) AttachDataset(ctx context.Context, id string, upload io.Reader, ds Dataset) (*Job, error) {
	if upload == nil {
		return nil, apperrors.Validation("file", "training set file is required")
	}
	if err := validateDataset(&ds); err != nil {
		return nil, err
	}

	j, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status.Code != StageRegistered {
		return nil, apperrors.Conflict("job", id,
			fmt.Sprintf("job is %q, a training set can only be attached once after registration", j.Status.Code.Description()))
	}

	ds.BlobRef = DatasetName(id)
	if err := s.blobs.Put(ctx, ds.BlobRef, upload); err != nil {
		slog.Error("Training set upload failed", "jobId", id, "error", err)
		return nil, err
	}

	j.Dataset = &ds
	j.Status = NewStatus(StageDatasetAttached)
	if err := s.updateWithRetry(ctx, j, StageRegistered); err != nil {
		// The blob is already written. It is harmless on its own and gets
		// overwritten by a successful retry of the whole attach.
		slog.Error("Job update failed after training set upload", "jobId", id, "error", err)
		return nil, err
	}

	slog.Info("Training set attached", "jobId", id, "blobRef", ds.BlobRef)

	return j, nil
}

// Dispatch confirms a job for training and starts the background training
// task. The store's check-and-set on the stage guarantees a job trains at
// most once no matter how many dispatch requests race.
func (s *Service) Dispatch(ctx context.Context, id string, evaluate bool) (*Job, error) {
	if !evaluate {
		return nil, apperrors.Validation("evaluate", "dispatch requires evaluate to be true")
	}

	j, err := s.store.Transition(ctx, id, StageDatasetAttached, NewStatus(StageDispatched))
	if err != nil {
		return nil, err
	}

	s.tasks.Add(1)
	go s.supervise(j)

	slog.Info("Training dispatched", "jobId", id)

	return j, nil
}

// supervise runs one training task to a terminal stage. It owns the job
// from Dispatched onward and never leaves it in a non-terminal stage, even
// on runner panic.
func (s *Service) supervise(j *Job) {
	defer s.tasks.Done()

	ctx := s.taskCtx
	logger := slog.With("jobId", j.ID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Training task panicked", "panic", r)
			s.finish(ctx, j, fmt.Errorf("training task panicked: %v", r), start)
		}
	}()

	if err := s.store.SetStatus(ctx, j.ID, TrainingStatus(0)); err != nil {
		logger.Error("Failed to mark job training", "error", err)
	}
	if s.metrics != nil {
		s.metrics.RecordTrainingStarted(ctx)
	}
	s.publish(EventTypeTraining, j, TrainingStatus(0))

	progress := func(percent int) {
		if percent < 0 {
			percent = 0
		} else if percent > 100 {
			percent = 100
		}
		// Fire and forget; a lost progress write is overwritten by the next.
		if err := s.store.SetStatus(ctx, j.ID, TrainingStatus(percent)); err != nil {
			logger.Debug("Progress update failed", "percent", percent, "error", err)
		}
	}

	spec := TrainSpec{
		JobID:       j.ID,
		Definition:  j.Definition,
		Dataset:     *j.Dataset,
		DatasetRef:  j.Dataset.BlobRef,
		ArtifactRef: j.ArtifactRef,
	}

	s.finish(ctx, j, s.runner.Train(ctx, spec, progress), start)
}

// finish records the terminal stage of a training task and emits the
// matching lifecycle event.
func (s *Service) finish(ctx context.Context, j *Job, trainErr error, start time.Time) {
	logger := slog.With("jobId", j.ID)

	var st Status
	if trainErr != nil {
		st = FailedStatus(trainErr.Error())
		logger.Error("Training failed", "error", trainErr, "duration", time.Since(start))
	} else {
		st = NewStatus(StageDone)
		logger.Info("Training finished", "artifactRef", j.ArtifactRef, "duration", time.Since(start))
	}

	// The terminal write must land even when shutdown already cancelled the
	// task context, otherwise the job is stuck in training forever.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	if err := s.store.SetStatus(writeCtx, j.ID, st); err != nil {
		if err = s.store.SetStatus(writeCtx, j.ID, st); err != nil {
			// The record is stuck in a non-terminal stage until the store
			// recovers. Loud log so operators can reconcile.
			logger.Error("Failed to record terminal stage", "stage", st.Code.Description(), "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordTrainingFinished(ctx, trainErr == nil, time.Since(start).Seconds())
	}

	if trainErr != nil {
		s.publish(EventTypeFailed, j, st)
	} else {
		s.publish(EventTypeDone, j, st)
	}
}

// Artifact opens the trained model artifact for download. Only jobs that
// finished training successfully have one.
func (s *Service) Artifact(ctx context.Context, id, name string) (io.ReadCloser, int64, error) {
	j, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	switch j.Status.Code {
	case StageDone:
		// proceed
	case StageFailed:
		return nil, 0, apperrors.NotReady("artifact", fmt.Sprintf("training failed: %s", j.Status.Error))
	default:
		return nil, 0, apperrors.NotReady("artifact", fmt.Sprintf("job is %q, no artifact yet", j.Status.Code.Description()))
	}

	if name != j.ArtifactRef {
		return nil, 0, apperrors.NotFound("artifact", name)
	}

	rc, size, err := s.blobs.Open(ctx, name)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// The record says done but the blob is gone. Data integrity
			// fault worth surfacing in logs.
			slog.Error("Artifact blob missing for finished job", "jobId", id, "artifactRef", name)
		}
		return nil, 0, err
	}
	return rc, size, nil
}

// Drain waits for in-flight training tasks to finish. If ctx expires
// first, remaining tasks are cancelled and the context error returned.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.cancelTask()
		<-done
		return ctx.Err()
	}
}

// publish emits a lifecycle event carrying the job with the given status.
func (s *Service) publish(eventType string, j *Job, st Status) {
	if s.notifier == nil {
		return
	}
	snapshot := j.Clone()
	snapshot.Status = st
	s.notifier.Publish(eventType, snapshot)
}

// updateWithRetry retries a failed store update once before giving up.
// Conflicts are not retried: the job moved on while this writer stalled,
// and the guarded update would lose again.
func (s *Service) updateWithRetry(ctx context.Context, j *Job, from Stage) error {
	err := s.store.Update(ctx, j, from)
	if err == nil || errors.Is(err, apperrors.ErrConflict) {
		return err
	}
	return s.store.Update(ctx, j, from)
}

func validateDataset(ds *Dataset) error {
	if strings.TrimSpace(ds.TargetColumn) == "" {
		return apperrors.Validation("target_column", "target column is required")
	}
	if ds.TestSize <= 0 || ds.TestSize > maxTestSize {
		return apperrors.Validation("test_size", fmt.Sprintf("test size must be greater than 0 and at most %g", maxTestSize))
	}
	if len(ds.SkipRows) > maxSkipEntries {
		return apperrors.Validation("skip_rows", fmt.Sprintf("skip rows exceed maximum of %d entries", maxSkipEntries))
	}
	if len(ds.SkipColumns) > maxSkipEntries {
		return apperrors.Validation("skip_columns", fmt.Sprintf("skip columns exceed maximum of %d entries", maxSkipEntries))
	}
	return nil
}

// extractCallback pulls the optional callback configuration out of the
// registration payload and validates it.
func extractCallback(payload map[string]any) (*Callback, error) {
	raw, ok := payload["callback"]
	if !ok || raw == nil {
		return nil, nil
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, apperrors.Validation("callback", "callback must be an object")
	}

	cb := &Callback{}
	if v, ok := obj["url"].(string); ok {
		cb.URL = v
	}
	if v, ok := obj["key"].(string); ok {
		cb.Key = v
	}
	if events, ok := obj["events"].([]any); ok {
		for _, e := range events {
			ev, ok := e.(string)
			if !ok {
				return nil, apperrors.Validation("callback.events", "callback events must be strings")
			}
			cb.Events = append(cb.Events, ev)
		}
	}

	if cb.URL == "" {
		return nil, apperrors.Validation("callback.url", "callback URL is required")
	}
	if err := validateURL(cb.URL); err != nil {
		return nil, apperrors.Validation("callback.url", fmt.Sprintf("invalid callback URL: %v", err))
	}
	if len(cb.Events) > maxCallbackEvents {
		return nil, apperrors.Validation("callback.events", fmt.Sprintf("callback events exceed maximum of %d", maxCallbackEvents))
	}

	return cb, nil
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
