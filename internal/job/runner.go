package job

import "context"

// TrainSpec carries everything a runner needs to train one job.
type TrainSpec struct {
	JobID       string
	Definition  map[string]any // caller-supplied model configuration
	Dataset     Dataset
	DatasetRef  string // blob name of the uploaded training set
	ArtifactRef string // blob name the produced artifact must be stored under
}

// ProgressFunc receives training progress in percent (0-100).
// Calls are fire-and-forget; runners need not dedupe or order them beyond
// reporting non-decreasing values.
type ProgressFunc func(percent int)

// Runner performs the actual model fitting for one job. It runs to
// completion or failure independent of the request that dispatched it and
// must deposit the artifact under TrainSpec.ArtifactRef before returning
// nil. Any error is terminal for the job.
type Runner interface {
	Train(ctx context.Context, spec TrainSpec, progress ProgressFunc) error
}
