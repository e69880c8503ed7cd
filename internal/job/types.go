// Package job defines the training job model and the lifecycle orchestrator.
package job

import (
	"fmt"
	"time"
)

// Stage is a job's position in the fixed forward lifecycle.
type Stage int

const (
	StageRegistered      Stage = 0 // definition accepted, no dataset yet
	StageDatasetAttached Stage = 1 // dataset stored, ready to train
	StageDispatched      Stage = 2 // training confirmed, task about to start
	StageTraining        Stage = 3 // training task running, progress 0-100
	StageDone            Stage = 4 // artifact available for download
	StageFailed          Stage = 5 // terminal failure, reason recorded
)

// Description returns the human-readable stage name persisted in the
// status document.
func (s Stage) Description() string {
	switch s {
	case StageRegistered:
		return "model registered"
	case StageDatasetAttached:
		return "dataset attached"
	case StageDispatched:
		return "dispatched"
	case StageTraining:
		return "training"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown stage %d", int(s))
	}
}

// Terminal reports whether no further transition is permitted from s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. The lifecycle only advances one stage at a time; any non-terminal
// stage may additionally fail.
func (s Stage) CanTransition(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	return next == s+1 && next <= StageDone
}

// Status is the persisted status document of a job.
type Status struct {
	Code        Stage  `json:"code"`
	Description string `json:"description"`
	Progress    *int   `json:"progress,omitempty"` // percent, only while training
	Error       string `json:"error,omitempty"`    // only when failed
}

// NewStatus builds the status document for a stage.
func NewStatus(s Stage) Status {
	return Status{Code: s, Description: s.Description()}
}

// TrainingStatus builds a training status with the given progress percent.
func TrainingStatus(percent int) Status {
	st := NewStatus(StageTraining)
	st.Progress = &percent
	return st
}

// FailedStatus builds a failed status carrying the failure reason.
func FailedStatus(reason string) Status {
	st := NewStatus(StageFailed)
	st.Error = reason
	return st
}

// Dataset is the sub-record added when a training set is attached.
// Present if and only if the job has reached StageDatasetAttached.
type Dataset struct {
	BlobRef               string   `json:"blobRef"`
	TargetColumn          string   `json:"target_column"`
	TestSize              float64  `json:"test_size"`
	SkipRows              []string `json:"skip_rows,omitempty"`
	SkipColumns           []string `json:"skip_columns,omitempty"`
	Separator             string   `json:"sep,omitempty"`
	Decimal               string   `json:"decimal,omitempty"`
	CategoricalMulticlass *bool    `json:"categorical_multiclass,omitempty"`
}

// Callback configures webhook delivery of lifecycle events for one job.
type Callback struct {
	URL    string   `json:"url"`
	Key    string   `json:"key,omitempty"` // HMAC signing key
	Events []string `json:"events,omitempty"`
}

// Job is one model-training request and its evolving lifecycle record.
type Job struct {
	ID          string         `json:"id"`
	Definition  map[string]any `json:"definition"`
	Dataset     *Dataset       `json:"dataset,omitempty"`
	Status      Status         `json:"status"`
	ArtifactRef string         `json:"artifactRef"`
	Callback    *Callback      `json:"callback,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Clone returns a deep copy of the job so callers cannot mutate stored state.
func (j *Job) Clone() *Job {
	c := *j
	if j.Definition != nil {
		c.Definition = make(map[string]any, len(j.Definition))
		for k, v := range j.Definition {
			c.Definition[k] = v
		}
	}
	if j.Dataset != nil {
		d := *j.Dataset
		d.SkipRows = append([]string(nil), j.Dataset.SkipRows...)
		d.SkipColumns = append([]string(nil), j.Dataset.SkipColumns...)
		if j.Dataset.CategoricalMulticlass != nil {
			b := *j.Dataset.CategoricalMulticlass
			d.CategoricalMulticlass = &b
		}
		c.Dataset = &d
	}
	if j.Status.Progress != nil {
		p := *j.Status.Progress
		c.Status.Progress = &p
	}
	if j.Callback != nil {
		cb := *j.Callback
		cb.Events = append([]string(nil), j.Callback.Events...)
		c.Callback = &cb
	}
	return &c
}

// ArtifactName derives the deterministic artifact blob name for a job id.
func ArtifactName(id string) string {
	return id + ".zip"
}

// DatasetName derives the deterministic dataset blob name for a job id.
func DatasetName(id string) string {
	return id + ".csv"
}
