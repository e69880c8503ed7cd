package job

import "slices"

// Event types for job lifecycle webhooks
const (
	EventTypeTraining = "trainer.job.training"
	EventTypeDone     = "trainer.job.done"
	EventTypeFailed   = "trainer.job.failed"
)

// FilteredEvents returns true if the event type should be sent based on the
// filter. An empty filter allows all events.
func FilteredEvents(eventType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	return slices.Contains(filter, eventType)
}

// Notifier publishes lifecycle events for jobs that configured a callback.
// Implementations must not block; delivery is asynchronous and best-effort.
type Notifier interface {
	Publish(eventType string, j *Job)
}
