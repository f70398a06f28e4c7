package schema

// Event type constants published while a run progresses.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventRunCancelled = "run_cancelled"

	EventStepStarted   = "step_started"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
)

// RunEventType maps a terminal run status to its event type.
func RunEventType(status RunStatus) string {
	switch status {
	case RunStatusCompleted:
		return EventRunCompleted
	case RunStatusFailed:
		return EventRunFailed
	case RunStatusCancelled:
		return EventRunCancelled
	case RunStatusRunning:
		return EventRunStarted
	default:
		return ""
	}
}
