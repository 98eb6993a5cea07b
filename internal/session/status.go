package session

// Status is the lifecycle status of a single step record.
type Status string

// Step status values. Records start as [StatusNotStarted]; only the
// orchestrator and the result recorder move them forward.
const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusPassed     Status = "passed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusPassed, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// IsCompleted reports whether a result has been recorded for the step.
func (s Status) IsCompleted() bool {
	return s == StatusPassed || s == StatusFailed
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}
