// Package event defines the notifications a session raises and a small
// synchronous bus to deliver them.
//
// These events are the whole surface other layers (console output,
// persistence, metrics) may depend on. Each event type is named
// "category.action".
package event

import (
	"time"

	"stepwise/internal/navigation"
	"stepwise/internal/session"
	"stepwise/internal/timer"
)

// Event type names.
const (
	TypeSessionStarted     = "session.started"
	TypeSessionPaused      = "session.paused"
	TypeSessionResumed     = "session.resumed"
	TypeStepChanged        = "step.changed"
	TypeTimerTick          = "timer.tick"
	TypeResultSubmitted    = "result.submitted"
	TypeResultChanged      = "result.changed"
	TypeNavigationBlocked  = "navigation.blocked"
	TypeSubmissionRejected = "submission.rejected"
	TypeTestCompleted      = "test.completed"
)

// Event is the interface every event implements.
type Event interface {
	// EventType returns the "category.action" identifier.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Session lifecycle
// -----------------------------------------------------------------------------

// SessionStartedEvent is emitted once when a session becomes active.
type SessionStartedEvent struct {
	baseEvent
	SessionID string
	Total     int
}

// NewSessionStartedEvent creates a SessionStartedEvent.
func NewSessionStartedEvent(sessionID string, total int) SessionStartedEvent {
	return SessionStartedEvent{
		baseEvent: newBaseEvent(TypeSessionStarted),
		SessionID: sessionID,
		Total:     total,
	}
}

// SessionPausedEvent is emitted when the operator pauses the running step.
type SessionPausedEvent struct {
	baseEvent
	Index int
}

// NewSessionPausedEvent creates a SessionPausedEvent.
func NewSessionPausedEvent(index int) SessionPausedEvent {
	return SessionPausedEvent{baseEvent: newBaseEvent(TypeSessionPaused), Index: index}
}

// SessionResumedEvent is emitted when a paused step resumes.
type SessionResumedEvent struct {
	baseEvent
	Index int
}

// NewSessionResumedEvent creates a SessionResumedEvent.
func NewSessionResumedEvent(index int) SessionResumedEvent {
	return SessionResumedEvent{baseEvent: newBaseEvent(TypeSessionResumed), Index: index}
}

// TestCompletedEvent is emitted exactly once per session, when it completes.
type TestCompletedEvent struct {
	baseEvent
	SessionID string
	Passed    int
	Failed    int
	Manual    bool // ended by finish rather than by the last submission
}

// NewTestCompletedEvent creates a TestCompletedEvent.
func NewTestCompletedEvent(sessionID string, passed, failed int, manual bool) TestCompletedEvent {
	return TestCompletedEvent{
		baseEvent: newBaseEvent(TypeTestCompleted),
		SessionID: sessionID,
		Passed:    passed,
		Failed:    failed,
		Manual:    manual,
	}
}

// -----------------------------------------------------------------------------
// Navigation
// -----------------------------------------------------------------------------

// StepChangedEvent is emitted on every successful navigation.
type StepChangedEvent struct {
	baseEvent
	Index int
	Total int
	Mode  navigation.Mode
}

// NewStepChangedEvent creates a StepChangedEvent.
func NewStepChangedEvent(index, total int, mode navigation.Mode) StepChangedEvent {
	return StepChangedEvent{
		baseEvent: newBaseEvent(TypeStepChanged),
		Index:     index,
		Total:     total,
		Mode:      mode,
	}
}

// NavigationBlockedEvent is emitted when a navigation request is refused.
type NavigationBlockedEvent struct {
	baseEvent
	From   int
	To     int
	Reason string
}

// NewNavigationBlockedEvent creates a NavigationBlockedEvent.
func NewNavigationBlockedEvent(from, to int, reason string) NavigationBlockedEvent {
	return NavigationBlockedEvent{
		baseEvent: newBaseEvent(TypeNavigationBlocked),
		From:      from,
		To:        to,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Timer
// -----------------------------------------------------------------------------

// TimerTickEvent reports the running step's countdown.
type TimerTickEvent struct {
	baseEvent
	Index     int
	Elapsed   int
	Remaining int
	Budget    int
	Tier      timer.Tier
}

// NewTimerTickEvent creates a TimerTickEvent from a tick report.
func NewTimerTickEvent(r timer.Report) TimerTickEvent {
	return TimerTickEvent{
		baseEvent: newBaseEvent(TypeTimerTick),
		Index:     r.Index,
		Elapsed:   r.Elapsed,
		Remaining: r.Remaining,
		Budget:    r.Budget,
		Tier:      r.Tier,
	}
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// ResultSubmittedEvent is emitted after every accepted submission.
type ResultSubmittedEvent struct {
	baseEvent
	Index    int
	Value    session.Value
	Status   session.Status
	Duration int
}

// NewResultSubmittedEvent creates a ResultSubmittedEvent.
func NewResultSubmittedEvent(index int, value session.Value, status session.Status, duration int) ResultSubmittedEvent {
	return ResultSubmittedEvent{
		baseEvent: newBaseEvent(TypeResultSubmitted),
		Index:     index,
		Value:     value,
		Status:    status,
		Duration:  duration,
	}
}

// ResultChangedEvent is emitted when a submission changes a step's value.
type ResultChangedEvent struct {
	baseEvent
	Index int
	Old   session.Value
	New   session.Value
}

// NewResultChangedEvent creates a ResultChangedEvent.
func NewResultChangedEvent(index int, old, new session.Value) ResultChangedEvent {
	return ResultChangedEvent{
		baseEvent: newBaseEvent(TypeResultChanged),
		Index:     index,
		Old:       old,
		New:       new,
	}
}

// SubmissionRejectedEvent is emitted when a submission is refused before it
// reaches the recorder.
type SubmissionRejectedEvent struct {
	baseEvent
	Index  int
	Reason string
}

// NewSubmissionRejectedEvent creates a SubmissionRejectedEvent.
func NewSubmissionRejectedEvent(index int, reason string) SubmissionRejectedEvent {
	return SubmissionRejectedEvent{
		baseEvent: newBaseEvent(TypeSubmissionRejected),
		Index:     index,
		Reason:    reason,
	}
}
