// Package session models one run of a procedure: its identity, timestamps,
// and the ordered step records that hold every recorded result.
//
// A [Session] exclusively owns its [StepRecord] values. Other components refer
// to a record by index only. The record list always has the same length and
// order as the catalog the session was created from.
//
// Key types:
//   - [Session] is the run, created from a catalog and owned by the orchestrator
//   - [StepRecord] is the mutable state of one step
//   - [Value] is the tagged result value (absent, number, token, text)
//   - [Snapshot] is the plain record handed to persistence and export
package session

import (
	"time"

	"stepwise/internal/catalog"
)

// IDLayout is the time layout session identifiers are derived from.
const IDLayout = "20060102_150405"

// NewID derives a session identifier from t.
func NewID(t time.Time) string {
	return t.Format(IDLayout)
}

// Info is descriptive metadata entered when a session is set up. It is
// carried into snapshots and reports but never read by the core.
type Info struct {
	StockNumber  string `json:"stock_number,omitempty" yaml:"stock_number,omitempty"`
	SerialNumber string `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
	Station      string `json:"station,omitempty" yaml:"station,omitempty"`
	SIPCode      string `json:"sip_code,omitempty" yaml:"sip_code,omitempty"`
	Operator     string `json:"operator,omitempty" yaml:"operator,omitempty"`
}

// StepRecord is the mutable state of one step.
type StepRecord struct {
	StepID  int
	Status  Status
	Value   Value
	Comment string

	// StartedAt is set once, on first entry into the step.
	StartedAt time.Time

	// Duration is the elapsed seconds read from the timer when the result
	// was submitted.
	Duration int

	// CompletedBy names the operator who submitted the result.
	CompletedBy string
}

// MarkStarted records entry into the step. The start timestamp is only
// written on first entry; a completed step keeps its status.
func (r *StepRecord) MarkStarted(at time.Time) {
	if r.StartedAt.IsZero() {
		r.StartedAt = at
	}
	if !r.Status.IsCompleted() {
		r.Status = StatusInProgress
	}
}

// Session is one run of a procedure.
type Session struct {
	ID        string
	Procedure string
	Info      Info
	StartedAt time.Time
	EndedAt   time.Time
	Records   []StepRecord
}

// New creates a session with one not-started record per catalog step.
func New(id string, info Info, cat *catalog.Catalog) *Session {
	steps := cat.Steps()
	records := make([]StepRecord, len(steps))
	for i, st := range steps {
		records[i] = StepRecord{
			StepID: st.ID,
			Status: StatusNotStarted,
			Value:  Absent(),
		}
	}

	return &Session{
		ID:        id,
		Procedure: cat.Name(),
		Info:      info,
		Records:   records,
	}
}

// Start stamps the session start time.
func (s *Session) Start(at time.Time) {
	s.StartedAt = at
}

// End stamps the session end time.
func (s *Session) End(at time.Time) {
	s.EndedAt = at
}

// Active reports whether the session has started and not yet ended.
func (s *Session) Active() bool {
	return !s.StartedAt.IsZero() && s.EndedAt.IsZero()
}

// Ended reports whether the session has an end timestamp.
func (s *Session) Ended() bool {
	return !s.EndedAt.IsZero()
}

// DurationSeconds returns whole seconds from start to end, or to now for a
// running session. Zero before start.
func (s *Session) DurationSeconds(now time.Time) int {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.EndedAt
	if end.IsZero() {
		end = now
	}
	return int(end.Sub(s.StartedAt).Seconds())
}

// PassedCount returns the number of passed steps.
func (s *Session) PassedCount() int {
	return s.count(StatusPassed)
}

// FailedCount returns the number of failed steps.
func (s *Session) FailedCount() int {
	return s.count(StatusFailed)
}

func (s *Session) count(st Status) int {
	n := 0
	for _, r := range s.Records {
		if r.Status == st {
			n++
		}
	}
	return n
}

// CompletionPercent returns the share of steps with a recorded verdict.
func (s *Session) CompletionPercent() float64 {
	if len(s.Records) == 0 {
		return 0
	}
	done := s.PassedCount() + s.FailedCount()
	return float64(done) / float64(len(s.Records)) * 100
}
