package session

import (
	"errors"
	"fmt"
	"time"

	"stepwise/internal/catalog"
)

// ErrRecordMismatch signals that step records and step definitions no longer
// correspond 1:1. It is never recoverable.
var ErrRecordMismatch = errors.New("step records do not match catalog")

// Snapshot is the plain, serialisable form of a session. Its shape is the
// contract relied on by the continuous writer and report exporters.
type Snapshot struct {
	SessionID         string         `json:"session_id"`
	Procedure         string         `json:"procedure,omitempty"`
	Info              Info           `json:"info"`
	StartedAt         time.Time      `json:"start_time,omitzero"`
	EndedAt           time.Time      `json:"end_time,omitzero"`
	DurationSeconds   int            `json:"duration_seconds"`
	CompletionPercent float64        `json:"completion_percentage"`
	PassedCount       int            `json:"passed_count"`
	FailedCount       int            `json:"failed_count"`
	Steps             []StepSnapshot `json:"steps"`
}

// StepSnapshot is one step of a [Snapshot]: the definition fields a report
// needs plus the full record state.
type StepSnapshot struct {
	StepID      int             `json:"step_id"`
	Name        string          `json:"name"`
	Budget      int             `json:"time_limit"`
	Input       string          `json:"input_type"`
	Bounds      *catalog.Bounds `json:"input_validation,omitempty"`
	Status      Status          `json:"status"`
	Value       Value           `json:"result_value"`
	Comment     string          `json:"comment,omitempty"`
	StartedAt   time.Time       `json:"start_time,omitzero"`
	Duration    int             `json:"actual_duration"`
	CompletedBy string          `json:"completed_by,omitempty"`
}

// Snapshot captures the session against the catalog it was created from.
// The caller must hold whatever lock guards s.
func (s *Session) Snapshot(cat *catalog.Catalog, now time.Time) Snapshot {
	steps := make([]StepSnapshot, len(s.Records))
	for i, r := range s.Records {
		def, _ := cat.Step(i)
		ss := StepSnapshot{
			StepID:      r.StepID,
			Name:        def.Name,
			Budget:      def.Budget,
			Input:       string(def.Input),
			Status:      r.Status,
			Value:       r.Value,
			Comment:     r.Comment,
			StartedAt:   r.StartedAt,
			Duration:    r.Duration,
			CompletedBy: r.CompletedBy,
		}
		if def.Input == catalog.InputNumber {
			b := def.Bounds
			ss.Bounds = &b
		}
		steps[i] = ss
	}

	return Snapshot{
		SessionID:         s.ID,
		Procedure:         s.Procedure,
		Info:              s.Info,
		StartedAt:         s.StartedAt,
		EndedAt:           s.EndedAt,
		DurationSeconds:   s.DurationSeconds(now),
		CompletionPercent: s.CompletionPercent(),
		PassedCount:       s.PassedCount(),
		FailedCount:       s.FailedCount(),
		Steps:             steps,
	}
}

// Rehydrate rebuilds a session from a snapshot.
//
// When cat is non-nil the snapshot must describe exactly its steps, in order;
// otherwise [ErrRecordMismatch] is returned. Unknown statuses are rejected.
func Rehydrate(snap Snapshot, cat *catalog.Catalog) (*Session, error) {
	if cat != nil && cat.Len() != len(snap.Steps) {
		return nil, fmt.Errorf("%w: snapshot has %d steps, catalog has %d", ErrRecordMismatch, len(snap.Steps), cat.Len())
	}

	records := make([]StepRecord, len(snap.Steps))
	for i, ss := range snap.Steps {
		if cat != nil {
			def, _ := cat.Step(i)
			if def.ID != ss.StepID {
				return nil, fmt.Errorf("%w: position %d holds step %d, catalog expects %d", ErrRecordMismatch, i, ss.StepID, def.ID)
			}
		}
		if !ss.Status.IsValid() {
			return nil, fmt.Errorf("step %d: unknown status %q", ss.StepID, ss.Status)
		}
		v := ss.Value
		if v.IsAbsent() {
			v = Absent()
		}
		records[i] = StepRecord{
			StepID:      ss.StepID,
			Status:      ss.Status,
			Value:       v,
			Comment:     ss.Comment,
			StartedAt:   ss.StartedAt,
			Duration:    ss.Duration,
			CompletedBy: ss.CompletedBy,
		}
	}

	return &Session{
		ID:        snap.SessionID,
		Procedure: snap.Procedure,
		Info:      snap.Info,
		StartedAt: snap.StartedAt,
		EndedAt:   snap.EndedAt,
		Records:   records,
	}, nil
}
