// Package navigation decides whether a move between steps is allowed and in
// which mode the destination step is entered.
//
// The rules are pure functions of their inputs. [Authority] adds the one piece
// of state the package owns: an append-only history of accepted moves.
//
// Key types:
//   - [Mode] is how a destination step is entered (normal, view-only, edit)
//   - [Actor] is the capability view of the caller
//   - [Authority] records accepted moves for audit
package navigation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stepwise/internal/session"
)

// Mode is the navigation intent for the destination step.
type Mode string

const (
	// ModeNormal enters the step fresh: its timer starts.
	ModeNormal Mode = "normal"

	// ModeViewOnly inspects a step without starting its timer or accepting edits.
	ModeViewOnly Mode = "view_only"

	// ModeEdit re-opens a completed step so its result can be re-recorded.
	ModeEdit Mode = "edit"
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeNormal, ModeViewOnly, ModeEdit:
		return true
	}
	return false
}

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// Rejection reasons.
const (
	ReasonInvalidIndex   = "invalid index"
	ReasonAlreadyThere   = "already there"
	ReasonRecordMismatch = "step records do not match step count"
)

// Actor is what navigation needs to know about the caller.
type Actor interface {
	RoleName() string
	CanNavigateBack() bool
}

// CanNavigate applies the movement rules in order:
//  1. target outside [0, total) is refused
//  2. target equal to current is refused
//  3. backward moves need the navigate-back capability
//  4. forward moves are always allowed
//
// records must hold exactly total entries. A nil actor has no capabilities.
func CanNavigate(current, target, total int, records []session.StepRecord, who Actor) (bool, string) {
	if len(records) != total {
		return false, ReasonRecordMismatch
	}
	if target < 0 || target >= total {
		return false, ReasonInvalidIndex
	}
	if target == current {
		return false, ReasonAlreadyThere
	}
	if target < current {
		if who == nil || !who.CanNavigateBack() {
			return false, backwardReason(who)
		}
	}
	return true, ""
}

func backwardReason(who Actor) string {
	if who == nil || who.RoleName() == "" {
		return "backward navigation requires the navigate-back capability"
	}
	return fmt.Sprintf("role %q may not navigate backward", who.RoleName())
}

// DetermineMode picks the mode for entering target from current.
//
// A backward move into a passed or failed step is view-only. Every other
// move is normal. Re-entering the current index is view-only.
func DetermineMode(current, target int, targetStatus session.Status) Mode {
	if target == current {
		return ModeViewOnly
	}
	if target < current && targetStatus.IsCompleted() {
		return ModeViewOnly
	}
	return ModeNormal
}

// Entry is one accepted move.
type Entry struct {
	From int       `json:"from"`
	To   int       `json:"to"`
	At   time.Time `json:"at"`
}

// Option configures an [Authority].
type Option func(*Authority)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authority) {
		if l != nil {
			a.logger = l
		}
	}
}

// Authority holds the navigation history of one session.
type Authority struct {
	mu      sync.Mutex
	now     func() time.Time
	logger  *slog.Logger
	history []Entry
}

// New creates an authority with an empty history.
func New(opts ...Option) *Authority {
	a := &Authority{
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CanNavigate applies [CanNavigate] and logs refusals.
func (a *Authority) CanNavigate(current, target, total int, records []session.StepRecord, who Actor) (bool, string) {
	ok, reason := CanNavigate(current, target, total, records, who)
	if !ok {
		a.logger.Info("navigation refused", "from", current, "to", target, "reason", reason)
	}
	return ok, reason
}

// Record appends a move to the history.
func (a *Authority) Record(from, to int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = append(a.history, Entry{From: from, To: to, At: a.now()})
	a.logger.Debug("navigation recorded", "from", from, "to", to, "entries", len(a.history))
}

// History returns a copy of the recorded moves in call order.
func (a *Authority) History() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Entry, len(a.history))
	copy(out, a.history)
	return out
}

// Len returns the number of recorded moves.
func (a *Authority) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.history)
}
