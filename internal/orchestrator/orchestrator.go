// Package orchestrator runs one session of a procedure: it owns the active
// step index, the step records, and the session lifecycle.
//
// The orchestrator is the only component callers drive directly. It consults
// the navigation rules before every move, hands the timer off explicitly
// (stop the old step, then start the new one), and records results through
// the result recorder.
//
// Commands and timer ticks are serialised by one mutex. Events raised during a
// call are buffered and published on the [event.Bus] in order, after the
// orchestrator's state lock is released and before the call returns, so
// handlers may query the orchestrator. Handlers must not issue commands.
//
// Key types:
//   - [Orchestrator] drives a session from created to completed
//   - [State] is the session lifecycle state
//   - [Rejection] carries the user-visible reason a command was refused
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stepwise/internal/catalog"
	"stepwise/internal/event"
	"stepwise/internal/navigation"
	"stepwise/internal/result"
	"stepwise/internal/session"
	"stepwise/internal/timer"
)

// State is the lifecycle state of a session.
type State string

const (
	StateCreated   State = "created"
	StateActive    State = "active"
	StateCompleted State = "completed"
)

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	switch s {
	case StateCreated, StateActive, StateCompleted:
		return true
	}
	return false
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Sentinel errors for session commands.
var (
	// ErrNotActive is wrapped by rejections of commands that need an
	// active session.
	ErrNotActive = errors.New("session is not active")

	// ErrAlreadyStarted is returned by Start on a session that has left the
	// created state.
	ErrAlreadyStarted = errors.New("session already started")
)

// Rejection reports a refused command. State is unchanged when a command
// returns a Rejection.
type Rejection struct {
	// Op is the refused command: "navigate", "submit", "pause", "resume",
	// or "finish".
	Op string

	// Reason is the user-visible explanation.
	Reason string

	// Err is an optional sentinel the rejection wraps.
	Err error
}

func (r *Rejection) Error() string {
	return r.Op + " rejected: " + r.Reason
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// AsRejection extracts a [Rejection] from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Actor is the operator driving the session.
type Actor interface {
	navigation.Actor
	CanEditResults() bool
	OperatorName() string
}

// Submission is a result as entered by the operator. Token is raw text and is
// resolved against the configured token table.
type Submission struct {
	Raw      string
	Token    string
	Comment  string
	Validity *bool
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithClock replaces time.Now for the session and its default timer.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBus publishes events on bus instead of a private one.
func WithBus(bus *event.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithTimer uses engine instead of a default one. The engine must not be
// shared with another session.
func WithTimer(engine *timer.Engine) Option {
	return func(o *Orchestrator) { o.timer = engine }
}

// WithTokens sets the pass/fail token table.
func WithTokens(t result.Tokens) Option {
	return func(o *Orchestrator) { o.tokens = &t }
}

// WithInfo sets the descriptive session metadata.
func WithInfo(info session.Info) Option {
	return func(o *Orchestrator) { o.info = info }
}

// Orchestrator drives one session. Create with [New].
type Orchestrator struct {
	// emitMu spans a whole call including publication, so the events of two
	// calls never interleave. mu guards state and is released before
	// publication.
	emitMu sync.Mutex
	mu     sync.Mutex

	now    func() time.Time
	logger *slog.Logger
	bus    *event.Bus
	tokens *result.Tokens
	info   session.Info

	cat   *catalog.Catalog
	sess  *session.Session
	who   Actor
	timer *timer.Engine
	nav   *navigation.Authority
	rec   *result.Recorder

	state   State
	current int
	mode    navigation.Mode
	paused  bool
	pending []event.Event
}

// New creates a session for cat driven by who, in the created state.
//
// A nil catalog or actor, or a session whose records do not match the
// catalog, is a construction bug and returns an error.
func New(cat *catalog.Catalog, who Actor, opts ...Option) (*Orchestrator, error) {
	if cat == nil || cat.Len() == 0 {
		return nil, fmt.Errorf("%w: empty catalog", catalog.ErrInvalidCatalog)
	}
	if who == nil {
		return nil, errors.New("orchestrator requires an actor")
	}

	o := &Orchestrator{
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
		cat:     cat,
		who:     who,
		state:   StateCreated,
		current: -1,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.bus == nil {
		o.bus = event.NewBus(o.logger)
	}
	if o.timer == nil {
		o.timer = timer.New(timer.WithClock(o.now), timer.WithLogger(o.logger))
	}

	o.sess = session.New(session.NewID(o.now()), o.info, cat)
	if len(o.sess.Records) != cat.Len() {
		return nil, fmt.Errorf("%w: %d records for %d steps", session.ErrRecordMismatch, len(o.sess.Records), cat.Len())
	}
	o.logger = o.logger.With("session_id", o.sess.ID)

	o.nav = navigation.New(navigation.WithClock(o.now), navigation.WithLogger(o.logger))

	recOpts := []result.Option{result.WithListener(recorderListener{o}), result.WithLogger(o.logger)}
	if o.tokens != nil {
		recOpts = append(recOpts, result.WithTokens(*o.tokens))
	}
	o.rec = result.New(o.timer, recOpts...)

	return o, nil
}

// do runs fn under the state lock and publishes the events it raised.
func (o *Orchestrator) do(fn func() error) error {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	err := fn()
	events := o.pending
	o.pending = nil
	o.mu.Unlock()

	for _, e := range events {
		o.bus.Publish(e)
	}
	return err
}

func (o *Orchestrator) emit(e event.Event) {
	o.pending = append(o.pending, e)
}

// Start moves the session from created to active and enters step 0 in
// normal mode, starting its timer.
func (o *Orchestrator) Start() error {
	return o.do(func() error {
		if o.state != StateCreated {
			return fmt.Errorf("%w: state is %s", ErrAlreadyStarted, o.state)
		}

		now := o.now()
		o.sess.Start(now)
		o.state = StateActive
		o.current = 0
		o.mode = navigation.ModeNormal
		o.sess.Records[0].MarkStarted(now)

		step, _ := o.cat.Step(0)
		if err := o.timer.Start(0, step.Budget); err != nil {
			return err
		}

		o.logger.Info("session started", "steps", o.cat.Len(), "operator", o.who.OperatorName(), "role", o.who.RoleName())
		o.emit(event.NewSessionStartedEvent(o.sess.ID, o.cat.Len()))
		o.emit(event.NewStepChangedEvent(0, o.cat.Len(), navigation.ModeNormal))
		return nil
	})
}

// NavigateTo moves to target.
//
// The navigation rules decide whether the move is allowed and the mode the
// target is entered in. hint can upgrade a view-only backward move to edit
// mode, for actors that may edit results, and can downgrade a backward
// normal move to view-only. Other hints are ignored.
func (o *Orchestrator) NavigateTo(target int, hint navigation.Mode) error {
	return o.do(func() error {
		return o.navigateLocked(target, hint)
	})
}

func (o *Orchestrator) navigateLocked(target int, hint navigation.Mode) error {
	if o.state != StateActive {
		return o.blocked(target, "session is not active", ErrNotActive)
	}

	total := o.cat.Len()
	if ok, reason := o.nav.CanNavigate(o.current, target, total, o.sess.Records, o.who); !ok {
		return o.blocked(target, reason, nil)
	}

	mode := navigation.DetermineMode(o.current, target, o.sess.Records[target].Status)
	switch hint {
	case navigation.ModeEdit:
		if mode == navigation.ModeViewOnly {
			if !o.who.CanEditResults() {
				return o.blocked(target, fmt.Sprintf("role %q may not edit results", o.who.RoleName()), nil)
			}
			mode = navigation.ModeEdit
		}
	case navigation.ModeViewOnly:
		if target < o.current {
			mode = navigation.ModeViewOnly
		}
	}

	from := o.current
	leaving := &o.sess.Records[from]
	if target > from && leaving.Status == session.StatusInProgress {
		leaving.Status = session.StatusSkipped
		o.logger.Info("step skipped", "step_index", from, "step_id", leaving.StepID)
	}

	o.timer.Stop(from)
	o.nav.Record(from, target)
	o.current = target
	o.mode = mode
	o.paused = false

	if mode == navigation.ModeNormal {
		o.sess.Records[target].MarkStarted(o.now())
		step, _ := o.cat.Step(target)
		if err := o.timer.Start(target, step.Budget); err != nil {
			return err
		}
	}

	o.logger.Info("step changed", "from", from, "to", target, "mode", mode)
	o.emit(event.NewStepChangedEvent(target, total, mode))
	return nil
}

func (o *Orchestrator) blocked(target int, reason string, err error) error {
	o.logger.Info("navigation blocked", "from", o.current, "to", target, "reason", reason)
	o.emit(event.NewNavigationBlockedEvent(o.current, target, reason))
	return &Rejection{Op: "navigate", Reason: reason, Err: err}
}

func (o *Orchestrator) rejectSubmission(reason string, err error) error {
	o.logger.Info("submission rejected", "step_index", o.current, "reason", reason)
	o.emit(event.NewSubmissionRejectedEvent(o.current, reason))
	return &Rejection{Op: "submit", Reason: reason, Err: err}
}

// SubmitResult records sub for the current step, stops its timer, and
// advances to the next step. Submitting on the last step completes the
// session. In edit mode the step is re-recorded and becomes view-only
// without advancing. View-only steps refuse submissions.
func (o *Orchestrator) SubmitResult(sub Submission) error {
	return o.do(func() error {
		if o.state != StateActive {
			return o.rejectSubmission("session is not active", ErrNotActive)
		}
		if o.mode == navigation.ModeViewOnly {
			return o.rejectSubmission("step is view-only", nil)
		}

		index := o.current
		step, _ := o.cat.Step(index)

		var token session.Token
		if step.Input == catalog.InputPassFail {
			tok, err := o.rec.Resolve(sub.Token)
			if err != nil {
				return o.rejectSubmission(fmt.Sprintf("unrecognised pass/fail value %q", sub.Token), result.ErrUnresolvedToken)
			}
			token = tok
		}

		outcome, err := o.rec.Save(index, step, &o.sess.Records[index], result.Submission{
			Raw:      sub.Raw,
			Token:    token,
			Comment:  sub.Comment,
			Validity: sub.Validity,
			By:       o.who.OperatorName(),
		})
		if err != nil {
			return err
		}
		o.timer.Stop(index)

		if o.mode == navigation.ModeEdit {
			o.mode = navigation.ModeViewOnly
			o.logger.Info("result edited", "step_index", index, "status", outcome.Status)
			o.emit(event.NewStepChangedEvent(index, o.cat.Len(), navigation.ModeViewOnly))
			return nil
		}

		if index+1 == o.cat.Len() {
			o.completeLocked(false)
			return nil
		}
		return o.navigateLocked(index+1, navigation.ModeNormal)
	})
}

// Finish ends an active session manually.
func (o *Orchestrator) Finish() error {
	return o.do(func() error {
		if o.state != StateActive {
			return &Rejection{Op: "finish", Reason: "session is not active", Err: ErrNotActive}
		}
		o.completeLocked(true)
		return nil
	})
}

func (o *Orchestrator) completeLocked(manual bool) {
	o.timer.Stop(o.current)
	o.sess.End(o.now())
	o.state = StateCompleted
	o.paused = false

	passed, failed := o.sess.PassedCount(), o.sess.FailedCount()
	o.logger.Info("session completed",
		"passed", passed, "failed", failed, "manual", manual, "duration", o.sess.DurationSeconds(o.now()))
	o.emit(event.NewTestCompletedEvent(o.sess.ID, passed, failed, manual))
}

// Pause freezes the running step's timer.
func (o *Orchestrator) Pause() error {
	return o.do(func() error {
		if o.state != StateActive {
			return &Rejection{Op: "pause", Reason: "session is not active", Err: ErrNotActive}
		}
		if o.paused || !o.timer.Running(o.current) {
			return &Rejection{Op: "pause", Reason: "no running timer"}
		}
		o.timer.Pause(o.current)
		o.paused = true
		o.emit(event.NewSessionPausedEvent(o.current))
		return nil
	})
}

// Resume restarts a paused step's timer.
func (o *Orchestrator) Resume() error {
	return o.do(func() error {
		if o.state != StateActive {
			return &Rejection{Op: "resume", Reason: "session is not active", Err: ErrNotActive}
		}
		if !o.paused {
			return &Rejection{Op: "resume", Reason: "session is not paused"}
		}
		step, _ := o.cat.Step(o.current)
		if err := o.timer.Start(o.current, step.Budget); err != nil {
			return err
		}
		o.paused = false
		o.emit(event.NewSessionResumedEvent(o.current))
		return nil
	})
}

// Tick reports the running step's timer as a timer.tick event. It does
// nothing unless the session is active with a running timer.
func (o *Orchestrator) Tick() (timer.Report, bool) {
	var (
		r  timer.Report
		ok bool
	)
	_ = o.do(func() error {
		if o.state != StateActive {
			return nil
		}
		r, ok = o.timer.Tick()
		if ok {
			o.emit(event.NewTimerTickEvent(r))
		}
		return nil
	})
	return r, ok
}

// Run ticks the session on the timer's interval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	return o.timer.Run(ctx, func() { o.Tick() })
}

// Events returns the bus the orchestrator publishes on.
func (o *Orchestrator) Events() *event.Bus {
	return o.bus
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Current returns the active step index and its mode. The index is -1
// before Start.
func (o *Orchestrator) Current() (int, navigation.Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current, o.mode
}

// Mode returns the mode of the active step.
func (o *Orchestrator) Mode() navigation.Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// Paused reports whether the running step is paused.
func (o *Orchestrator) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// Catalog returns the catalog the session runs.
func (o *Orchestrator) Catalog() *catalog.Catalog {
	return o.cat
}

// Actor returns the operator driving the session.
func (o *Orchestrator) Actor() Actor {
	return o.who
}

// SessionID returns the session identifier.
func (o *Orchestrator) SessionID() string {
	return o.sess.ID
}

// Record returns a copy of the record at index.
func (o *Orchestrator) Record(index int) (session.StepRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if index < 0 || index >= len(o.sess.Records) {
		return session.StepRecord{}, false
	}
	return o.sess.Records[index], true
}

// Remaining returns the budget left on the active step, in seconds.
func (o *Orchestrator) Remaining() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current < 0 {
		return 0
	}
	return o.timer.Remaining(o.current)
}

// Snapshot serialises the session for persistence and export.
func (o *Orchestrator) Snapshot() session.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess.Snapshot(o.cat, o.now())
}

// History returns the accepted navigations in call order.
func (o *Orchestrator) History() []navigation.Entry {
	return o.nav.History()
}

// recorderListener turns recorder notifications into buffered events. It
// runs with the state lock held.
type recorderListener struct {
	o *Orchestrator
}

func (l recorderListener) ResultChanged(index int, old, new session.Value) {
	l.o.emit(event.NewResultChangedEvent(index, old, new))
}

func (l recorderListener) ResultSaved(index int, value session.Value, status session.Status) {
	l.o.emit(event.NewResultSubmittedEvent(index, value, status, l.o.sess.Records[index].Duration))
}
