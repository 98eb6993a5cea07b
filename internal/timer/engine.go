// Package timer keeps one countdown per step index and reports the running
// one on a fixed interval.
//
// Only one timer runs at a time. Previously visited steps keep a frozen
// elapsed value that resumes when the step is started again. Hand-off is
// explicit: [Engine.Start] refuses to run while another index is running, so
// every second of elapsed time is attributable to exactly one step.
//
// Key types:
//   - [Engine] owns the per-index timer state and the tick loop
//   - [Report] is what subscribers receive on each tick
//   - [Tier] and [Thresholds] classify remaining time
package timer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the tick interval used when none is configured.
const DefaultInterval = time.Second

// ErrAnotherRunning is returned by [Engine.Start] when a different index is
// still running. Stop it first.
var ErrAnotherRunning = errors.New("another timer is running")

// Report is the state of the running timer at one tick.
type Report struct {
	Index     int
	Elapsed   int
	Remaining int
	Budget    int
	Tier      Tier
}

// TickFunc receives tick reports.
type TickFunc func(Report)

// Option configures an [Engine].
type Option func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithInterval sets the tick interval used by [Engine.Run].
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithThresholds sets the tier boundaries.
func WithThresholds(th Thresholds) Option {
	return func(e *Engine) { e.thresholds = th }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

type state struct {
	startedAt   time.Time
	accumulated time.Duration
	paused      bool
	budget      int
}

// Engine owns every step timer of a session. It is safe for concurrent use.
type Engine struct {
	mu         sync.Mutex
	now        func() time.Time
	interval   time.Duration
	thresholds Thresholds
	logger     *slog.Logger

	timers map[int]*state
	active int
	subs   []TickFunc
}

// New creates an engine with no timers.
func New(opts ...Option) *Engine {
	e := &Engine{
		now:        time.Now,
		interval:   DefaultInterval,
		thresholds: DefaultThresholds(),
		logger:     slog.New(slog.DiscardHandler),
		timers:     make(map[int]*state),
		active:     -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins or resumes counting for index with the given budget.
//
// Starting the index that is already running is a logged no-op. Starting
// while another index runs returns [ErrAnotherRunning] and changes nothing.
func (e *Engine) Start(index, budget int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active >= 0 && e.active != index {
		e.logger.Warn("timer start refused, another timer is running",
			"step_index", index, "running_index", e.active)
		return fmt.Errorf("%w: step %d", ErrAnotherRunning, e.active)
	}

	st, ok := e.timers[index]
	if ok && !st.paused {
		e.logger.Warn("timer already running", "step_index", index)
		return nil
	}
	if !ok {
		st = &state{}
		e.timers[index] = st
	}

	st.startedAt = e.now()
	st.paused = false
	st.budget = budget
	e.active = index

	e.logger.Info("timer started",
		"step_index", index, "budget", budget, "elapsed", seconds(st.accumulated))
	return nil
}

// Stop freezes the timer for index and returns its total elapsed seconds.
// Calling Stop again returns the same value. Unknown indexes return 0.
func (e *Engine) Stop(index int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.timers[index]
	if !ok {
		e.logger.Debug("stop on unknown timer", "step_index", index)
		return 0
	}

	if !st.paused {
		st.accumulated += e.now().Sub(st.startedAt)
		st.paused = true
		e.logger.Info("timer stopped", "step_index", index, "elapsed", seconds(st.accumulated))
	}
	if e.active == index {
		e.active = -1
	}

	return seconds(st.accumulated)
}

// Pause freezes the timer for index. [Engine.Start] resumes it.
func (e *Engine) Pause(index int) {
	e.Stop(index)
}

// Elapsed returns whole seconds counted for index so far.
func (e *Engine) Elapsed(index int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.timers[index]
	if !ok {
		return 0
	}
	return seconds(e.elapsedLocked(st))
}

// Remaining returns budget minus elapsed for index, negative when overtime.
func (e *Engine) Remaining(index int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.timers[index]
	if !ok {
		return 0
	}
	return st.budget - seconds(e.elapsedLocked(st))
}

// Budget returns the budget last assigned to index.
func (e *Engine) Budget(index int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st, ok := e.timers[index]; ok {
		return st.budget
	}
	return 0
}

// Running reports whether index is the running timer.
func (e *Engine) Running(index int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.active >= 0 && e.active == index
}

// Active returns the running index, if any.
func (e *Engine) Active() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.active, e.active >= 0
}

// Tier classifies remaining against budget with the engine's thresholds.
func (e *Engine) Tier(remaining, budget int) Tier {
	return e.thresholds.Tier(remaining, budget)
}

// Subscribe registers fn to receive every tick report.
func (e *Engine) Subscribe(fn TickFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subs = append(e.subs, fn)
}

// Tick reports the running timer to subscribers. With no running timer
// nothing is reported and ok is false. Subscribers run after the engine's
// lock is released and may query the engine.
func (e *Engine) Tick() (r Report, ok bool) {
	e.mu.Lock()
	if e.active < 0 {
		e.mu.Unlock()
		return Report{}, false
	}

	st := e.timers[e.active]
	elapsed := seconds(e.elapsedLocked(st))
	r = Report{
		Index:     e.active,
		Elapsed:   elapsed,
		Remaining: st.budget - elapsed,
		Budget:    st.budget,
	}
	r.Tier = e.thresholds.Tier(r.Remaining, r.Budget)
	subs := make([]TickFunc, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(r)
	}
	return r, true
}

// Run ticks every interval until ctx is done and returns ctx.Err().
//
// Each tick calls step, or [Engine.Tick] when step is nil. Callers that must
// serialise ticks with their own state pass a step that takes their lock.
func (e *Engine) Run(ctx context.Context, step func()) error {
	if step == nil {
		step = func() { e.Tick() }
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			step()
		}
	}
}

// Reset drops all timers.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.timers = make(map[int]*state)
	e.active = -1
	e.logger.Info("all timers reset")
}

func (e *Engine) elapsedLocked(st *state) time.Duration {
	if st.paused {
		return st.accumulated
	}
	return st.accumulated + e.now().Sub(st.startedAt)
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
