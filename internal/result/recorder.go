// Package result validates submitted step results and writes them into step
// records.
//
// [Validate] is the pure pre-check a console or UI calls for feedback.
// [Recorder.Save] is the authoritative write. Both go through the same
// evaluation, so a pre-check can never disagree with the status Save records.
//
// An out-of-range or unparseable numeric value is still recorded, with status
// failed: operators must be able to log an out-of-spec measurement. Pass/fail
// tokens must be resolved before Save; an unresolved token is refused.
package result

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"stepwise/internal/catalog"
	"stepwise/internal/session"
)

// ErrUnresolvedToken is returned when a pass/fail submission does not carry
// a recognised token.
var ErrUnresolvedToken = errors.New("unresolved pass/fail token")

// Tokens is the table of accepted spellings for each verdict.
type Tokens struct {
	Pass []string `mapstructure:"pass"`
	Fail []string `mapstructure:"fail"`
}

// DefaultTokens accepts the English and Turkish spellings.
func DefaultTokens() Tokens {
	return Tokens{
		Pass: []string{"PASS", "GEÇTİ"},
		Fail: []string{"FAIL", "KALDI"},
	}
}

// Resolve maps raw operator input to a token. Matching ignores surrounding
// whitespace and case.
func (t Tokens) Resolve(raw string) (session.Token, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, s := range t.Pass {
		if strings.EqualFold(s, raw) {
			return session.TokenPass, true
		}
	}
	for _, s := range t.Fail {
		if strings.EqualFold(s, raw) {
			return session.TokenFail, true
		}
	}
	return "", false
}

// Submission is one result entered by an operator.
type Submission struct {
	// Raw is the numeric text for number steps.
	Raw string

	// Token is the resolved verdict for pass/fail steps.
	Token session.Token

	Comment string

	// Validity is the caller's own pre-check, if it made one. The recorder
	// never trusts it; a disagreement is logged.
	Validity *bool

	// By names the operator submitting.
	By string
}

// Outcome describes what Save wrote.
type Outcome struct {
	Status  session.Status
	Value   session.Value
	Elapsed int
	Changed bool
}

// ElapsedReader supplies the elapsed seconds recorded with a result.
type ElapsedReader interface {
	Elapsed(index int) int
}

// Listener receives the notifications Save raises.
type Listener interface {
	// ResultChanged fires only when the stored value differs from before.
	ResultChanged(index int, old, new session.Value)

	// ResultSaved fires on every save.
	ResultSaved(index int, value session.Value, status session.Status)
}

// Validate reports whether a submission would be recorded as passed.
//
// Steps without input always pass. Numbers must parse and fall inside the
// inclusive bounds. Pass/fail steps pass only with [session.TokenPass].
func Validate(kind catalog.InputKind, raw string, token session.Token, bounds catalog.Bounds) bool {
	_, status := evaluate(kind, raw, token, bounds)
	return status == session.StatusPassed
}

func evaluate(kind catalog.InputKind, raw string, token session.Token, bounds catalog.Bounds) (session.Value, session.Status) {
	switch kind {
	case catalog.InputNumber:
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return session.Absent(), session.StatusFailed
		}
		n, ok := parseNumber(raw)
		if !ok {
			return session.TextValue(raw), session.StatusFailed
		}
		if !bounds.Contains(n) {
			return session.NumberValue(n), session.StatusFailed
		}
		return session.NumberValue(n), session.StatusPassed

	case catalog.InputPassFail:
		switch token {
		case session.TokenPass:
			return session.TokenValue(token), session.StatusPassed
		case session.TokenFail:
			return session.TokenValue(token), session.StatusFailed
		default:
			return session.Absent(), session.StatusFailed
		}

	default:
		return session.Absent(), session.StatusPassed
	}
}

func parseNumber(raw string) (float64, bool) {
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// Option configures a [Recorder].
type Option func(*Recorder)

// WithListener sets the notification listener.
func WithListener(l Listener) Option {
	return func(r *Recorder) { r.listener = l }
}

// WithTokens replaces the default token table.
func WithTokens(t Tokens) Option {
	return func(r *Recorder) { r.tokens = t }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// Recorder writes results into step records.
type Recorder struct {
	timer    ElapsedReader
	listener Listener
	tokens   Tokens
	logger   *slog.Logger
}

// New creates a recorder reading elapsed time from timer. A nil timer
// records zero durations.
func New(timer ElapsedReader, opts ...Option) *Recorder {
	r := &Recorder{
		timer:  timer,
		tokens: DefaultTokens(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps raw input to a token with the recorder's table.
func (r *Recorder) Resolve(raw string) (session.Token, error) {
	tok, ok := r.tokens.Resolve(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnresolvedToken, raw)
	}
	return tok, nil
}

// Save evaluates sub against step and writes the value, comment, elapsed
// seconds, status, and submitter into rec.
//
// A pass/fail step without a valid token returns [ErrUnresolvedToken] and
// leaves rec untouched.
func (r *Recorder) Save(index int, step catalog.Step, rec *session.StepRecord, sub Submission) (Outcome, error) {
	if step.Input == catalog.InputPassFail && !sub.Token.IsValid() {
		return Outcome{}, fmt.Errorf("step %d: %w: %q", step.ID, ErrUnresolvedToken, sub.Token)
	}

	value, status := evaluate(step.Input, sub.Raw, sub.Token, step.Bounds)

	if sub.Validity != nil && *sub.Validity != (status == session.StatusPassed) {
		r.logger.Warn("caller validation disagrees with recorded status",
			"step_index", index, "caller_valid", *sub.Validity, "status", status)
	}

	elapsed := 0
	if r.timer != nil {
		elapsed = r.timer.Elapsed(index)
	}

	old := rec.Value
	rec.Value = value
	rec.Comment = sub.Comment
	rec.Duration = elapsed
	rec.Status = status
	rec.CompletedBy = sub.By

	changed := !old.Equal(value)
	if r.listener != nil {
		if changed {
			r.listener.ResultChanged(index, old, value)
		}
		r.listener.ResultSaved(index, value, status)
	}

	r.logger.Info("result saved",
		"step_index", index, "step_id", step.ID, "value", value.String(), "status", status, "elapsed", elapsed)

	return Outcome{Status: status, Value: value, Elapsed: elapsed, Changed: changed}, nil
}
