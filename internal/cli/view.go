package cli

import (
	"stepwise/internal/event"
	"stepwise/internal/orchestrator"
	"stepwise/internal/output"
	"stepwise/internal/timer"
)

// sessionView renders session events. Handlers run serialised by the
// orchestrator, after its state lock is released, so they may query it.
type sessionView struct {
	printer *output.Printer
	orch    *orchestrator.Orchestrator

	// tick lines are printed only when the step or its tier changes
	lastIndex int
	lastTier  timer.Tier
}

func newSessionView(p *output.Printer, o *orchestrator.Orchestrator) *sessionView {
	return &sessionView{printer: p, orch: o, lastIndex: -1}
}

// attach subscribes the view to bus and returns the detach function.
func (v *sessionView) attach(bus *event.Bus) func() {
	id := bus.SubscribeAll(v.handle)
	return func() { bus.Unsubscribe(id) }
}

func (v *sessionView) handle(e event.Event) {
	switch ev := e.(type) {
	case event.SessionStartedEvent:
		who := v.orch.Actor()
		v.printer.SessionBanner(ev.SessionID, v.orch.Catalog().Name(), ev.Total, who.OperatorName(), who.RoleName())

	case event.StepChangedEvent:
		step, _ := v.orch.Catalog().Step(ev.Index)
		rec, _ := v.orch.Record(ev.Index)
		v.printer.StepBanner(ev.Index, ev.Total, step, ev.Mode, rec)
		v.lastIndex, v.lastTier = -1, ""

	case event.TimerTickEvent:
		if ev.Index == v.lastIndex && ev.Tier == v.lastTier {
			return
		}
		v.lastIndex, v.lastTier = ev.Index, ev.Tier
		v.printer.Tick(timer.Report{
			Index:     ev.Index,
			Elapsed:   ev.Elapsed,
			Remaining: ev.Remaining,
			Budget:    ev.Budget,
			Tier:      ev.Tier,
		})

	case event.ResultSubmittedEvent:
		v.printer.Result(ev.Index, ev.Value, ev.Status, ev.Duration)

	case event.ResultChangedEvent:
		if !ev.Old.IsAbsent() {
			v.printer.Muted("step %d changed from %s to %s", ev.Index+1, ev.Old, ev.New)
		}

	case event.NavigationBlockedEvent:
		v.printer.Blocked(ev.Reason)

	case event.SubmissionRejectedEvent:
		v.printer.Blocked(ev.Reason)

	case event.TestCompletedEvent:
		v.printer.Summary(v.orch.Snapshot())
	}
}
