// Package output renders session activity for the terminal.
//
// Styles come from a lipgloss renderer bound to the destination writer, so
// colour is only emitted when the writer is a colour-capable terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"stepwise/internal/catalog"
	"stepwise/internal/navigation"
	"stepwise/internal/session"
	"stepwise/internal/timer"
)

// Printer writes formatted session output. It is safe for concurrent use;
// each call writes whole lines.
type Printer struct {
	mu  sync.Mutex
	out io.Writer

	title    lipgloss.Style
	box      lipgloss.Style
	muted    lipgloss.Style
	label    lipgloss.Style
	normal   lipgloss.Style
	warning  lipgloss.Style
	critical lipgloss.Style
	overtime lipgloss.Style
	passed   lipgloss.Style
	failed   lipgloss.Style
}

// NewPrinter creates a printer writing to stdout.
func NewPrinter() *Printer {
	return NewPrinterWithWriter(os.Stdout)
}

// NewPrinterWithWriter creates a printer writing to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		out:      w,
		title:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		box:      r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		muted:    r.NewStyle().Foreground(lipgloss.Color("8")),
		label:    r.NewStyle().Bold(true),
		normal:   r.NewStyle().Foreground(lipgloss.Color("10")),
		warning:  r.NewStyle().Foreground(lipgloss.Color("11")),
		critical: r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		overtime: r.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9")).Bold(true),
		passed:   r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		failed:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}

// SessionBanner prints the header shown when a session starts.
func (p *Printer) SessionBanner(id, procedure string, total int, operator, role string) {
	lines := []string{
		p.title.Render("Session " + id),
	}
	if procedure != "" {
		lines = append(lines, p.label.Render("Procedure: ")+procedure)
	}
	lines = append(lines,
		p.label.Render("Steps:     ")+fmt.Sprint(total),
		p.label.Render("Operator:  ")+fmt.Sprintf("%s (%s)", operator, role),
	)
	p.println(p.box.Render(strings.Join(lines, "\n")))
}

// StepBanner prints the step being entered.
func (p *Printer) StepBanner(index, total int, step catalog.Step, mode navigation.Mode, rec session.StepRecord) {
	head := fmt.Sprintf("[%d/%d] %s", index+1, total, step.Name)
	lines := []string{p.title.Render(head)}

	if step.Description != "" {
		lines = append(lines, step.Description)
	}
	if step.Image != "" {
		lines = append(lines, p.muted.Render("image: "+step.Image))
	}
	lines = append(lines, p.label.Render("Budget: ")+formatSeconds(step.Budget))

	switch step.Input {
	case catalog.InputNumber:
		caption := step.Label
		if caption == "" {
			caption = "value"
		}
		lines = append(lines, p.label.Render("Input:  ")+fmt.Sprintf("%s in %s", caption, step.Bounds))
	case catalog.InputPassFail:
		lines = append(lines, p.label.Render("Input:  ")+"pass / fail")
	}

	if mode != navigation.ModeNormal {
		lines = append(lines, p.warning.Render("mode: "+mode.String()))
	}
	if rec.Status.IsCompleted() {
		lines = append(lines, p.label.Render("Result: ")+p.status(rec.Status)+" "+rec.Value.String())
	}

	p.println(p.box.Render(strings.Join(lines, "\n")))
}

// Tick prints the countdown line for the running step.
func (p *Printer) Tick(r timer.Report) {
	p.println(p.TierStyle(r.Tier).Render(fmt.Sprintf("step %d  %s left  [%s]", r.Index+1, formatSeconds(r.Remaining), r.Tier)))
}

// TierStyle returns the style for a severity tier.
func (p *Printer) TierStyle(t timer.Tier) lipgloss.Style {
	switch t {
	case timer.TierWarning:
		return p.warning
	case timer.TierCritical:
		return p.critical
	case timer.TierOvertime:
		return p.overtime
	default:
		return p.normal
	}
}

// Result prints a recorded result.
func (p *Printer) Result(index int, value session.Value, status session.Status, duration int) {
	v := value.String()
	if v == "" {
		v = "-"
	}
	p.println(fmt.Sprintf("step %d: %s  value=%s  time=%s", index+1, p.status(status), v, formatSeconds(duration)))
}

// Blocked prints a refused command.
func (p *Printer) Blocked(reason string) {
	p.println(p.failed.Render("✗ ") + reason)
}

// Info prints a plain message.
func (p *Printer) Info(format string, args ...any) {
	p.println(fmt.Sprintf(format, args...))
}

// Muted prints a de-emphasised message.
func (p *Printer) Muted(format string, args ...any) {
	p.println(p.muted.Render(fmt.Sprintf(format, args...)))
}

// Summary prints the table of a session snapshot.
func (p *Printer) Summary(snap session.Snapshot) {
	p.println(p.title.Render("Session " + snap.SessionID))
	if snap.Procedure != "" {
		p.println(p.label.Render("Procedure: ") + snap.Procedure)
	}
	if snap.Info.Station != "" || snap.Info.StockNumber != "" {
		p.println(p.label.Render("Station:   ") + snap.Info.Station + "  " + p.label.Render("Stock: ") + snap.Info.StockNumber)
	}

	p.println(fmt.Sprintf("%-4s %-28s %-12s %-12s %8s", "#", "STEP", "STATUS", "VALUE", "TIME"))
	for i, st := range snap.Steps {
		v := st.Value.String()
		if v == "" {
			v = "-"
		}
		p.println(fmt.Sprintf("%-4d %-28s %s %-12s %8s",
			i+1, truncate(st.Name, 28), pad(p.status(st.Status), string(st.Status), 12), truncate(v, 12), formatSeconds(st.Duration)))
	}

	p.println(fmt.Sprintf("passed %d  failed %d  complete %.0f%%  duration %s",
		snap.PassedCount, snap.FailedCount, snap.CompletionPercent, formatSeconds(snap.DurationSeconds)))
}

// Catalog prints the steps of a catalog.
func (p *Printer) Catalog(c *catalog.Catalog) {
	if c.Name() != "" {
		p.println(p.title.Render(c.Name()))
	}
	total := 0
	for i, st := range c.Steps() {
		input := st.Input.String()
		if st.Input == catalog.InputNumber {
			input += " " + st.Bounds.String()
		}
		p.println(fmt.Sprintf("%-4d %-6d %-28s %8s  %s", i+1, st.ID, truncate(st.Name, 28), formatSeconds(st.Budget), input))
		total += st.Budget
	}
	p.println(p.muted.Render(fmt.Sprintf("%d steps, total budget %s", c.Len(), formatSeconds(total))))
}

func (p *Printer) status(s session.Status) string {
	switch s {
	case session.StatusPassed:
		return p.passed.Render(s.String())
	case session.StatusFailed:
		return p.failed.Render(s.String())
	default:
		return p.muted.Render(s.String())
	}
}

// pad right-pads a styled string by the width of its plain text.
func pad(styled, plain string, width int) string {
	if n := width - len(plain); n > 0 {
		return styled + strings.Repeat(" ", n)
	}
	return styled
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// formatSeconds renders seconds as m:ss, with a leading minus when negative.
func formatSeconds(s int) string {
	sign := ""
	if s < 0 {
		sign = "-"
		s = -s
	}
	return fmt.Sprintf("%s%d:%02d", sign, s/60, s%60)
}
