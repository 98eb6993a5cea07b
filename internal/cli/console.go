package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"stepwise/internal/auth"
	"stepwise/internal/catalog"
	"stepwise/internal/navigation"
	"stepwise/internal/orchestrator"
	"stepwise/internal/output"
	"stepwise/internal/result"
)

const consoleHelp = `commands:
  submit <value> [comment]   record a measurement or verdict for the current step
  pass [comment]             record PASS for a pass/fail step
  fail [comment]             record FAIL for a pass/fail step
  done [comment]             complete a step that takes no input
  goto <n>                   move to step n
  view <n>                   open step n read-only
  edit <n>                   reopen completed step n to change its result
  pause | resume             freeze or restart the step timer
  status                     show the current step
  steps                      list all steps with their status
  export <path>              write the session report to path (.csv for a table)
  finish                     end the session now
  help                       show this help`

// errUnknownCommand is returned for console input that names no command.
var errUnknownCommand = errors.New("unknown command")

// console turns operator input lines into orchestrator commands.
type console struct {
	orch    *orchestrator.Orchestrator
	printer *output.Printer
	who     auth.Principal
	tokens  result.Tokens
}

// loop executes lines from in until the session completes, in ends, or ctx
// is done. Input is read on its own goroutine so a blocked read never holds
// up cancellation.
func (c *console) loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for c.orch.State() != orchestrator.StateCompleted {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c.exec(line)
		}
	}
	return nil
}

// exec runs one input line. Rejections of navigation and submission are
// reported by the event handlers, so exec only prints the errors nothing else
// has shown.
func (c *console) exec(line string) {
	if err := c.dispatch(line); err != nil {
		if rej, ok := orchestrator.AsRejection(err); ok && (rej.Op == "navigate" || rej.Op == "submit") {
			return
		}
		c.printer.Blocked(err.Error())
	}
}

func (c *console) dispatch(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]
	rest := strings.Join(args, " ")

	switch name {
	case "submit", "s":
		if len(args) == 0 {
			return errors.New("usage: submit <value> [comment]")
		}
		return c.submit(args[0], strings.Join(args[1:], " "))
	case "pass", "fail":
		return c.verdict(name, rest)
	case "done", "d":
		return c.orch.SubmitResult(orchestrator.Submission{Comment: rest})
	case "goto", "g":
		return c.navigate(args, navigation.ModeNormal)
	case "view", "v":
		return c.navigate(args, navigation.ModeViewOnly)
	case "edit", "e":
		return c.navigate(args, navigation.ModeEdit)
	case "pause":
		if err := c.orch.Pause(); err != nil {
			return err
		}
		c.printer.Muted("paused")
		return nil
	case "resume":
		if err := c.orch.Resume(); err != nil {
			return err
		}
		c.printer.Muted("resumed")
		return nil
	case "status":
		c.status()
		return nil
	case "steps":
		c.printer.Summary(c.orch.Snapshot())
		return nil
	case "export":
		return c.export(rest)
	case "finish", "quit", "q":
		return c.orch.Finish()
	case "help", "h", "?":
		c.printer.Info("%s", consoleHelp)
		return nil
	default:
		return fmt.Errorf("%w %q, type help", errUnknownCommand, name)
	}
}

// submit records value for the current step. On a pass/fail step value is
// taken as the verdict token.
func (c *console) submit(value, comment string) error {
	index, _ := c.orch.Current()
	step, ok := c.orch.Catalog().Step(index)
	if ok && step.Input == catalog.InputPassFail {
		return c.orch.SubmitResult(orchestrator.Submission{Token: value, Comment: comment})
	}
	return c.orch.SubmitResult(orchestrator.Submission{Raw: value, Comment: comment})
}

// verdict submits the first configured spelling of the pass or fail token.
func (c *console) verdict(name, comment string) error {
	spellings := c.tokens.Pass
	if name == "fail" {
		spellings = c.tokens.Fail
	}
	if len(spellings) == 0 {
		return fmt.Errorf("no %s token configured", name)
	}
	return c.orch.SubmitResult(orchestrator.Submission{Token: spellings[0], Comment: comment})
}

// navigate parses a 1-based step number.
func (c *console) navigate(args []string, hint navigation.Mode) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <step number>", hintVerb(hint))
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid step number %q", args[0])
	}
	return c.orch.NavigateTo(n-1, hint)
}

func hintVerb(hint navigation.Mode) string {
	switch hint {
	case navigation.ModeViewOnly:
		return "view"
	case navigation.ModeEdit:
		return "edit"
	default:
		return "goto"
	}
}

func (c *console) status() {
	index, mode := c.orch.Current()
	if index < 0 {
		c.printer.Muted("session %s is %s", c.orch.SessionID(), c.orch.State())
		return
	}
	step, _ := c.orch.Catalog().Step(index)
	rec, _ := c.orch.Record(index)
	c.printer.StepBanner(index, c.orch.Catalog().Len(), step, mode, rec)

	state := "running"
	if c.orch.Paused() {
		state = "paused"
	}
	if mode == navigation.ModeNormal {
		c.printer.Muted("%s, %ds left", state, c.orch.Remaining())
	}
}

func (c *console) export(path string) error {
	if !c.who.CanExport() {
		return fmt.Errorf("role %q may not export reports", c.who.RoleName())
	}
	if path == "" {
		return errors.New("usage: export <path>")
	}
	if err := writeReport(path, c.orch.Snapshot()); err != nil {
		return err
	}
	c.printer.Info("exported %s", path)
	return nil
}
