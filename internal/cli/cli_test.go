package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepwise/internal/export"
	"stepwise/internal/session"
	"stepwise/internal/snapshot"
)

func TestExitError(t *testing.T) {
	err := NewExitError(3)
	assert.Equal(t, "exit status 3", err.Error())

	code, ok := IsExitError(err)
	assert.True(t, ok)
	assert.Equal(t, 3, code)

	code, ok = IsExitError(fmt.Errorf("wrapped: %w", err))
	assert.True(t, ok)
	assert.Equal(t, 3, code)

	_, ok = IsExitError(errors.New("plain"))
	assert.False(t, ok)

	_, ok = IsExitError(nil)
	assert.False(t, ok)
}

func TestVerdict(t *testing.T) {
	steps := make([]session.StepSnapshot, 2)

	tests := []struct {
		name     string
		snap     session.Snapshot
		wantCode int
	}{
		{"all passed", session.Snapshot{Steps: steps, PassedCount: 2}, 0},
		{"one failed", session.Snapshot{Steps: steps, PassedCount: 1, FailedCount: 1}, ExitFailed},
		{"missing result", session.Snapshot{Steps: steps, PassedCount: 1}, ExitIncomplete},
		{"failed wins over missing", session.Snapshot{Steps: steps, FailedCount: 1}, ExitFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verdict(tt.snap)
			if tt.wantCode == 0 {
				assert.NoError(t, err)
				return
			}
			code, ok := IsExitError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestCheckCommand(t *testing.T) {
	app, buf := testApp(t)
	path := createCatalogFile(t, threeStepCatalog)

	require.NoError(t, execute(t, app, "check", path))

	out := buf.String()
	assert.Contains(t, out, "PSU acceptance")
	assert.Contains(t, out, "Measure output voltage")
	assert.Contains(t, out, "number [11.5, 12.5]")
	assert.Contains(t, out, "3 steps, total budget 1:50")
}

func TestCheckCommand_Invalid(t *testing.T) {
	app, _ := testApp(t)
	path := createCatalogFile(t, `steps:
  - id: 1
    name: bad
    budget: 0
`)

	err := execute(t, app, "check", path)

	require.Error(t, err)
	_, isExit := IsExitError(err)
	assert.False(t, isExit)
}

func TestCheckCommand_MissingFile(t *testing.T) {
	app, _ := testApp(t)

	err := execute(t, app, "check", filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read catalog")
}

func TestRunCommand_Session(t *testing.T) {
	tests := []struct {
		name       string
		script     []string
		wantCode   int
		wantOut    []string
		wantStatus []session.Status
	}{
		{
			name:       "all steps pass",
			script:     []string{"submit 12.1", "pass", "done"},
			wantOut:    []string{"[1/3] Measure output voltage", "[2/3] Inspect connectors", "[3/3] Apply label", "passed 3  failed 0  complete 100%"},
			wantStatus: []session.Status{session.StatusPassed, session.StatusPassed, session.StatusPassed},
		},
		{
			name:       "out of range value fails",
			script:     []string{"submit 13", "pass", "done"},
			wantCode:   ExitFailed,
			wantOut:    []string{"passed 2  failed 1"},
			wantStatus: []session.Status{session.StatusFailed, session.StatusPassed, session.StatusPassed},
		},
		{
			name:       "verdict typed with submit",
			script:     []string{"submit 12", "submit KALDI", "done"},
			wantCode:   ExitFailed,
			wantStatus: []session.Status{session.StatusPassed, session.StatusFailed, session.StatusPassed},
		},
		{
			name:       "input ends early",
			script:     []string{"submit 12"},
			wantCode:   ExitIncomplete,
			wantOut:    []string{"passed 1  failed 0"},
			wantStatus: []session.Status{session.StatusPassed, session.StatusInProgress, session.StatusNotStarted},
		},
		{
			name:       "finish skips the rest",
			script:     []string{"goto 2", "finish", "pass"},
			wantCode:   ExitIncomplete,
			wantStatus: []session.Status{session.StatusSkipped, session.StatusInProgress, session.StatusNotStarted},
		},
		{
			name:       "unrecognised verdict is refused",
			script:     []string{"submit 12", "submit maybe", "pass", "done"},
			wantOut:    []string{`unrecognised pass/fail value "maybe"`},
			wantStatus: []session.Status{session.StatusPassed, session.StatusPassed, session.StatusPassed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, buf := testApp(t, tt.script...)
			path := createCatalogFile(t, threeStepCatalog)

			err := execute(t, app, "run", path, "--operator", "ayse", "--station", "ST-01", "--stock", "PSU-12")

			if tt.wantCode == 0 {
				require.NoError(t, err)
			} else {
				code, ok := IsExitError(err)
				require.True(t, ok, "error should be an ExitError: %v", err)
				assert.Equal(t, tt.wantCode, code)
			}

			out := buf.String()
			for _, want := range tt.wantOut {
				assert.Contains(t, out, want)
			}

			files := reportFiles(t, app)
			require.Len(t, files, 1)
			assert.Equal(t, "Report_ST-01_20260314_PSU-12.json", filepath.Base(files[0]))
			assert.Contains(t, out, "report written to "+files[0])

			snap, err := snapshot.Read(files[0])
			require.NoError(t, err)
			assert.False(t, snap.EndedAt.IsZero(), "session must be ended")
			assert.Equal(t, "ayse", snap.Info.Operator)
			require.Len(t, snap.Steps, len(tt.wantStatus))
			for i, want := range tt.wantStatus {
				assert.Equal(t, want, snap.Steps[i].Status, "step %d", i+1)
			}
		})
	}
}

func TestRunCommand_OperatorMayNotGoBack(t *testing.T) {
	app, buf := testApp(t, "submit 12", "goto 1", "view 1", "pass", "done")
	path := createCatalogFile(t, threeStepCatalog)

	err := execute(t, app, "run", path, "--role", "operator", "--no-snapshot")

	require.NoError(t, err)
	assert.Contains(t, buf.String(), `role "operator" may not navigate backward`)
	assert.Empty(t, reportFiles(t, app))
}

func TestRunCommand_AdminEditsResult(t *testing.T) {
	app, buf := testApp(t,
		"submit 13", // step 1 fails
		"edit 1",    // reopen it
		"submit 12", // re-record, back to view-only
		"submit 12", // refused: view-only
		"goto 2",
		"pass",
		"done",
	)
	path := createCatalogFile(t, threeStepCatalog)

	err := execute(t, app, "run", path, "--role", "admin")

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "mode: edit")
	assert.Contains(t, out, "step 1 changed from 13 to 12")
	assert.Contains(t, out, "step is view-only")
	assert.Contains(t, out, "passed 3  failed 0")
}

func TestRunCommand_Export(t *testing.T) {
	t.Run("allowed for admin", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "export", "session.json")
		app, buf := testApp(t, "submit 12", "export "+target, "finish")
		path := createCatalogFile(t, threeStepCatalog)

		err := execute(t, app, "run", path, "--role", "admin")

		code, ok := IsExitError(err)
		require.True(t, ok)
		assert.Equal(t, ExitIncomplete, code)
		assert.Contains(t, buf.String(), "exported "+target)

		snap, err := snapshot.Read(target)
		require.NoError(t, err)
		assert.Equal(t, session.StatusPassed, snap.Steps[0].Status)
	})

	t.Run("csv table", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "session.csv")
		app, buf := testApp(t, "submit 13 probe drift", "export "+target, "finish")
		path := createCatalogFile(t, threeStepCatalog)

		_ = execute(t, app, "run", path, "--role", "admin", "--stock", "PSU-12")

		assert.Contains(t, buf.String(), "exported "+target)
		r, err := export.ReadFromFile(target)
		require.NoError(t, err)
		require.Len(t, r.Rows, 3)
		assert.Equal(t, "PSU-12", r.Meta["stock_number"])
		assert.Equal(t, session.StatusFailed, r.Rows[0].Status)
		assert.Equal(t, "13", r.Rows[0].Value)
		assert.Equal(t, "probe drift", r.Rows[0].Comment)
		assert.Equal(t, session.StatusInProgress, r.Rows[1].Status)
	})

	t.Run("refused for operator", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "session.json")
		app, buf := testApp(t, "export "+target, "finish")
		path := createCatalogFile(t, threeStepCatalog)

		_ = execute(t, app, "run", path)

		assert.Contains(t, buf.String(), `role "operator" may not export reports`)
		assert.NoFileExists(t, target)
	})
}

func TestRunCommand_ConsoleErrors(t *testing.T) {
	app, buf := testApp(t, "frobnicate", "goto two", "submit", "resume", "pause", "pause", "resume", "finish")
	path := createCatalogFile(t, threeStepCatalog)

	_ = execute(t, app, "run", path, "--no-snapshot")

	out := buf.String()
	assert.Contains(t, out, `unknown command "frobnicate"`)
	assert.Contains(t, out, `invalid step number "two"`)
	assert.Contains(t, out, "usage: submit <value> [comment]")
	assert.Contains(t, out, "resume rejected: session is not paused")
	assert.Contains(t, out, "paused")
	assert.Contains(t, out, "pause rejected: no running timer")
	assert.Contains(t, out, "resumed")
}

func TestRunCommand_UnknownRole(t *testing.T) {
	app, _ := testApp(t)
	path := createCatalogFile(t, threeStepCatalog)

	err := execute(t, app, "run", path, "--role", "wizard")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestRunCommand_BadCatalog(t *testing.T) {
	app, _ := testApp(t)
	path := createCatalogFile(t, "steps: []\n")

	err := execute(t, app, "run", path)

	require.Error(t, err)
}

func TestReportCommand(t *testing.T) {
	app, buf := testApp(t, "submit 12", "fail", "done")
	path := createCatalogFile(t, threeStepCatalog)
	_ = execute(t, app, "run", path, "--station", "ST-09")

	files := reportFiles(t, app)
	require.Len(t, files, 1)
	buf.Reset()

	require.NoError(t, execute(t, app, "report", files[0]))
	assert.Contains(t, buf.String(), "passed 2  failed 1")
	assert.Contains(t, buf.String(), "ST-09")

	err := execute(t, app, "report", "--strict", files[0])
	code, ok := IsExitError(err)
	require.True(t, ok)
	assert.Equal(t, ExitFailed, code)
}

func TestReportCommand_CSV(t *testing.T) {
	app, buf := testApp(t, "submit 12", "pass", "done")
	path := createCatalogFile(t, threeStepCatalog)
	require.NoError(t, execute(t, app, "run", path, "--station", "ST-09"))

	files := reportFiles(t, app)
	require.Len(t, files, 1)
	table := filepath.Join(t.TempDir(), "tables", "session.csv")
	buf.Reset()

	require.NoError(t, execute(t, app, "report", files[0], "--csv", table))
	assert.Contains(t, buf.String(), "report written to "+table)
	assert.FileExists(t, table)

	buf.Reset()
	require.NoError(t, execute(t, app, "report", "--strict", table))
	out := buf.String()
	assert.Contains(t, out, "ST-09")
	assert.Contains(t, out, "Measure output voltage")
	assert.Contains(t, out, "passed 3  failed 0  complete 100%")
}

func TestReportCommand_MissingFile(t *testing.T) {
	app, _ := testApp(t)

	err := execute(t, app, "report", filepath.Join(t.TempDir(), "missing.json"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read snapshot")

	err = execute(t, app, "report", filepath.Join(t.TempDir(), "missing.csv"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open report")
}
