package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stepwise/internal/config"
	"stepwise/internal/logging"
	"stepwise/internal/output"
)

// fixedNow is the clock every CLI test runs on.
var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

const threeStepCatalog = `name: PSU acceptance
steps:
  - id: 10
    name: Measure output voltage
    budget: 60
    input: number
    label: Vout
    bounds: {min: 11.5, max: 12.5}
  - id: 20
    name: Inspect connectors
    budget: 30
    input: pass_fail
  - id: 30
    name: Apply label
    budget: 20
`

// createCatalogFile writes a catalog into a temporary directory for testing.
func createCatalogFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write catalog file: %v", err)
	}
	return path
}

// testApp builds an App reading console input from script and printing into
// the returned buffer. Snapshots go to a temporary directory.
func testApp(t *testing.T, script ...string) (*App, *bytes.Buffer) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Timer.Interval = time.Hour
	cfg.Snapshot.Dir = filepath.Join(t.TempDir(), "reports")

	buf := &bytes.Buffer{}
	app := &App{
		Config:  cfg,
		Printer: output.NewPrinterWithWriter(buf),
		In:      strings.NewReader(strings.Join(script, "\n") + "\n"),
		Logger:  logging.Discard(),
		Now:     func() time.Time { return fixedNow },
	}
	return app, buf
}

// execute runs the root command with args.
func execute(t *testing.T, app *App, args ...string) error {
	t.Helper()

	rootCmd := NewRootCommand(app)
	outBuf := &bytes.Buffer{}
	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(outBuf)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// reportFiles returns the snapshot files written under the app's snapshot dir.
func reportFiles(t *testing.T, app *App) []string {
	t.Helper()

	files, err := filepath.Glob(filepath.Join(app.Config.Snapshot.Dir, "Report_*.json"))
	require.NoError(t, err)
	return files
}
