// Package snapshot persists session snapshots as JSON files.
//
// The continuous [Writer] overwrites one report file per session every time
// the session changes, so a crash never loses more than the last change.
// Writes are atomic: the data goes to a temporary file that is then renamed
// over the report.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"stepwise/internal/event"
	"stepwise/internal/session"
)

// FilePrefix starts every report file name.
const FilePrefix = "Report"

// DateLayout is the date part of report file names.
const DateLayout = "20060102"

// FileName returns the report file name for snap:
// Report_<station>_<YYYYMMDD>[_<stock>].json. The date is the session start,
// or now if the session has not started.
func FileName(snap session.Snapshot, now time.Time) string {
	date := snap.StartedAt
	if date.IsZero() {
		date = now
	}

	station := clean(snap.Info.Station)
	if station == "" {
		station = "unknown"
	}

	parts := []string{FilePrefix, station, date.Format(DateLayout)}
	if stock := clean(snap.Info.StockNumber); stock != "" {
		parts = append(parts, stock)
	}
	return strings.Join(parts, "_") + ".json"
}

// clean keeps letters, digits, '-' and '_'.
func clean(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Source supplies the snapshot to write.
type Source interface {
	Snapshot() session.Snapshot
}

// Option configures a [Writer].
type Option func(*Writer)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// Writer writes snapshots into a directory.
type Writer struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	path   string
	writes int
}

// NewWriter creates a writer for dir. The directory is created on first
// write.
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{
		dir:    dir,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the file the writer last wrote, or "" before the first write.
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Writes returns the number of successful writes.
func (w *Writer) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

// Write overwrites the session's report file with snap and returns its path.
// The file name is fixed by the first write.
func (w *Writer) Write(snap session.Snapshot) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.path == "" {
		w.path = filepath.Join(w.dir, FileName(snap, w.now()))
	}
	if err := writeFile(w.path, snap); err != nil {
		return "", err
	}
	w.writes++
	w.logger.Debug("snapshot written", "path", w.path, "writes", w.writes)
	return w.path, nil
}

// WriteTo writes snap to an explicit path, atomically.
func WriteTo(path string, snap session.Snapshot) error {
	return writeFile(path, snap)
}

func writeFile(path string, snap session.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Read loads a snapshot file.
func Read(path string) (session.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return snap, nil
}

// Attach writes src's snapshot whenever the session starts, changes step,
// records a result, or completes, and every intervalTicks timer ticks in
// between. intervalTicks <= 0 disables tick-driven writes. The returned
// function detaches the writer.
//
// Write failures are logged; they never interrupt the session.
func (w *Writer) Attach(bus *event.Bus, src Source, intervalTicks int) (detach func()) {
	write := func(event.Event) {
		if _, err := w.Write(src.Snapshot()); err != nil {
			w.logger.Error("snapshot write failed", "error", err)
		}
	}

	ids := []string{
		bus.Subscribe(event.TypeSessionStarted, write),
		bus.Subscribe(event.TypeStepChanged, write),
		bus.Subscribe(event.TypeResultSubmitted, write),
		bus.Subscribe(event.TypeTestCompleted, write),
	}

	if intervalTicks > 0 {
		var ticks int
		ids = append(ids, bus.Subscribe(event.TypeTimerTick, func(e event.Event) {
			ticks++
			if ticks%intervalTicks == 0 {
				write(e)
			}
		}))
	}

	return func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
	}
}
