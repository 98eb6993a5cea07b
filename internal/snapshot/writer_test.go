package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepwise/internal/event"
	"stepwise/internal/navigation"
	"stepwise/internal/session"
	"stepwise/internal/timer"
)

var day = time.Date(2026, 1, 23, 14, 0, 0, 0, time.UTC)

func sampleSnapshot() session.Snapshot {
	return session.Snapshot{
		SessionID: "20260123_140000",
		Info:      session.Info{Station: "ST-01", StockNumber: "ABC/123"},
		StartedAt: day,
		Steps: []session.StepSnapshot{
			{StepID: 1, Name: "measure", Budget: 10, Input: "number", Status: session.StatusPassed, Value: session.NumberValue(5), Duration: 4},
			{StepID: 2, Name: "inspect", Budget: 10, Input: "pass_fail", Status: session.StatusNotStarted, Value: session.Absent()},
		},
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name string
		info session.Info
		at   time.Time
		want string
	}{
		{"station and stock", session.Info{Station: "ST-01", StockNumber: "ABC123"}, day, "Report_ST-01_20260123_ABC123.json"},
		{"stock cleaned", session.Info{Station: "ST-01", StockNumber: "AB C/1.2"}, day, "Report_ST-01_20260123_ABC12.json"},
		{"no stock", session.Info{Station: "ST-02"}, day, "Report_ST-02_20260123.json"},
		{"no station", session.Info{}, day, "Report_unknown_20260123.json"},
		{"not started uses now", session.Info{Station: "X"}, time.Time{}, "Report_X_20260201.json"},
	}

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := session.Snapshot{Info: tt.info, StartedAt: tt.at}
			assert.Equal(t, tt.want, FileName(snap, now))
		})
	}
}

func TestWriter_WriteAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	w := NewWriter(dir)

	path, err := w.Write(sampleSnapshot())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Report_ST-01_20260123_ABC123.json"), path)
	assert.NoFileExists(t, path+".tmp")

	back, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "20260123_140000", back.SessionID)
	require.Len(t, back.Steps, 2)
	assert.Equal(t, session.NumberValue(5), back.Steps[0].Value)
	assert.Equal(t, 4, back.Steps[0].Duration)
	assert.True(t, back.Steps[1].Value.IsAbsent())
}

func TestWriter_PathFixedByFirstWrite(t *testing.T) {
	w := NewWriter(t.TempDir())

	first, err := w.Write(sampleSnapshot())
	require.NoError(t, err)

	changed := sampleSnapshot()
	changed.Info.Station = "OTHER"
	second, err := w.Write(changed)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, w.Writes())
	assert.Equal(t, first, w.Path())
}

func TestRead_Errors(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read snapshot")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = Read(bad)
	assert.ErrorContains(t, err, "failed to parse snapshot")
}

type staticSource struct {
	calls int
}

func (s *staticSource) Snapshot() session.Snapshot {
	s.calls++
	return sampleSnapshot()
}

func TestWriter_Attach(t *testing.T) {
	bus := event.NewBus(nil)
	w := NewWriter(t.TempDir())
	src := &staticSource{}

	detach := w.Attach(bus, src, 3)

	bus.Publish(event.NewSessionStartedEvent("s", 2))
	bus.Publish(event.NewStepChangedEvent(0, 2, navigation.ModeNormal))
	for range 7 {
		bus.Publish(event.NewTimerTickEvent(timer.Report{}))
	}
	bus.Publish(event.NewResultSubmittedEvent(0, session.NumberValue(1), session.StatusPassed, 1))
	bus.Publish(event.NewNavigationBlockedEvent(0, 1, "x"))
	bus.Publish(event.NewTestCompletedEvent("s", 1, 0, false))

	assert.Equal(t, 6, w.Writes(), "4 lifecycle events plus 2 interval writes")
	assert.Equal(t, 6, src.calls)

	detach()
	bus.Publish(event.NewStepChangedEvent(1, 2, navigation.ModeNormal))
	assert.Equal(t, 6, w.Writes())
	assert.Zero(t, bus.SubscriptionCount())
}

func TestWriteTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export", "out.json")

	require.NoError(t, WriteTo(path, sampleSnapshot()))

	back, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "ST-01", back.Info.Station)
}
