package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepwise/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	c, err := catalog.New("acceptance", []catalog.Step{
		{ID: 10, Name: "voltage", Budget: 10, Input: catalog.InputNumber, Bounds: catalog.NewBounds(0, 10)},
		{ID: 20, Name: "inspect", Budget: 10, Input: catalog.InputPassFail},
		{ID: 30, Name: "power off", Budget: 10},
		{ID: 40, Name: "label", Budget: 10, Input: catalog.InputNumber},
	})
	require.NoError(t, err)
	return c
}

func TestNewID(t *testing.T) {
	at := time.Date(2026, 1, 23, 14, 5, 9, 0, time.UTC)

	assert.Equal(t, "20260123_140509", NewID(at))
}

func TestNew_OneRecordPerStep(t *testing.T) {
	c := testCatalog(t)

	s := New("id", Info{Station: "ST-01"}, c)

	require.Len(t, s.Records, c.Len())
	for i, r := range s.Records {
		def, _ := c.Step(i)
		assert.Equal(t, def.ID, r.StepID)
		assert.Equal(t, StatusNotStarted, r.Status)
		assert.True(t, r.Value.IsAbsent())
		assert.True(t, r.StartedAt.IsZero())
	}
	assert.Equal(t, "acceptance", s.Procedure)
	assert.False(t, s.Active())
}

func TestStepRecord_MarkStarted(t *testing.T) {
	first := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	later := first.Add(time.Minute)

	r := StepRecord{Status: StatusNotStarted}
	r.MarkStarted(first)
	r.MarkStarted(later)

	assert.Equal(t, first, r.StartedAt, "start timestamp is set once")
	assert.Equal(t, StatusInProgress, r.Status)

	done := StepRecord{Status: StatusPassed}
	done.MarkStarted(later)
	assert.Equal(t, StatusPassed, done.Status, "completed steps keep their verdict")

	skipped := StepRecord{Status: StatusSkipped, StartedAt: first}
	skipped.MarkStarted(later)
	assert.Equal(t, StatusInProgress, skipped.Status)
	assert.Equal(t, first, skipped.StartedAt)
}

func TestSession_Counters(t *testing.T) {
	s := New("id", Info{}, testCatalog(t))
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, s.DurationSeconds(start))

	s.Start(start)
	s.Records[0].Status = StatusPassed
	s.Records[1].Status = StatusFailed
	s.Records[2].Status = StatusSkipped

	assert.True(t, s.Active())
	assert.Equal(t, 1, s.PassedCount())
	assert.Equal(t, 1, s.FailedCount())
	assert.InDelta(t, 50.0, s.CompletionPercent(), 0.001)
	assert.Equal(t, 90, s.DurationSeconds(start.Add(90*time.Second)))

	s.End(start.Add(2 * time.Minute))
	assert.False(t, s.Active())
	assert.True(t, s.Ended())
	assert.Equal(t, 120, s.DurationSeconds(start.Add(time.Hour)))
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, Value{}.Equal(Absent()))
	assert.True(t, NumberValue(5).Equal(NumberValue(5)))
	assert.False(t, NumberValue(5).Equal(NumberValue(5.5)))
	assert.False(t, NumberValue(0).Equal(Absent()))
	assert.False(t, TokenValue(TokenPass).Equal(TokenValue(TokenFail)))
	assert.False(t, TextValue("5").Equal(NumberValue(5)))

	assert.Equal(t, "15", NumberValue(15).String())
	assert.Equal(t, "PASS", TokenValue(TokenPass).String())
	assert.Equal(t, "", Absent().String())
}

func TestSnapshot_RoundTrip(t *testing.T) {
	c := testCatalog(t)
	start := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

	s := New(NewID(start), Info{Station: "ST-01", StockNumber: "ABC-1", Operator: "op1"}, c)
	s.Start(start)
	s.Records[0] = StepRecord{StepID: 10, Status: StatusPassed, Value: NumberValue(5), StartedAt: start, Duration: 7, CompletedBy: "op1"}
	s.Records[1] = StepRecord{StepID: 20, Status: StatusFailed, Value: TokenValue(TokenFail), Comment: "scratch on lid", StartedAt: start.Add(7 * time.Second), Duration: 3}
	s.Records[2] = StepRecord{StepID: 30, Status: StatusSkipped, Value: Absent(), StartedAt: start.Add(10 * time.Second)}
	s.Records[3] = StepRecord{StepID: 40, Status: StatusFailed, Value: TextValue("12,5"), Duration: 0}
	s.End(start.Add(30 * time.Second))

	data, err := json.Marshal(s.Snapshot(c, start.Add(time.Hour)))
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	back, err := Rehydrate(decoded, c)
	require.NoError(t, err)

	require.Len(t, back.Records, len(s.Records))
	for i := range s.Records {
		want, got := s.Records[i], back.Records[i]
		assert.Equal(t, want.Status, got.Status, "step %d status", i)
		assert.True(t, want.Value.Equal(got.Value), "step %d value: %v != %v", i, want.Value, got.Value)
		assert.Equal(t, want.Duration, got.Duration, "step %d duration", i)
		assert.Equal(t, want.Comment, got.Comment, "step %d comment", i)
		assert.True(t, want.StartedAt.Equal(got.StartedAt), "step %d start", i)
	}
	assert.Equal(t, s.ID, back.ID)
	assert.Equal(t, s.Info, back.Info)
	assert.True(t, s.EndedAt.Equal(back.EndedAt))
	assert.Equal(t, 30, decoded.DurationSeconds)
	assert.Equal(t, 1, decoded.PassedCount)
	assert.Equal(t, 2, decoded.FailedCount)
	require.NotNil(t, decoded.Steps[0].Bounds)
	assert.Nil(t, decoded.Steps[1].Bounds)
}

func TestRehydrate_Mismatch(t *testing.T) {
	c := testCatalog(t)
	snap := New("id", Info{}, c).Snapshot(c, time.Now())

	short := snap
	short.Steps = snap.Steps[:2]
	_, err := Rehydrate(short, c)
	assert.ErrorIs(t, err, ErrRecordMismatch)

	swapped := snap
	swapped.Steps = append([]StepSnapshot(nil), snap.Steps...)
	swapped.Steps[0], swapped.Steps[1] = swapped.Steps[1], swapped.Steps[0]
	_, err = Rehydrate(swapped, c)
	assert.ErrorIs(t, err, ErrRecordMismatch)

	bad := snap
	bad.Steps = append([]StepSnapshot(nil), snap.Steps...)
	bad.Steps[0].Status = "exploded"
	_, err = Rehydrate(bad, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")

	_, err = Rehydrate(snap, nil)
	assert.NoError(t, err)
}
