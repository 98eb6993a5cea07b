package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepwise/internal/event"
	"stepwise/internal/navigation"
	"stepwise/internal/session"
	"stepwise/internal/timer"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollector_ObservesBus(t *testing.T) {
	bus := event.NewBus(nil)
	c := New()
	detach := c.Attach(bus)

	bus.Publish(event.NewStepChangedEvent(0, 3, navigation.ModeNormal))
	bus.Publish(event.NewStepChangedEvent(1, 3, navigation.ModeNormal))
	bus.Publish(event.NewNavigationBlockedEvent(1, 0, "nope"))
	bus.Publish(event.NewSubmissionRejectedEvent(1, "view-only"))
	bus.Publish(event.NewResultSubmittedEvent(0, session.NumberValue(5), session.StatusPassed, 12))
	bus.Publish(event.NewResultSubmittedEvent(1, session.TokenValue(session.TokenFail), session.StatusFailed, 3))
	bus.Publish(event.NewTimerTickEvent(timer.Report{Remaining: -4, Tier: timer.TierOvertime}))
	bus.Publish(event.NewTestCompletedEvent("s", 1, 1, true))

	body := scrape(t, c)

	assert.Contains(t, body, `stepwise_navigation_total{mode="normal",outcome="changed"} 2`)
	assert.Contains(t, body, `stepwise_navigation_total{mode="",outcome="blocked"} 1`)
	assert.Contains(t, body, `stepwise_submission_rejected_total 1`)
	assert.Contains(t, body, `stepwise_result_submitted_total{status="passed"} 1`)
	assert.Contains(t, body, `stepwise_result_submitted_total{status="failed"} 1`)
	assert.Contains(t, body, `stepwise_timer_ticks_total{tier="overtime"} 1`)
	assert.Contains(t, body, `stepwise_timer_remaining_seconds -4`)
	assert.Contains(t, body, `stepwise_step_duration_seconds_count 2`)
	assert.Contains(t, body, `stepwise_session_completed_total{manual="true"} 1`)

	detach()
	assert.Zero(t, bus.SubscriptionCount())
}

func TestCollector_PrivateRegistry(t *testing.T) {
	a, b := New(), New()

	a.Observe(event.NewSubmissionRejectedEvent(0, "x"))

	assert.Contains(t, scrape(t, a), "stepwise_submission_rejected_total 1")
	assert.Contains(t, scrape(t, b), "stepwise_submission_rejected_total 0")
}
