package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/obstacle-panel/backend/internal/model"
)

func TestHandlerExposesRecordedSeries(t *testing.T) {
	m := New()
	m.ObservePoll(20*time.Millisecond, model.DeviceView{EventCount: 7, ObstacleCount: 3})
	m.FetchFailed(nil)
	m.ObserveDispatch("LED2", model.StateRolledBack, 5*time.Millisecond)
	m.SetBusy(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"panel_polls_total 1",
		"panel_event_window_size 7",
		"panel_obstacle_count 3",
		"panel_event_fetch_failures_total 1",
		`panel_dispatches_total{state="ROLLED_BACK",subject="LED2"} 1`,
		"panel_busy_actuators 1",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObservePoll(time.Second, model.DeviceView{})
	m.FetchFailed(nil)
	m.ObserveDispatch("LED1", model.StateCommitted, time.Second)
	m.SetBusy(2)
	m.SetSubscribers(1)
}

func TestInstancesDoNotShareRegistry(t *testing.T) {
	a, b := New(), New()
	a.SetBusy(4)

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), "panel_busy_actuators 4") {
		t.Fatalf("second instance saw first instance's gauge")
	}
}
