package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geusemaker/geusemaker/cmd/log"
	"github.com/geusemaker/geusemaker/support/healthcheck"
)

// recordingNotifier captures every event it receives.
type recordingNotifier struct {
	events []Event
}

func (n *recordingNotifier) Notify(ev Event) error {
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) byType(t EventType) []Event {
	var out []Event
	for _, ev := range n.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type panickyNotifier struct{}

func (panickyNotifier) Notify(Event) error { panic("boom") }

type failingNotifier struct{}

func (failingNotifier) Notify(Event) error { return errors.New("webhook down") }

// fakeSampler replays a fixed sequence of samples.
type fakeSampler struct {
	samples []*ResourceSample
	calls   int
}

func (s *fakeSampler) Sample() (*ResourceSample, error) {
	i := s.calls
	s.calls++
	if i >= len(s.samples) {
		i = len(s.samples) - 1
	}
	return s.samples[i], nil
}

// probeSequence feeds scripted probe results to the loop, one summary per
// iteration, repeating the last one when exhausted.
func probeSequence(summaries ...[]healthcheck.Result) func(context.Context) *healthcheck.Summary {
	call := 0
	return func(context.Context) *healthcheck.Summary {
		i := call
		call++
		if i >= len(summaries) {
			i = len(summaries) - 1
		}
		return &healthcheck.Summary{Results: summaries[i], CheckedAt: time.Now().UTC()}
	}
}

func healthy(service string, ms float64) healthcheck.Result {
	return healthcheck.Result{Service: service, Healthy: true, StatusCode: 200, ResponseTimeMS: ms}
}

func unhealthy(service, msg string) healthcheck.Result {
	return healthcheck.Result{Service: service, Healthy: false, StatusCode: 502, ErrorMessage: msg}
}

func newTestMonitor(t *testing.T, cfg Config, notifiers []Notifier, sampler Sampler) *Monitor {
	t.Helper()
	cfg.Stack = "demo"
	if cfg.Interval == 0 {
		cfg.Interval = time.Millisecond
	}
	return New(cfg, notifiers, sampler, log.Discard())
}

func TestServiceMetricsRecord(t *testing.T) {
	var m ServiceMetrics
	now := time.Now().UTC()

	prev := m.record(healthy("n8n", 100), now)
	assert.Equal(t, statusUnknown, prev)
	prev = m.record(healthy("n8n", 200), now)
	assert.Equal(t, statusHealthy, prev)
	prev = m.record(unhealthy("n8n", "refused"), now)
	assert.Equal(t, statusHealthy, prev)

	assert.Equal(t, 3, m.TotalChecks)
	assert.Equal(t, 2, m.Successes)
	assert.Equal(t, 1, m.Failures)
	assert.Equal(t, 1, m.ConsecutiveFailures)
	assert.Equal(t, statusUnhealthy, m.LastStatus)
	assert.InDelta(t, 100.0, m.MeanResponseMS, 0.001)
	assert.InDelta(t, 66.666, m.UptimePercent, 0.01)

	m.record(healthy("n8n", 100), now)
	assert.Equal(t, 0, m.ConsecutiveFailures)
	assert.InDelta(t, 75.0, m.UptimePercent, 0.001)
}

func TestRunBoundedIterations(t *testing.T) {
	var callbacks int
	rec := &recordingNotifier{}
	m := newTestMonitor(t, Config{
		Iterations:  3,
		OnIteration: func(*MonitoringState) { callbacks++ },
	}, []Notifier{rec}, nil)
	m.probeFn = probeSequence([]healthcheck.Result{healthy("n8n", 10), healthy("qdrant", 12)})

	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, 3, callbacks)
	assert.Equal(t, 3, m.State().Iterations)
	assert.Len(t, rec.byType(EventCheck), 6)
	assert.Empty(t, rec.byType(EventStatusChange))
	assert.Empty(t, rec.byType(EventAlert))

	n8n := m.State().Services["n8n"]
	require.NotNil(t, n8n)
	assert.Equal(t, 3, n8n.TotalChecks)
	assert.Equal(t, 100.0, n8n.UptimePercent)
}

func TestStatusChangeAndAlertOnDegradation(t *testing.T) {
	rec := &recordingNotifier{}
	m := newTestMonitor(t, Config{Iterations: 2, AlertThreshold: 5}, []Notifier{rec}, nil)
	m.probeFn = probeSequence(
		[]healthcheck.Result{healthy("n8n", 10)},
		[]healthcheck.Result{unhealthy("n8n", "connection refused")},
	)

	require.NoError(t, m.Run(context.Background()))

	changes := rec.byType(EventStatusChange)
	require.Len(t, changes, 1)
	assert.Equal(t, "n8n", changes[0].Service)
	assert.Contains(t, changes[0].Message, "healthy to unhealthy")

	// The healthy-to-unhealthy transition alerts immediately, without
	// waiting for the consecutive-failure threshold.
	alerts := rec.byType(EventAlert)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "connection refused")
}

func TestAlertOnConsecutiveFailures(t *testing.T) {
	rec := &recordingNotifier{}
	m := newTestMonitor(t, Config{Iterations: 3, AlertThreshold: 3, AlertCooldown: time.Hour},
		[]Notifier{rec}, nil)
	// Never healthy: no transition, so only the threshold can alert.
	m.probeFn = probeSequence([]healthcheck.Result{unhealthy("ollama", "timeout")})

	require.NoError(t, m.Run(context.Background()))

	assert.Empty(t, rec.byType(EventStatusChange))
	alerts := rec.byType(EventAlert)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "3 consecutive failures")
}

func TestAlertCooldownSuppressesRepeats(t *testing.T) {
	rec := &recordingNotifier{}
	m := newTestMonitor(t, Config{Iterations: 5, AlertThreshold: 1, AlertCooldown: time.Hour},
		[]Notifier{rec}, nil)
	m.probeFn = probeSequence([]healthcheck.Result{unhealthy("n8n", "refused")})

	require.NoError(t, m.Run(context.Background()))

	// Every iteration crosses the threshold but the cooldown admits one.
	assert.Len(t, rec.byType(EventAlert), 1)
	assert.Len(t, rec.byType(EventCheck), 5)
}

func TestResourceSamplerAlert(t *testing.T) {
	rec := &recordingNotifier{}
	sampler := &fakeSampler{samples: []*ResourceSample{
		{CPUPercent: 50, MemoryPercent: 60, DiskPercent: 70},
		{CPUPercent: 97.5, MemoryPercent: 60, DiskPercent: 96},
	}}
	m := newTestMonitor(t, Config{Iterations: 2, AlertCooldown: time.Hour}, []Notifier{rec}, sampler)
	m.probeFn = probeSequence([]healthcheck.Result{healthy("n8n", 10)})

	require.NoError(t, m.Run(context.Background()))

	alerts := rec.byType(EventAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "system", alerts[0].Service)
	assert.Contains(t, alerts[0].Message, "cpu 97.5%")
	assert.Contains(t, alerts[0].Message, "disk 96.0%")
	assert.NotContains(t, alerts[0].Message, "memory")
	require.NotNil(t, m.State().LastSample)
	assert.Equal(t, 97.5, m.State().LastSample.CPUPercent)
}

func TestNotifierFailuresDoNotStopTheLoop(t *testing.T) {
	rec := &recordingNotifier{}
	m := newTestMonitor(t, Config{Iterations: 2},
		[]Notifier{panickyNotifier{}, failingNotifier{}, rec}, nil)
	m.probeFn = probeSequence([]healthcheck.Result{healthy("n8n", 10)})

	require.NoError(t, m.Run(context.Background()))

	// The recording notifier after the broken ones still saw everything.
	assert.Len(t, rec.byType(EventCheck), 2)
}

func TestStopEndsTheLoop(t *testing.T) {
	m := newTestMonitor(t, Config{Interval: time.Hour}, nil, nil)
	m.probeFn = probeSequence([]healthcheck.Result{healthy("n8n", 10)})

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()
	m.Stop()
	m.Stop() // idempotent

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.GreaterOrEqual(t, m.State().Iterations, 1)
}

func TestFileNotifierAppendsAndRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health_events.log")
	n := NewFileNotifier(path)

	ev := Event{Type: EventCheck, Service: "n8n", Stack: "demo", Healthy: true}
	require.NoError(t, n.Notify(ev))
	require.NoError(t, n.Notify(Event{Type: EventAlert, Service: "n8n", Stack: "demo", Message: "down"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	var got Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, EventCheck, got.Type)
	assert.Equal(t, "n8n", got.Service)

	// Grow past the rotation limit, then notify once more.
	require.NoError(t, os.WriteFile(path, make([]byte, maxEventLogBytes), 0o644))
	require.NoError(t, n.Notify(ev))

	rotated, err := os.Stat(path + ".1")
	require.NoError(t, err)
	assert.EqualValues(t, maxEventLogBytes, rotated.Size())
	fresh, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(fresh), "\n"))
}
