// Package monitor runs the health monitoring loop for a deployment: serial
// probe iterations over the service set, rolling per-service metrics,
// event emission with throttled alerts, optional local resource sampling,
// and background process management through pid files.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/geusemaker/geusemaker/support/healthcheck"
)

// Loop defaults.
const (
	DefaultInterval       = 30 * time.Second
	DefaultAlertThreshold = 3
	DefaultAlertCooldown  = 300 * time.Second
)

// Config steers one monitoring loop.
type Config struct {
	Stack string
	// Host is the address the probes target.
	Host string
	// Interval separates iterations.
	Interval time.Duration
	// Iterations bounds the loop; zero means run until stopped.
	Iterations int
	// AlertThreshold is the consecutive-failure count that raises an
	// alert even without a status transition.
	AlertThreshold int
	// AlertCooldown suppresses repeat alerts per (service, kind).
	AlertCooldown   time.Duration
	IncludePostgres bool

	CPUThreshold    float64
	MemoryThreshold float64
	DiskThreshold   float64

	// OnIteration, when set, receives the state after every iteration.
	OnIteration func(*MonitoringState)
}

func (c *Config) fill() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.AlertThreshold <= 0 {
		c.AlertThreshold = DefaultAlertThreshold
	}
	if c.AlertCooldown <= 0 {
		c.AlertCooldown = DefaultAlertCooldown
	}
	if c.CPUThreshold <= 0 {
		c.CPUThreshold = DefaultCPUThreshold
	}
	if c.MemoryThreshold <= 0 {
		c.MemoryThreshold = DefaultMemoryThreshold
	}
	if c.DiskThreshold <= 0 {
		c.DiskThreshold = DefaultDiskThreshold
	}
}

// Monitor drives the loop. Iterations are strictly serial; the state is
// never touched concurrently.
type Monitor struct {
	cfg       Config
	notifiers []Notifier
	sampler   Sampler
	state     *MonitoringState
	lastAlert map[string]time.Time
	stop      chan struct{}
	log       logr.Logger

	// probeFn overrides the probe set in tests.
	probeFn func(ctx context.Context) *healthcheck.Summary
}

// New builds a Monitor. sampler may be nil to skip resource sampling.
func New(cfg Config, notifiers []Notifier, sampler Sampler, log logr.Logger) *Monitor {
	cfg.fill()
	return &Monitor{
		cfg:       cfg,
		notifiers: notifiers,
		sampler:   sampler,
		state:     NewMonitoringState(cfg.Stack),
		lastAlert: map[string]time.Time{},
		stop:      make(chan struct{}),
		log:       log,
	}
}

// State returns the loop's current state. Callers must only read it from
// the iteration callback or after Run returns.
func (m *Monitor) State() *MonitoringState { return m.state }

// Stop signals the loop to exit after the current iteration. Safe to call
// more than once.
func (m *Monitor) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
}

// Run executes the loop until the iteration bound, a stop signal, or
// context cancellation. The current probe set always completes before the
// loop exits.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("Monitoring started", "stack", m.cfg.Stack, "host", m.cfg.Host,
		"interval", m.cfg.Interval, "iterations", m.cfg.Iterations)
	for {
		m.iterate(ctx)
		if m.cfg.Iterations > 0 && m.state.Iterations >= m.cfg.Iterations {
			m.log.Info("Monitoring finished", "stack", m.cfg.Stack, "iterations", m.state.Iterations)
			return nil
		}
		select {
		case <-m.stop:
			m.log.Info("Monitoring stopped", "stack", m.cfg.Stack, "iterations", m.state.Iterations)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.Interval):
		}
	}
}

func (m *Monitor) probes(ctx context.Context) *healthcheck.Summary {
	if m.probeFn != nil {
		return m.probeFn(ctx)
	}
	return healthcheck.CheckAll(ctx, healthcheck.Services(m.cfg.Host, healthcheck.SetOptions{
		IncludePostgres: m.cfg.IncludePostgres,
	}))
}

func (m *Monitor) iterate(ctx context.Context) {
	summary := m.probes(ctx)
	now := time.Now().UTC()

	for _, res := range summary.Results {
		metrics := m.state.metricsFor(res.Service)
		previous := metrics.record(res, now)

		m.dispatch(Event{
			Type: EventCheck, Service: res.Service, Stack: m.cfg.Stack,
			Timestamp: now, Healthy: res.Healthy, Message: res.ErrorMessage,
		})
		if previous != statusUnknown && previous != metrics.LastStatus {
			m.dispatch(Event{
				Type: EventStatusChange, Service: res.Service, Stack: m.cfg.Stack,
				Timestamp: now, Healthy: res.Healthy,
				Message: fmt.Sprintf("%s went from %s to %s", res.Service, previous, metrics.LastStatus),
			})
		}
		becameUnhealthy := previous == statusHealthy && metrics.LastStatus == statusUnhealthy
		if becameUnhealthy || metrics.ConsecutiveFailures >= m.cfg.AlertThreshold {
			m.alert(res.Service, "unhealthy", now, Event{
				Type: EventAlert, Service: res.Service, Stack: m.cfg.Stack,
				Timestamp: now, Healthy: false,
				Message: fmt.Sprintf("%s unhealthy (%d consecutive failures): %s",
					res.Service, metrics.ConsecutiveFailures, res.ErrorMessage),
			})
		}
	}

	m.sampleResources(now)

	m.state.Iterations++
	if m.cfg.OnIteration != nil {
		m.cfg.OnIteration(m.state)
	}
}

// sampleResources takes one resource reading and raises a single "system"
// alert when any threshold is exceeded.
func (m *Monitor) sampleResources(now time.Time) {
	if m.sampler == nil {
		return
	}
	sample, err := m.sampler.Sample()
	if err != nil {
		m.log.Error(err, "Resource sampling failed", "stack", m.cfg.Stack)
		return
	}
	m.state.LastSample = sample

	var over []string
	if sample.CPUPercent > m.cfg.CPUThreshold {
		over = append(over, fmt.Sprintf("cpu %.1f%%", sample.CPUPercent))
	}
	if sample.MemoryPercent > m.cfg.MemoryThreshold {
		over = append(over, fmt.Sprintf("memory %.1f%%", sample.MemoryPercent))
	}
	if sample.DiskPercent > m.cfg.DiskThreshold {
		over = append(over, fmt.Sprintf("disk %.1f%%", sample.DiskPercent))
	}
	if len(over) == 0 {
		return
	}
	m.alert("system", "resources", now, Event{
		Type: EventAlert, Service: "system", Stack: m.cfg.Stack,
		Timestamp: now, Healthy: false,
		Message: "resource thresholds exceeded: " + strings.Join(over, ", "),
	})
}

// alert dispatches ev unless the same (service, kind) alerted within the
// cooldown window.
func (m *Monitor) alert(service, kind string, now time.Time, ev Event) {
	key := service + "/" + kind
	if last, ok := m.lastAlert[key]; ok && now.Sub(last) < m.cfg.AlertCooldown {
		return
	}
	m.lastAlert[key] = now
	m.dispatch(ev)
}

// dispatch delivers ev to every notifier in order. A notifier error or
// panic is logged and must never stop the loop.
func (m *Monitor) dispatch(ev Event) {
	for _, n := range m.notifiers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Info("Notifier panicked", "event", string(ev.Type), "panic", fmt.Sprint(r))
				}
			}()
			if err := n.Notify(ev); err != nil {
				m.log.Error(err, "Notifier failed", "event", string(ev.Type), "service", ev.Service)
			}
		}()
	}
}
