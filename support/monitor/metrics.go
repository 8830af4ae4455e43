package monitor

import (
	"time"

	"github.com/geusemaker/geusemaker/support/healthcheck"
)

// Service statuses as the metrics track them.
const (
	statusUnknown   = "unknown"
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// ServiceMetrics is the rolling record for one service. Successes plus
// failures always equals TotalChecks.
type ServiceMetrics struct {
	TotalChecks         int       `json:"total_checks"`
	Successes           int       `json:"successes"`
	Failures            int       `json:"failures"`
	MeanResponseMS      float64   `json:"mean_response_ms"`
	UptimePercent       float64   `json:"uptime_percent"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastStatus          string    `json:"last_status"`
	LastCheck           time.Time `json:"last_check"`
}

// record folds one probe result into the metrics and returns the previous
// status for transition detection.
func (m *ServiceMetrics) record(res healthcheck.Result, at time.Time) (previous string) {
	previous = m.LastStatus
	if previous == "" {
		previous = statusUnknown
	}

	m.TotalChecks++
	// Incremental mean keeps the metrics O(1) regardless of loop length.
	m.MeanResponseMS += (res.ResponseTimeMS - m.MeanResponseMS) / float64(m.TotalChecks)
	if res.Healthy {
		m.Successes++
		m.ConsecutiveFailures = 0
		m.LastStatus = statusHealthy
	} else {
		m.Failures++
		m.ConsecutiveFailures++
		m.LastStatus = statusUnhealthy
	}
	m.UptimePercent = float64(m.Successes) / float64(m.TotalChecks) * 100
	m.LastCheck = at
	return previous
}

// MonitoringState is the loop's full view, handed to the per-iteration
// callback. The loop is strictly serial, so no locking is needed.
type MonitoringState struct {
	Stack      string                     `json:"stack"`
	StartedAt  time.Time                  `json:"started_at"`
	Iterations int                        `json:"iterations"`
	Services   map[string]*ServiceMetrics `json:"services"`
	LastSample *ResourceSample            `json:"last_sample,omitempty"`
}

// NewMonitoringState builds an empty state for stack.
func NewMonitoringState(stack string) *MonitoringState {
	return &MonitoringState{
		Stack:     stack,
		StartedAt: time.Now().UTC(),
		Services:  map[string]*ServiceMetrics{},
	}
}

// metricsFor returns the metrics record for service, creating it on first
// sight.
func (s *MonitoringState) metricsFor(service string) *ServiceMetrics {
	m, ok := s.Services[service]
	if !ok {
		m = &ServiceMetrics{LastStatus: statusUnknown}
		s.Services[service] = m
	}
	return m
}
