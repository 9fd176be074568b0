package monitoring

import (
	"sync"
	"time"

	"toastem/internal/process"
)

// Monitor keeps in-memory counters of batch activity for the monitor
// endpoint
type Monitor struct {
	metrics      map[string]interface{}
	metricsMutex sync.RWMutex
	startTime    time.Time
}

// NewMonitor creates a new monitoring instance
func NewMonitor() *Monitor {
	return &Monitor{
		metrics:   make(map[string]interface{}),
		startTime: time.Now(),
	}
}

// RecordMetric records a metric value
func (m *Monitor) RecordMetric(name string, value interface{}) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics[name] = value
}

// GetMetric returns a specific metric value
func (m *Monitor) GetMetric(name string) (interface{}, bool) {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()
	value, exists := m.metrics[name]
	return value, exists
}

// GetMetrics returns all current metrics
func (m *Monitor) GetMetrics() map[string]interface{} {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()

	metrics := make(map[string]interface{}, len(m.metrics)+1)
	for k, v := range m.metrics {
		metrics[k] = v
	}
	metrics["uptime_seconds"] = time.Since(m.startTime).Seconds()

	return metrics
}

// Reset clears all metrics
func (m *Monitor) Reset() {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics = make(map[string]interface{})
}

// Observe implements process.Observer. Counters are keyed by event kind and,
// for stage events, by stage.
func (m *Monitor) Observe(e process.Event) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()

	m.increment("events_" + string(e.Kind))
	if e.Stage != "" {
		m.increment(string(e.Kind) + "_" + e.Stage)
	}
	if n := len(e.Violations); n > 0 {
		m.add("violations", n)
	}
	m.metrics["last_event_at"] = e.At.Format(time.RFC3339)
}

func (m *Monitor) increment(name string) { m.add(name, 1) }

func (m *Monitor) add(name string, n int) {
	current, _ := m.metrics[name].(int)
	m.metrics[name] = current + n
}
