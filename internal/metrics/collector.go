package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"toastem/internal/models"
	"toastem/internal/process"
)

// Collector turns batch events into Prometheus series. It owns its registry
// so tests and multiple servers in one process never collide.
type Collector struct {
	registry *prometheus.Registry

	submissions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	violations  *prometheus.CounterVec
	corrections *prometheus.CounterVec
	batches     *prometheus.CounterVec
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	submissions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toastem_stage_submissions_total",
			Help: "Stage records accepted, by stage and resulting record status",
		},
		[]string{"stage", "status"},
	)

	rejections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toastem_stage_rejections_total",
			Help: "Stage submissions rejected by validation or sequencing",
		},
		[]string{"stage"},
	)

	violations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toastem_stage_violations_total",
			Help: "Individual validation violations, by stage and code",
		},
		[]string{"stage", "code"},
	)

	corrections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toastem_corrections_total",
			Help: "Restarts and supersessions of stage records",
		},
		[]string{"stage", "kind"},
	)

	batches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toastem_batch_events_total",
			Help: "Batch lifecycle events",
		},
		[]string{"kind", "status"},
	)

	metrics := map[string]prometheus.Collector{
		"submissions": submissions,
		"rejections":  rejections,
		"violations":  violations,
		"corrections": corrections,
		"batches":     batches,
	}

	for _, metric := range metrics {
		registry.MustRegister(metric)
	}
	registry.MustRegister(collectors.NewGoCollector())

	return &Collector{
		registry:    registry,
		submissions: submissions,
		rejections:  rejections,
		violations:  violations,
		corrections: corrections,
		batches:     batches,
	}
}

// Observe implements process.Observer
func (c *Collector) Observe(e process.Event) {
	switch e.Kind {
	case process.EventStageSubmitted, process.EventDryingCompleted:
		c.submissions.WithLabelValues(e.Stage, e.RecordStatus).Inc()
		if e.BatchStatus != "" && e.BatchStatus != models.BatchStatusInProgress {
			c.batches.WithLabelValues(string(e.Kind), string(e.BatchStatus)).Inc()
		}
	case process.EventStageRejected:
		c.rejections.WithLabelValues(e.Stage).Inc()
		for _, v := range e.Violations {
			c.violations.WithLabelValues(e.Stage, v.Code).Inc()
		}
	case process.EventStageRestarted:
		c.corrections.WithLabelValues(e.Stage, "restart").Inc()
	case process.EventRecordSuperseded:
		c.corrections.WithLabelValues(e.Stage, "supersede").Inc()
	default:
		c.batches.WithLabelValues(string(e.Kind), string(e.BatchStatus)).Inc()
	}
}

// Registry returns the registry the collector's series live in
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
