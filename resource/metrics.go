package resource

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records operation outcomes and cache effectiveness per resource.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
}

// NewMetrics registers the resource collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resource_operations_total",
			Help: "Resource operations by outcome.",
		}, []string{"resource", "operation", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resource_operation_duration_seconds",
			Help:    "Resource operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"resource", "operation"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resource_cache_lookups_total",
			Help: "Resource cache lookups by key family and result.",
		}, []string{"resource", "kind", "result"}),
	}
}

func (m *Metrics) observe(resource string, op Operation, started time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(resource, string(op), outcome(err)).Inc()
	m.duration.WithLabelValues(resource, string(op)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) cacheLookup(resource, kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(resource, kind, result).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsMethodNotAllowed(err):
		return "method_not_allowed"
	case IsNotFound(err):
		return "not_found"
	case IsValidation(err):
		return "invalid"
	case IsFieldNotAllowed(err):
		return "field_not_allowed"
	case IsParseError(err):
		return "parse_error"
	default:
		return "error"
	}
}
