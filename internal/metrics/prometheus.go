package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Recorder backed by Prometheus. Collectors
// are registered lazily on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	resolveLatency  prometheus.Histogram
	resolvePeriods  prometheus.Histogram
	resolveDefects  prometheus.Counter
	refreshResults  *prometheus.CounterVec
	refreshLatency  prometheus.Histogram
	vacationFetches *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	childrenPresent prometheus.Gauge
}

var _ Recorder = (*PrometheusCollector)(nil)

// NewPrometheus creates a collector. reg defaults to
// prometheus.DefaultRegisterer, namespace to "custody".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "custody"
	}
	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.resolveLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "resolver",
			Name:      "resolve_duration_seconds",
			Help:      "Latency of timeline resolutions in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 100µs .. ~200ms
		})
		p.resolvePeriods = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "resolver",
			Name:      "periods",
			Help:      "Number of periods in resolved timelines.",
			Buckets:   []float64{0, 5, 10, 25, 50, 100, 250},
		})
		p.resolveDefects = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "resolver",
			Name:      "entry_defects_total",
			Help:      "Vacation entries skipped as malformed or ambiguous.",
		})
		p.refreshResults = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "refresh_runs_total",
			Help:      "Refresh runs by result (success, failure).",
		}, []string{"result"})
		p.refreshLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh runs in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 20},
		})
		p.vacationFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "vacation",
			Name:      "fetches_total",
			Help:      "School calendar lookups by source and result.",
		}, []string{"source", "result"})
		p.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "notify",
			Name:      "events_total",
			Help:      "Published transition events by type.",
		}, []string{"type"})
		p.childrenPresent = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      "children_present",
			Help:      "Children currently present according to the last refresh.",
		})

		p.reg.MustRegister(p.resolveLatency)
		p.reg.MustRegister(p.resolvePeriods)
		p.reg.MustRegister(p.resolveDefects)
		p.reg.MustRegister(p.refreshResults)
		p.reg.MustRegister(p.refreshLatency)
		p.reg.MustRegister(p.vacationFetches)
		p.reg.MustRegister(p.notifications)
		p.reg.MustRegister(p.childrenPresent)
	})
}

func (p *PrometheusCollector) ObserveResolve(seconds float64, periods, defects int) {
	p.ensureRegistered()
	p.resolveLatency.Observe(seconds)
	p.resolvePeriods.Observe(float64(periods))
	if defects > 0 {
		p.resolveDefects.Add(float64(defects))
	}
}

func (p *PrometheusCollector) RecordRefresh(result string, seconds float64) {
	p.ensureRegistered()
	p.refreshResults.WithLabelValues(result).Inc()
	p.refreshLatency.Observe(seconds)
}

func (p *PrometheusCollector) RecordVacationFetch(source, result string) {
	p.ensureRegistered()
	p.vacationFetches.WithLabelValues(source, result).Inc()
}

func (p *PrometheusCollector) RecordNotification(eventType string) {
	p.ensureRegistered()
	p.notifications.WithLabelValues(eventType).Inc()
}

func (p *PrometheusCollector) SetChildrenPresent(count int) {
	p.ensureRegistered()
	p.childrenPresent.Set(float64(count))
}
