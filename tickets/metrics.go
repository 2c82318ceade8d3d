package tickets

import (
	"time"

	"github.com/jrsteele09/go-chamados-sync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records store activity. A nil *Metrics records nothing.
type Metrics struct {
	fetches  *prometheus.CounterVec
	stale    prometheus.Counter
	duration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.fetches, err = metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "store",
		Name:      "fetches_total",
		Help:      "Ticket page fetches by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.stale, err = metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "store",
		Name:      "stale_responses_total",
		Help:      "Fetch responses discarded because a newer query superseded them.",
	})); err != nil {
		return nil, err
	}
	if m.duration, err = metrics.Register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "store",
		Name:      "fetch_duration_seconds",
		Help:      "Ticket page fetch latency.",
		Buckets:   prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) fetched(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
	m.duration.Observe(took.Seconds())
}

func (m *Metrics) discarded() {
	if m != nil {
		m.stale.Inc()
	}
}
