package realtime

import (
	"github.com/jrsteele09/go-chamados-sync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const otherEvent = "other"

// Metrics records channel activity. A nil *Metrics records nothing.
type Metrics struct {
	attempts   *prometheus.CounterVec
	reconnects prometheus.Counter
	giveUps    prometheus.Counter
	events     *prometheus.CounterVec
	state      prometheus.Gauge
}

// NewMetrics registers the channel collectors with reg (nil uses the default
// registerer).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.attempts, err = metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "channel",
		Name:      "connect_attempts_total",
		Help:      "Push channel connect attempts by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.reconnects, err = metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "channel",
		Name:      "reconnects_scheduled_total",
		Help:      "Reconnect attempts scheduled after a failure or drop.",
	})); err != nil {
		return nil, err
	}
	if m.giveUps, err = metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "channel",
		Name:      "give_ups_total",
		Help:      "Times the channel stopped retrying after exhausting its retry budget.",
	})); err != nil {
		return nil, err
	}
	if m.events, err = metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "channel",
		Name:      "events_total",
		Help:      "Server events received, by name and whether they were recognized.",
	}, []string{"name", "recognized"})); err != nil {
		return nil, err
	}
	if m.state, err = metrics.Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "channel",
		Name:      "state",
		Help:      "Current channel state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 closed).",
	})); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) attempt(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.attempts.WithLabelValues(result).Inc()
}

func (m *Metrics) reconnectScheduled() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) gaveUp() {
	if m != nil {
		m.giveUps.Inc()
	}
}

func (m *Metrics) event(name string, recognized bool) {
	if m == nil {
		return
	}
	if !recognized {
		m.events.WithLabelValues(otherEvent, "false").Inc()
		return
	}
	m.events.WithLabelValues(name, "true").Inc()
}

func (m *Metrics) setState(s State) {
	if m != nil {
		m.state.Set(float64(s))
	}
}
