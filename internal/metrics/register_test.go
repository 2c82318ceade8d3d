package metrics_test

import (
	"testing"

	"github.com/jrsteele09/go-chamados-sync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegister_ReturnsExistingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := prometheus.CounterOpts{Namespace: metrics.Namespace, Name: "things_total", Help: "things"}

	first, err := metrics.Register(reg, prometheus.NewCounter(opts))
	require.NoError(t, err)
	first.Inc()

	second, err := metrics.Register(reg, prometheus.NewCounter(opts))
	require.NoError(t, err)
	second.Inc()

	require.Equal(t, float64(2), testutil.ToFloat64(first))
}

func TestRegister_TypeMismatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: "x", Help: "x"}))
	require.NoError(t, err)

	_, err = metrics.Register[prometheus.Gauge](reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: "x", Help: "x"}))
	require.Error(t, err)
}
