package realtime_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-chamados-sync/realtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := realtime.NewMetrics(reg)
	require.NoError(t, err)

	again, err := realtime.NewMetrics(reg)
	require.NoError(t, err, "registering twice must reuse the existing collectors")

	f := newFixture(t, realtime.WithMetrics(again))
	f.dialer.FailNext(errNetwork)
	require.Error(t, f.channel.Start(context.Background()))
	f.waitState(t, realtime.Connected)

	f.dialer.Last().PushEvent("NovoChamado", 1)
	f.dialer.Last().PushEvent("Unknown", 1)

	require.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(reg, "chamados_channel_events_total")
		return err == nil && n == 2
	}, waitFor, tick)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range metric.GetLabel() {
				key += "|" + lp.GetName() + "=" + lp.GetValue()
			}
			if c := metric.GetCounter(); c != nil {
				values[key] = c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				values[key] = g.GetValue()
			}
		}
	}
	require.Equal(t, 1.0, values["chamados_channel_connect_attempts_total|result=failure"])
	require.Equal(t, 1.0, values["chamados_channel_connect_attempts_total|result=success"])
	require.Equal(t, 1.0, values["chamados_channel_events_total|name=NovoChamado|recognized=true"])
	require.Equal(t, 1.0, values["chamados_channel_events_total|name=other|recognized=false"])
	require.Equal(t, float64(realtime.Connected), values["chamados_channel_state"])
	require.NotNil(t, m)
}
