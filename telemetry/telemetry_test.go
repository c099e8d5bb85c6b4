package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncCompile("lines")
	collector.IncCompileError("lines", "overflow")
	collector.SetOverridesInUse("lines", 3)
	collector.SetAttrSlotsUsed("lines", 1)
}

func TestPrometheusCollectorRegistersAndReusesCounter(t *testing.T) {
	compileCounterLock.Lock()
	compileCounter = nil
	compileCounterLock.Unlock()

	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, collector)

	collector.IncCompile("lines")

	metric := findMetricFamily(t, reg, "gpioline_compile_total")
	requireCounterValue(t, metric, 1)

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.compiles, again.compiles)

	again.IncCompile("lines")
	metric = findMetricFamily(t, reg, "gpioline_compile_total")
	requireCounterValue(t, metric, 2)
}

func TestPrometheusCollectorGauges(t *testing.T) {
	overridesInUseGaugeLock.Lock()
	overridesInUseGauge = nil
	overridesInUseGaugeLock.Unlock()

	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.SetOverridesInUse("lines", 5)
	collector.SetOverridesInUse("lines", 2)

	metric := findMetricFamily(t, reg, "gpioline_overrides_in_use")
	require.Len(t, metric.Metric, 1)
	require.NotNil(t, metric.Metric[0].Gauge)
	require.Equal(t, 2.0, metric.Metric[0].Gauge.GetValue())
}

func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	metrics, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range metrics {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not gathered", name)
	return nil
}

func requireCounterValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Counter)
	require.Equal(t, value, mf.Metric[0].Counter.GetValue())
}
