package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted around line configuration
// compilation.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with request and reconfigure paths.
type Collector interface {
	IncCompile(consumer string)
	IncCompileError(consumer, kind string)
	SetOverridesInUse(consumer string, count int)
	SetAttrSlotsUsed(consumer string, count int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncCompile(string)              {}
func (noopCollector) IncCompileError(string, string) {}
func (noopCollector) SetOverridesInUse(string, int)  {}
func (noopCollector) SetAttrSlotsUsed(string, int)   {}

// PrometheusCollector exposes compilation counters via Prometheus.
type PrometheusCollector struct {
	compiles       *prometheus.CounterVec
	compileErrors  *prometheus.CounterVec
	overridesInUse *prometheus.GaugeVec
	attrSlotsUsed  *prometheus.GaugeVec
}

var (
	compileCounter          *prometheus.CounterVec
	compileCounterLock      sync.Mutex
	compileErrorCounter     *prometheus.CounterVec
	compileErrorCounterLock sync.Mutex
	overridesInUseGauge     *prometheus.GaugeVec
	overridesInUseGaugeLock sync.Mutex
	attrSlotsUsedGauge      *prometheus.GaugeVec
	attrSlotsUsedGaugeLock  sync.Mutex
)

func registerCounterVec(reg prometheus.Registerer, target **prometheus.CounterVec, lock *sync.Mutex, opts prometheus.CounterOpts, labels []string) error {
	lock.Lock()
	defer lock.Unlock()
	if *target != nil {
		return nil
	}
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return err
		}
		*target = existing
		return nil
	}
	*target = counter
	return nil
}

func registerGaugeVec(reg prometheus.Registerer, target **prometheus.GaugeVec, lock *sync.Mutex, opts prometheus.GaugeOpts, labels []string) error {
	lock.Lock()
	defer lock.Unlock()
	if *target != nil {
		return nil
	}
	gauge := prometheus.NewGaugeVec(opts, labels)
	if err := reg.Register(gauge); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return err
		}
		*target = existing
		return nil
	}
	*target = gauge
	return nil
}

// NewPrometheusCollector registers the required metrics with the provided
// registerer. Passing nil uses the default registerer. Repeated calls reuse
// the collectors registered first.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	if err := registerCounterVec(reg, &compileCounter, &compileCounterLock, prometheus.CounterOpts{
		Name: "gpioline_compile_total",
		Help: "Number of successful line configuration compilations per consumer.",
	}, []string{"consumer"}); err != nil {
		return nil, err
	}
	if err := registerCounterVec(reg, &compileErrorCounter, &compileErrorCounterLock, prometheus.CounterOpts{
		Name: "gpioline_compile_errors_total",
		Help: "Number of failed line configuration compilations per consumer and error kind.",
	}, []string{"consumer", "kind"}); err != nil {
		return nil, err
	}
	if err := registerGaugeVec(reg, &overridesInUseGauge, &overridesInUseGaugeLock, prometheus.GaugeOpts{
		Name: "gpioline_overrides_in_use",
		Help: "Number of overridden line properties at the last compilation.",
	}, []string{"consumer"}); err != nil {
		return nil, err
	}
	if err := registerGaugeVec(reg, &attrSlotsUsedGauge, &attrSlotsUsedGaugeLock, prometheus.GaugeOpts{
		Name: "gpioline_attribute_slots_used",
		Help: "Number of attribute slots emitted by the last successful compilation.",
	}, []string{"consumer"}); err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		compiles:       compileCounter,
		compileErrors:  compileErrorCounter,
		overridesInUse: overridesInUseGauge,
		attrSlotsUsed:  attrSlotsUsedGauge,
	}, nil
}

// IncCompile increments the success counter for the provided consumer.
func (p *PrometheusCollector) IncCompile(consumer string) {
	if p == nil || p.compiles == nil {
		return
	}
	p.compiles.WithLabelValues(consumer).Inc()
}

// IncCompileError records a failed compilation of the given error kind.
func (p *PrometheusCollector) IncCompileError(consumer, kind string) {
	if p == nil || p.compileErrors == nil {
		return
	}
	p.compileErrors.WithLabelValues(consumer, kind).Inc()
}

// SetOverridesInUse updates the gauge tracking overridden properties.
func (p *PrometheusCollector) SetOverridesInUse(consumer string, count int) {
	if p == nil || p.overridesInUse == nil {
		return
	}
	p.overridesInUse.WithLabelValues(consumer).Set(float64(count))
}

// SetAttrSlotsUsed updates the gauge tracking emitted attribute slots.
func (p *PrometheusCollector) SetAttrSlotsUsed(consumer string, count int) {
	if p == nil || p.attrSlotsUsed == nil {
		return
	}
	p.attrSlotsUsed.WithLabelValues(consumer).Set(float64(count))
}
