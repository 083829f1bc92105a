package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SimulationErrorStorage     = "storage"
	SimulationErrorProgramming = "programming"
	SimulationErrorCancelled   = "cancelled"
)

// SimulationMetrics captures sensor simulation health signals.
type SimulationMetrics struct {
	ticks        *prometheus.CounterVec
	tickDuration prometheus.Observer
	tickErrors   *prometheus.CounterVec
	rowsWritten  prometheus.Counter
	subjects     prometheus.Gauge
	wateredTotal prometheus.Counter
	runLoopLag   prometheus.Observer
}

var (
	simulationMetricsOnce sync.Once
	simulationMetrics     *SimulationMetrics
)

// SimulationWithConfig returns the process-wide simulation metrics on the default registerer.
func SimulationWithConfig(cfg Config) *SimulationMetrics {
	simulationMetricsOnce.Do(func() {
		simulationMetrics = NewSimulationMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return simulationMetrics
}

// NewSimulationMetrics registers a fresh set of collectors on registerer.
func NewSimulationMetrics(registerer prometheus.Registerer, cfg Config) *SimulationMetrics {
	constLabels := constLabelsFor(cfg)

	ticks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "plantcare_simulation_ticks_total",
		Help:        "Simulation ticks by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "plantcare_simulation_tick_duration_seconds",
		Help:        "Time spent computing and persisting one simulation tick.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	})
	tickErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "plantcare_simulation_tick_errors_total",
		Help:        "Simulation tick failures by error class.",
		ConstLabels: constLabels,
	}, []string{"class"})
	rowsWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "plantcare_simulation_rows_written_total",
		Help:        "Synthetic readings committed by the simulation.",
		ConstLabels: constLabels,
	})
	subjects := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "plantcare_simulation_subjects",
		Help:        "Subjects enumerated at the start of the last tick.",
		ConstLabels: constLabels,
	})
	wateredTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "plantcare_simulation_watering_events_total",
		Help:        "Simulated watering events.",
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "plantcare_simulation_runloop_lag_seconds",
		Help:        "Delay between the scheduled tick and the actual start.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})

	return &SimulationMetrics{
		ticks:        register(registerer, ticks),
		tickDuration: register(registerer, tickDuration),
		tickErrors:   register(registerer, tickErrors),
		rowsWritten:  register(registerer, rowsWritten),
		subjects:     register(registerer, subjects),
		wateredTotal: register(registerer, wateredTotal),
		runLoopLag:   register(registerer, runLoopLag),
	}
}

// ObserveTick records one finished tick; class is empty on success.
func (m *SimulationMetrics) ObserveTick(duration time.Duration, class string) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(duration.Seconds())
	if class == "" {
		m.ticks.WithLabelValues("ok").Inc()
		return
	}
	m.ticks.WithLabelValues("error").Inc()
	m.tickErrors.WithLabelValues(class).Inc()
}

func (m *SimulationMetrics) AddRowsWritten(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rowsWritten.Add(float64(count))
}

func (m *SimulationMetrics) SetSubjects(count int) {
	if m == nil {
		return
	}
	m.subjects.Set(float64(count))
}

func (m *SimulationMetrics) AddWateringEvents(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.wateredTotal.Add(float64(count))
}

func (m *SimulationMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m == nil {
		return
	}
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}
