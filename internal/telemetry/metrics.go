package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Значения метки result.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics — Prometheus метрики развёртываний.
//
// Каждый экземпляр держит собственный реестр, поэтому тесты и несколько
// оркестраторов в одном процессе не конфликтуют при регистрации.
// Nil *Metrics допустим: все методы ничего не делают.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	phaseDuration  *prometheus.HistogramVec
	stepsTotal     *prometheus.CounterVec
	stateConflicts prometheus.Counter
	rollbacksTotal *prometheus.CounterVec
	lastSuccess    *prometheus.GaugeVec
}

// NewMetrics создаёт метрики в новом реестре.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "switchover_runs_total",
			Help: "Deployment runs by target slot and outcome.",
		}, []string{"slot", "outcome"}),
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switchover_phase_duration_seconds",
			Help:    "Duration of deployment phases.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"slot", "phase"}),
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "switchover_steps_total",
			Help: "Executed steps by kind and result.",
		}, []string{"kind", "result"}),
		stateConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "switchover_state_conflicts_total",
			Help: "State record writes rejected because of a concurrent modification.",
		}),
		rollbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "switchover_rollbacks_total",
			Help: "Rollbacks to the other slot by result.",
		}, []string{"result"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "switchover_last_success_timestamp_seconds",
			Help: "Unix time of the last successful activation per slot.",
		}, []string{"slot"}),
	}
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler возвращает HTTP handler для /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile пишет метрики в формате textfile collector node_exporter.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// ObserveRun учитывает завершённый run.
func (m *Metrics) ObserveRun(slot, outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(slot, outcome).Inc()
}

// ObservePhase учитывает длительность фазы.
func (m *Metrics) ObservePhase(slot, phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(slot, phase).Observe(d.Seconds())
}

// ObserveStep учитывает выполненный шаг.
func (m *Metrics) ObserveStep(kind string, err error) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(kind, resultLabel(err)).Inc()
}

// ObserveConflict учитывает конфликт записи состояния.
func (m *Metrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.stateConflicts.Inc()
}

// ObserveRollback учитывает откат.
func (m *Metrics) ObserveRollback(err error) {
	if m == nil {
		return
	}
	m.rollbacksTotal.WithLabelValues(resultLabel(err)).Inc()
}

// MarkActivated фиксирует время успешной активации слота.
func (m *Metrics) MarkActivated(slot string, at time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.WithLabelValues(slot).Set(float64(at.Unix()))
}

func resultLabel(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
