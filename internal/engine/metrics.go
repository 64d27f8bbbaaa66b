package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

type Metrics struct {
	reg prometheus.Registerer

	// Latency: полное время Submit, включая подписи и commit
	InstructionDuration *prometheus.HistogramVec

	// Traffic: обработанные инструкции по варианту и исходу
	InstructionsTotal *prometheus.CounterVec

	// Errors: классификация отказов (см. ErrorKind)
	ErrorTotal *prometheus.CounterVec

	// Program errors: коды ошибок ядра
	ProgramErrors *prometheus.CounterVec

	// Saturation: состояние предохранителя (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Safety: роботы с активной аварийной остановкой в локальном кэше
	StoppedRobots prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		reg: reg,

		InstructionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roby_instruction_duration_seconds",
			Help:    "Histogram of transaction processing latencies.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"instruction", "status"}),

		InstructionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "roby_instructions_total",
			Help: "Total number of submitted instructions by outcome.",
		}, []string{"instruction", "status"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "roby_errors_total",
			Help: "Total number of rejected transactions by error kind.",
		}, []string{"type"}),

		ProgramErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "roby_program_errors_total",
			Help: "Program errors returned by the access-control core.",
		}, []string{"code"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "roby_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),

		StoppedRobots: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "roby_emergency_stopped_robots",
			Help: "Robots with a latched emergency stop known to this instance.",
		}),
	}
}

// RegisterBacklog публикует заполненность буфера журнала (backpressure).
func (m *Metrics) RegisterBacklog(pending func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "roby_journal_buffer_utilization",
		Help: "Current number of events waiting in the journal buffer.",
	}, func() float64 { return float64(pending()) })
}

func (m *Metrics) setBreakerState(name string, s gobreaker.State) {
	var v float64
	switch s {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}
