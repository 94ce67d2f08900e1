package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Sweeper metrics
	sweepsTotal      prometheus.Counter
	sweepErrorsTotal prometheus.Counter
	sweptTotal       prometheus.Counter
	sweepDuration    prometheus.Histogram
	dueBacklog       prometheus.Gauge

	// Lifecycle / notifier metrics
	sendAttemptsTotal     *prometheus.CounterVec
	scheduleOutcomesTotal *prometheus.CounterVec
	deliveryOutcomesTotal *prometheus.CounterVec
	engineCallDuration    prometheus.Histogram
	triggerCallbacksTotal *prometheus.CounterVec

	// EventBus metrics
	bufferSize      prometheus.Gauge
	emitErrorsTotal prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSweeperMetrics(reg)
	s.initLifecycleMetrics(reg)
	s.initEventBusMetrics(reg)
	return s
}

func (s *PrometheusSink) initSweeperMetrics(reg prometheus.Registerer) {
	s.sweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remindd_sweeper_sweeps_total",
		Help: "Total number of sweep cycles processed.",
	})
	s.sweepErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remindd_sweeper_sweep_errors_total",
		Help: "Total number of sweep cycles that ended with an error.",
	})
	s.sweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remindd_sweeper_reminders_swept_total",
		Help: "Total number of reminders moved to overdue by the sweeper.",
	})
	s.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "remindd_sweeper_sweep_duration_seconds",
		Help:    "Duration of each sweep cycle in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
	s.dueBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "remindd_sweeper_due_backlog",
		Help: "Number of due, non-terminal reminders seen in the last sweep.",
	})

	s.register(reg, s.sweepsTotal, "remindd_sweeper_sweeps_total")
	s.register(reg, s.sweepErrorsTotal, "remindd_sweeper_sweep_errors_total")
	s.register(reg, s.sweptTotal, "remindd_sweeper_reminders_swept_total")
	s.register(reg, s.sweepDuration, "remindd_sweeper_sweep_duration_seconds")
	s.register(reg, s.dueBacklog, "remindd_sweeper_due_backlog")
}

func (s *PrometheusSink) initLifecycleMetrics(reg prometheus.Registerer) {
	s.sendAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remindd_notifier_send_attempts_total",
		Help: "Total number of delivery engine calls.",
	}, []string{"kind", "status_class"})

	s.scheduleOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remindd_lifecycle_schedule_outcomes_total",
		Help: "Total number of schedule-ahead outcomes.",
	}, []string{"outcome"})

	s.deliveryOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remindd_lifecycle_delivery_outcomes_total",
		Help: "Total number of immediate-send outcomes.",
	}, []string{"outcome"})

	s.engineCallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "remindd_notifier_engine_call_duration_seconds",
		Help:    "Delivery engine request latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.triggerCallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remindd_trigger_callbacks_total",
		Help: "Total number of trigger callbacks received.",
	}, []string{"replayed"})

	s.register(reg, s.sendAttemptsTotal, "remindd_notifier_send_attempts_total")
	s.register(reg, s.scheduleOutcomesTotal, "remindd_lifecycle_schedule_outcomes_total")
	s.register(reg, s.deliveryOutcomesTotal, "remindd_lifecycle_delivery_outcomes_total")
	s.register(reg, s.engineCallDuration, "remindd_notifier_engine_call_duration_seconds")
	s.register(reg, s.triggerCallbacksTotal, "remindd_trigger_callbacks_total")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "remindd_eventbus_buffer_size",
		Help: "Current number of events in the event bus buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remindd_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full).",
	})

	s.register(reg, s.bufferSize, "remindd_eventbus_buffer_size")
	s.register(reg, s.emitErrorsTotal, "remindd_eventbus_emit_errors_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Sweeper metrics implementation

func (s *PrometheusSink) SweepStarted() {
	s.sweepsTotal.Inc()
}

func (s *PrometheusSink) SweepCompleted(duration time.Duration, swept int, err error) {
	s.sweepDuration.Observe(duration.Seconds())
	s.sweptTotal.Add(float64(swept))
	if err != nil {
		s.sweepErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) DueBacklogUpdate(count int) {
	s.dueBacklog.Set(float64(count))
}

// Lifecycle / notifier metrics implementation

func (s *PrometheusSink) SendAttemptCompleted(kind string, statusClass string, duration time.Duration) {
	s.sendAttemptsTotal.WithLabelValues(kind, statusClass).Inc()
	s.engineCallDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) ScheduleOutcome(outcome string) {
	s.scheduleOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) DeliveryOutcome(outcome string) {
	s.deliveryOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) TriggerReceived(replayed bool) {
	label := "false"
	if replayed {
		label = "true"
	}
	s.triggerCallbacksTotal.WithLabelValues(label).Inc()
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}
