package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Scheduler metrics
	ticksTotal            prometheus.Counter
	tickErrorsTotal       prometheus.Counter
	schedulesFiredTotal   *prometheus.CounterVec
	evaluationErrorsTotal *prometheus.CounterVec
	tickDuration          prometheus.Histogram

	// Dispatcher metrics
	deliveryAttemptsTotal *prometheus.CounterVec
	deliveryOutcomesTotal *prometheus.CounterVec
	webhookDuration       prometheus.Histogram
	retryAttemptsTotal    *prometheus.CounterVec
	eventsInFlight        prometheus.Gauge

	// EventBus metrics
	bufferSize       prometheus.Gauge
	bufferCapacity   prometheus.Gauge
	bufferSaturation prometheus.Gauge
	emitErrorsTotal  prometheus.Counter

	// Reconciler metrics
	orphanedExecutions prometheus.Gauge

	// API metrics
	validationFailuresTotal *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSchedulerMetrics(reg)
	s.initDispatcherMetrics(reg)
	s.initEventBusMetrics(reg)
	s.initReconcilerMetrics(reg)
	s.initAPIMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easytrigger_scheduler_ticks_total",
		Help: "Total number of scheduler ticks processed.",
	})
	s.tickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easytrigger_scheduler_tick_errors_total",
		Help: "Total number of scheduler tick errors.",
	})
	s.schedulesFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easytrigger_scheduler_schedules_fired_total",
		Help: "Total number of schedule firings (executions emitted) by trigger kind.",
	}, []string{"kind"})
	s.evaluationErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easytrigger_scheduler_evaluation_errors_total",
		Help: "Total number of trigger evaluation failures by trigger kind.",
	}, []string{"kind"})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "easytrigger_scheduler_tick_duration_seconds",
		Help:    "Duration of each scheduler tick in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	s.register(reg, s.ticksTotal, "easytrigger_scheduler_ticks_total")
	s.register(reg, s.tickErrorsTotal, "easytrigger_scheduler_tick_errors_total")
	s.register(reg, s.schedulesFiredTotal, "easytrigger_scheduler_schedules_fired_total")
	s.register(reg, s.evaluationErrorsTotal, "easytrigger_scheduler_evaluation_errors_total")
	s.register(reg, s.tickDuration, "easytrigger_scheduler_tick_duration_seconds")
}

func (s *PrometheusSink) initDispatcherMetrics(reg prometheus.Registerer) {
	s.deliveryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easytrigger_dispatcher_delivery_attempts_total",
		Help: "Total number of webhook delivery attempts.",
	}, []string{"attempt", "status_class"})

	s.deliveryOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easytrigger_dispatcher_delivery_outcomes_total",
		Help: "Total number of final delivery outcomes per execution.",
	}, []string{"outcome"})

	s.webhookDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "easytrigger_dispatcher_webhook_duration_seconds",
		Help:    "Webhook request latency in seconds (excludes backoff wait).",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.retryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easytrigger_dispatcher_retry_attempts_total",
		Help: "Total number of retry attempts (excludes first attempt).",
	}, []string{"retryable"})

	s.eventsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easytrigger_dispatcher_events_in_flight",
		Help: "Number of events currently being processed.",
	})

	s.register(reg, s.deliveryAttemptsTotal, "easytrigger_dispatcher_delivery_attempts_total")
	s.register(reg, s.deliveryOutcomesTotal, "easytrigger_dispatcher_delivery_outcomes_total")
	s.register(reg, s.webhookDuration, "easytrigger_dispatcher_webhook_duration_seconds")
	s.register(reg, s.retryAttemptsTotal, "easytrigger_dispatcher_retry_attempts_total")
	s.register(reg, s.eventsInFlight, "easytrigger_dispatcher_events_in_flight")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easytrigger_eventbus_buffer_size",
		Help: "Current number of events in the event bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easytrigger_eventbus_buffer_capacity",
		Help: "Configured capacity of the event bus buffer.",
	})
	s.bufferSaturation = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easytrigger_eventbus_buffer_saturation",
		Help: "Event bus buffer fill ratio (size / capacity).",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easytrigger_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full or context cancelled).",
	})

	s.register(reg, s.bufferSize, "easytrigger_eventbus_buffer_size")
	s.register(reg, s.bufferCapacity, "easytrigger_eventbus_buffer_capacity")
	s.register(reg, s.bufferSaturation, "easytrigger_eventbus_buffer_saturation")
	s.register(reg, s.emitErrorsTotal, "easytrigger_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initReconcilerMetrics(reg prometheus.Registerer) {
	s.orphanedExecutions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easytrigger_reconciler_orphaned_executions",
		Help: "Number of emitted executions older than the orphan threshold at last sweep.",
	})

	s.register(reg, s.orphanedExecutions, "easytrigger_reconciler_orphaned_executions")
}

func (s *PrometheusSink) initAPIMetrics(reg prometheus.Registerer) {
	s.validationFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easytrigger_api_validation_failures_total",
		Help: "Total number of rejected schedule creations by validation reason.",
	}, []string{"reason"})

	s.register(reg, s.validationFailuresTotal, "easytrigger_api_validation_failures_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Scheduler metrics implementation

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, fired int, err error) {
	s.tickDuration.Observe(duration.Seconds())
	if err != nil {
		s.tickErrorsTotal.Inc()
	}
	_ = fired // per-kind counts arrive via ScheduleFired
}

func (s *PrometheusSink) ScheduleFired(kind domain.TriggerKind) {
	s.schedulesFiredTotal.WithLabelValues(string(kind)).Inc()
}

func (s *PrometheusSink) EvaluationFailed(kind domain.TriggerKind) {
	s.evaluationErrorsTotal.WithLabelValues(string(kind)).Inc()
}

// Dispatcher metrics implementation

func (s *PrometheusSink) DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration) {
	s.deliveryAttemptsTotal.WithLabelValues(strconv.Itoa(attempt), statusClass).Inc()
	s.webhookDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) DeliveryOutcome(outcome string) {
	s.deliveryOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) RetryAttempt(retryable bool) {
	s.retryAttemptsTotal.WithLabelValues(strconv.FormatBool(retryable)).Inc()
}

func (s *PrometheusSink) EventsInFlightIncr() {
	s.eventsInFlight.Inc()
}

func (s *PrometheusSink) EventsInFlightDecr() {
	s.eventsInFlight.Dec()
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) BufferSaturationUpdate(saturation float64) {
	s.bufferSaturation.Set(saturation)
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

// Reconciler metrics implementation

func (s *PrometheusSink) OrphanedExecutionsUpdate(count int) {
	s.orphanedExecutions.Set(float64(count))
}

// API metrics implementation

func (s *PrometheusSink) ValidationFailed(reason string) {
	s.validationFailuresTotal.WithLabelValues(reason).Inc()
}
