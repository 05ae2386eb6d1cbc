package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики оформления и жизненного цикла заказов.
type CheckoutMetrics struct {
	// Счётчики оформления
	checkoutStarted     prometheus.Counter
	checkoutCompleted   prometheus.Counter
	checkoutFailed      *prometheus.CounterVec
	checkoutCompensated prometheus.Counter

	checkoutDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec

	statusTransitions *prometheus.CounterVec
	timelineEvents    prometheus.Counter
	outboxEvents      prometheus.Counter

	activeCheckouts prometheus.Gauge
}

// NewCheckoutMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в заданном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_started_total",
			Help: "Total number of checkouts started",
		}),
		checkoutCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_completed_total",
			Help: "Total number of checkouts that produced an order",
		}),
		checkoutFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_failed_total",
			Help: "Total number of failed checkouts grouped by reason",
		}, []string{"reason"}),
		checkoutCompensated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_compensated_total",
			Help: "Total number of checkouts rolled back by compensation",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		statusTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_status_transitions_total",
			Help: "Total number of applied order status transitions",
		}, []string{"to"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of events enqueued into the outbox",
		}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_checkouts",
			Help: "Number of checkouts currently in progress",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register(registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register(registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return register(registerer, opts.Name, prometheus.NewHistogram(opts))
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(registerer, opts.Name, prometheus.NewHistogramVec(opts, labels))
}

// register возвращает уже зарегистрированный коллектор того же типа, если он есть.
func register[T prometheus.Collector](registerer prometheus.Registerer, name string, collector T) T {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// RecordCheckoutStarted увеличивает счётчик начатых оформлений.
func (m *CheckoutMetrics) RecordCheckoutStarted() {
	if m == nil {
		return
	}
	m.checkoutStarted.Inc()
	m.activeCheckouts.Inc()
}

// RecordCheckoutFinished закрывает оформление: длительность и активные оформления.
func (m *CheckoutMetrics) RecordCheckoutFinished(duration time.Duration) {
	if m == nil {
		return
	}
	m.activeCheckouts.Dec()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordCheckoutCompleted увеличивает счётчик успешных оформлений.
func (m *CheckoutMetrics) RecordCheckoutCompleted() {
	if m == nil {
		return
	}
	m.checkoutCompleted.Inc()
}

// RecordCheckoutFailed учитывает неудачу с коротким кодом причины.
func (m *CheckoutMetrics) RecordCheckoutFailed(reason string) {
	if m == nil {
		return
	}
	m.checkoutFailed.WithLabelValues(reason).Inc()
}

// RecordCheckoutCompensated учитывает откат созданного заказа.
func (m *CheckoutMetrics) RecordCheckoutCompensated() {
	if m == nil {
		return
	}
	m.checkoutCompensated.Inc()
}

// RecordStepDuration записывает время выполнения шага оформления.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordStatusTransition учитывает смену статуса заказа.
func (m *CheckoutMetrics) RecordStatusTransition(to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(to).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
