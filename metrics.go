package dispatcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// serviceMetrics holds the collectors for one Service. A nil *serviceMetrics
// records nothing.
type serviceMetrics struct {
	submitted      prometheus.Counter
	deliveries     *prometheus.CounterVec
	deliveryTime   *prometheus.HistogramVec
	outcomes       *prometheus.CounterVec
	circuitState   *prometheus.GaugeVec
	queueDepth     prometheus.GaugeFunc
	admittedWindow prometheus.GaugeFunc
}

func newServiceMetrics(config MetricsConfig, queueSize, admitted func() int) (*serviceMetrics, error) {
	if !config.Enabled {
		return nil, nil
	}

	reg := config.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	ns := config.Namespace

	m := &serviceMetrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "messages_submitted_total",
			Help:      "Total messages accepted by Submit and queued.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "provider_deliveries_total",
			Help:      "Delivery calls per provider by result.",
		}, []string{"provider", "result"}), // result: sent, failed, rejected, circuit_open
		deliveryTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "provider_delivery_duration_seconds",
			Help:      "Duration of delivery calls per provider.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "messages_processed_total",
			Help:      "Messages that reached a terminal status.",
		}, []string{"status"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "circuit_state",
			Help:      "Circuit breaker state per provider (0 closed, 1 open, 2 half-open).",
		}, []string{"provider"}),
		queueDepth: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "queue_depth",
			Help:      "Messages waiting in the delivery queue.",
		}, func() float64 { return float64(queueSize()) }),
		admittedWindow: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "rate_limit_admitted",
			Help:      "Admissions inside the current rate limit window.",
		}, func() float64 { return float64(admitted()) }),
	}

	collectors := []prometheus.Collector{
		m.submitted, m.deliveries, m.deliveryTime, m.outcomes,
		m.circuitState, m.queueDepth, m.admittedWindow,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return m, nil
}

func (m *serviceMetrics) observeSubmit() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

func (m *serviceMetrics) observeDelivery(provider string, started time.Time, err error) {
	if m == nil {
		return
	}
	var providerErr *ProviderError
	result := "sent"
	switch {
	case errors.Is(err, ErrCircuitOpen):
		m.deliveries.WithLabelValues(provider, "circuit_open").Inc()
		return
	case errors.As(err, &providerErr) && !providerErr.Retryable():
		// The provider refused the message outright, e.g. a 4xx API reply.
		result = "rejected"
	case err != nil:
		result = "failed"
	}
	m.deliveries.WithLabelValues(provider, result).Inc()
	m.deliveryTime.WithLabelValues(provider).Observe(time.Since(started).Seconds())
}

func (m *serviceMetrics) observeOutcome(status Status) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(status.String()).Inc()
}

func (m *serviceMetrics) observeCircuit(provider string, state CircuitBreakerState) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(provider).Set(float64(state))
}
