package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "topupledger"

// Metrics groups every collector the service exports. All methods are safe
// on a nil receiver so components can run without instrumentation.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	ledgerResolutions   *prometheus.CounterVec
	ledgerReservations  *prometheus.CounterVec
	webhooksTotal       *prometheus.CounterVec
	paymentExceptions   *prometheus.CounterVec
	purchasesTotal      *prometheus.CounterVec
	fulfillmentDuration *prometheus.HistogramVec
	sweepRunsTotal      *prometheus.CounterVec
	sweepResolvedTotal  *prometheus.CounterVec
	sweepLastRunUnix    prometheus.Gauge
	balanceSubscribers  prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests partitioned by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency partitioned by method and route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ledgerResolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "resolutions_total",
				Help:      "Ledger entry resolutions by kind and result (success, failed, noop).",
			},
			[]string{"kind", "result"},
		),
		ledgerReservations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "reservations_total",
				Help:      "Purchase reservations by result.",
			},
			[]string{"result"},
		),
		webhooksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credit",
				Name:      "webhooks_total",
				Help:      "Payment provider webhook deliveries by provider and result.",
			},
			[]string{"provider", "result"},
		),
		paymentExceptions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credit",
				Name:      "exceptions_total",
				Help:      "Confirmed payments flagged for manual review, by reason.",
			},
			[]string{"reason"},
		),
		purchasesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "purchase",
				Name:      "total",
				Help:      "Purchases by product and outcome.",
			},
			[]string{"product", "outcome"},
		),
		fulfillmentDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "purchase",
				Name:      "fulfillment_duration_seconds",
				Help:      "Fulfillment provider call latency by provider.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider"},
		),
		sweepRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweeper",
				Name:      "runs_total",
				Help:      "Reconciliation sweeps partitioned by result.",
			},
			[]string{"result"},
		),
		sweepResolvedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweeper",
				Name:      "resolved_total",
				Help:      "Entries resolved by the sweeper, by reason.",
			},
			[]string{"reason"},
		),
		sweepLastRunUnix: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sweeper",
				Name:      "last_run_unix",
				Help:      "Unix time of the most recent sweep.",
			},
		),
		balanceSubscribers: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "balance",
				Name:      "subscribers",
				Help:      "Current number of balance stream subscribers.",
			},
		),
	}
}

func (m *Metrics) ObserveHTTP(method, route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func (m *Metrics) ObserveResolution(kind, result string) {
	if m == nil {
		return
	}
	m.ledgerResolutions.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveReservation(result string) {
	if m == nil {
		return
	}
	m.ledgerReservations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveWebhook(provider, result string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) ObservePaymentException(reason string) {
	if m == nil {
		return
	}
	m.paymentExceptions.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObservePurchase(product, outcome string) {
	if m == nil {
		return
	}
	m.purchasesTotal.WithLabelValues(product, outcome).Inc()
}

func (m *Metrics) ObserveFulfillment(provider string, took time.Duration) {
	if m == nil {
		return
	}
	m.fulfillmentDuration.WithLabelValues(provider).Observe(took.Seconds())
}

// ObserveSweep records one sweeper pass. resolved maps a reason
// (expired, settled, rejected) to the number of entries it closed.
func (m *Metrics) ObserveSweep(resolved map[string]int, err error) {
	if m == nil {
		return
	}
	m.sweepLastRunUnix.Set(float64(time.Now().UTC().Unix()))
	if err != nil {
		m.sweepRunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.sweepRunsTotal.WithLabelValues("success").Inc()
	for reason, n := range resolved {
		if n > 0 {
			m.sweepResolvedTotal.WithLabelValues(reason).Add(float64(n))
		}
	}
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.balanceSubscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.balanceSubscribers.Dec()
}
