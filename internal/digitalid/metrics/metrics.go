package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the credential lifecycle.
// All methods are safe on a nil receiver so tests can omit metrics.
type Metrics struct {
	Operations          *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	LedgerCalls         *prometheus.HistogramVec
	ReconcileEnqueued   *prometheus.CounterVec
	ReconcileApplied    prometheus.Counter
	ReconcileDeadLetter prometheus.Counter
	ReconcilePending    prometheus.Gauge
	CredentialsExpired  prometheus.Counter
	ExpireFailures      prometheus.Counter
	EmergencyAccesses   prometheus.Counter
	OutboxPublished     prometheus.Counter
	OutboxFailures      prometheus.Counter
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "touristid_operations_total",
			Help: "Lifecycle operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "touristid_operation_duration_seconds",
			Help:    "Lifecycle operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		LedgerCalls: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "touristid_ledger_call_duration_seconds",
			Help:    "Ledger facade call latency by call and outcome",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"call", "outcome"}),
		ReconcileEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "touristid_reconcile_enqueued_total",
			Help: "Local writes queued for reconciliation after a confirmed ledger call",
		}, []string{"kind"}),
		ReconcileApplied: f.NewCounter(prometheus.CounterOpts{
			Name: "touristid_reconcile_applied_total",
			Help: "Queued local writes applied by the reconcile worker",
		}),
		ReconcileDeadLetter: f.NewCounter(prometheus.CounterOpts{
			Name: "touristid_reconcile_dead_lettered_total",
			Help: "Queued local writes that exhausted their attempts",
		}),
		ReconcilePending: f.NewGauge(prometheus.GaugeOpts{
			Name: "touristid_reconcile_pending",
			Help: "Local writes waiting in the reconcile queue",
		}),
		CredentialsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "touristid_credentials_expired_total",
			Help: "Credentials moved to EXPIRED by the auto-expiration sweep",
		}),
		ExpireFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "touristid_expire_failures_total",
			Help: "Per-record failures during auto-expiration",
		}),
		EmergencyAccesses: f.NewCounter(prometheus.CounterOpts{
			Name: "touristid_emergency_accesses_total",
			Help: "Accesses that used the emergency path",
		}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "touristid_outbox_published_total",
			Help: "Lifecycle events relayed from the outbox to Kafka",
		}),
		OutboxFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "touristid_outbox_publish_failures_total",
			Help: "Outbox batches that failed to publish and were left for the next tick",
		}),
	}
}

func (m *Metrics) ObserveOperation(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) ObserveLedgerCall(call, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LedgerCalls.WithLabelValues(call, outcome).Observe(d.Seconds())
}

func (m *Metrics) IncReconcileEnqueued(kind string) {
	if m == nil {
		return
	}
	m.ReconcileEnqueued.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncReconcileApplied() {
	if m == nil {
		return
	}
	m.ReconcileApplied.Inc()
}

func (m *Metrics) IncReconcileDeadLetter() {
	if m == nil {
		return
	}
	m.ReconcileDeadLetter.Inc()
}

func (m *Metrics) SetReconcilePending(n int64) {
	if m == nil {
		return
	}
	m.ReconcilePending.Set(float64(n))
}

func (m *Metrics) AddExpired(n int) {
	if m == nil {
		return
	}
	m.CredentialsExpired.Add(float64(n))
}

func (m *Metrics) AddExpireFailures(n int) {
	if m == nil {
		return
	}
	m.ExpireFailures.Add(float64(n))
}

func (m *Metrics) IncEmergencyAccess() {
	if m == nil {
		return
	}
	m.EmergencyAccesses.Inc()
}

func (m *Metrics) AddOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncOutboxFailure() {
	if m == nil {
		return
	}
	m.OutboxFailures.Inc()
}
