package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusCollector struct {
	ledgerOps       *prometheus.CounterVec
	ledgerLatency   *prometheus.HistogramVec
	ledgerRetries   *prometheus.CounterVec
	revocationReads *prometheus.CounterVec
	ephemeral       *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec
}

func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		ledgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Ledger operation latency including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		ledgerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_retries_total",
			Help:      "Ledger units restarted after a version conflict",
		}, []string{"operation"}),
		revocationReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revocation_lookups_total",
			Help:      "Revocation lookups by answering tier and result",
		}, []string{"tier", "revoked"}),
		ephemeral: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ephemeral_tokens_total",
			Help:      "Ephemeral token events by purpose",
		}, []string{"purpose", "event"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}
}

func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.ledgerOps,
		pc.ledgerLatency,
		pc.ledgerRetries,
		pc.revocationReads,
		pc.ephemeral,
		pc.circuitState,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (pc *PrometheusCollector) RecordLedgerOperation(operation, outcome string, duration time.Duration) {
	pc.ledgerOps.WithLabelValues(operation, outcome).Inc()
	pc.ledgerLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordLedgerRetry(operation string) {
	pc.ledgerRetries.WithLabelValues(operation).Inc()
}

func (pc *PrometheusCollector) RecordRevocationLookup(tier string, revoked bool) {
	pc.revocationReads.WithLabelValues(tier, strconv.FormatBool(revoked)).Inc()
}

func (pc *PrometheusCollector) RecordEphemeralToken(purpose, event string) {
	pc.ephemeral.WithLabelValues(purpose, event).Inc()
}

func (pc *PrometheusCollector) RecordCircuitState(name string, state CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
}
