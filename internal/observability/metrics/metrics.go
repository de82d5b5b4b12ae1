package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the scheduling and
// booking flows.
type SchedulingMetrics struct {
	blocksGenerated *prometheus.CounterVec
	claimAttempts   *prometheus.CounterVec
	slotCacheReads  *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	stuckPayments   prometheus.Gauge
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		blocksGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "blocks_generated_total",
			Help:      "Total availability blocks created by pattern generation",
		}, []string{"outcome"}),
		claimAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "claim_attempts_total",
			Help:      "Total block claim attempts by outcome",
		}, []string{"outcome"}),
		slotCacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "slot_cache_reads_total",
			Help:      "Slot cache lookups by result",
		}, []string{"result"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "payments",
			Name:      "gateway_request_seconds",
			Help:      "Latency of payment gateway calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		stuckPayments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "stuck_awaiting_payment",
			Help:      "Appointments past the reconciliation threshold still awaiting payment",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.blocksGenerated, m.claimAttempts, m.slotCacheReads, m.gatewayLatency, m.stuckPayments)
	return m
}

func (m *SchedulingMetrics) ObserveGeneration(outcome string, blocks int) {
	if m == nil {
		return
	}
	m.blocksGenerated.WithLabelValues(outcome).Add(float64(blocks))
}

func (m *SchedulingMetrics) ObserveClaim(outcome string) {
	if m == nil {
		return
	}
	m.claimAttempts.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveSlotCache(result string) {
	if m == nil {
		return
	}
	m.slotCacheReads.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveGateway(op, status string, seconds float64) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(op, status).Observe(seconds)
}

func (m *SchedulingMetrics) SetStuckPayments(count int) {
	if m == nil {
		return
	}
	m.stuckPayments.Set(float64(count))
}
