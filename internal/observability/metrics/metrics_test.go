package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	m.ObserveGeneration("success", 30)
	m.ObserveClaim("won")
	m.ObserveClaim("conflict")
	m.ObserveSlotCache("hit")
	m.ObserveGateway("create_transaction", "ok", 0.2)
	m.SetStuckPayments(3)
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveGeneration("success", 1)
	m.ObserveClaim("won")
	m.ObserveSlotCache("miss")
	m.ObserveGateway("get_status", "error", 0.1)
	m.SetStuckPayments(0)
}
