package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestEngineMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)

	m.IncPackRequested("accepted")
	m.IncPackRequested("accepted")
	m.IncPacksFulfilled(3)
	m.IncDeckExecuted("starter")
	m.IncItemsAllocated("common", 12)
	m.IncRequestExpired()
	m.IncRoyaltySkipped()
	m.IncRateLimited()
	m.ObserveFulfillment(125 * time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	byName := map[string]*dto.MetricFamily{}
	for _, fam := range families {
		byName[fam.GetName()] = fam
	}

	packs := byName["packdrop_packs_requested_total"]
	if packs == nil {
		t.Fatal("packs_requested metric missing")
	}
	if got := packs.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 requested packs, got %v", got)
	}

	fulfilled := byName["packdrop_packs_fulfilled_total"]
	if fulfilled == nil || fulfilled.GetMetric()[0].GetCounter().GetValue() != 3 {
		t.Fatal("packs_fulfilled not recorded")
	}

	if byName["packdrop_fulfillment_duration_seconds"] == nil {
		t.Fatal("fulfillment histogram missing")
	}
}

func TestEngineMetricsNilSafe(t *testing.T) {
	var m *EngineMetrics
	m.IncPackRequested("accepted")
	m.IncPacksFulfilled(1)
	m.IncRoyaltySkipped()

	empty := NewEngineMetrics(nil)
	empty.IncRequestExpired()
	empty.ObserveFulfillment(time.Second)
}
