package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records the distribution engine's operational counters.
type EngineMetrics struct {
	packsRequested  *prometheus.CounterVec
	packsFulfilled  prometheus.Counter
	decksExecuted   *prometheus.CounterVec
	itemsAllocated  *prometheus.CounterVec
	requestsExpired prometheus.Counter
	royaltySkips    prometheus.Counter
	rateLimited     prometheus.Counter
	fulfillSeconds  prometheus.Histogram
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	packsRequested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "packdrop_packs_requested_total",
		Help: "Pack purchase requests accepted, by outcome.",
	}, []string{"outcome"})
	packsFulfilled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "packdrop_packs_fulfilled_total",
		Help: "Packs fully distributed after randomness fulfillment.",
	})
	decksExecuted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "packdrop_decks_executed_total",
		Help: "Deck executions, by deck name.",
	}, []string{"deck"})
	itemsAllocated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "packdrop_items_allocated_total",
		Help: "Items allocated, by rarity.",
	}, []string{"rarity"})
	requestsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "packdrop_requests_expired_total",
		Help: "Randomness requests that expired before fulfillment.",
	})
	royaltySkips := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "packdrop_royalty_skips_total",
		Help: "Royalty transfers skipped after a transfer failure.",
	})
	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "packdrop_rate_limited_total",
		Help: "Purchase attempts rejected by the cooldown limiter.",
	})
	fulfillSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "packdrop_fulfillment_duration_seconds",
		Help:    "Duration of pack fulfillment transactions.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(packsRequested, packsFulfilled, decksExecuted, itemsAllocated, requestsExpired, royaltySkips, rateLimited, fulfillSeconds)
	return &EngineMetrics{
		packsRequested:  packsRequested,
		packsFulfilled:  packsFulfilled,
		decksExecuted:   decksExecuted,
		itemsAllocated:  itemsAllocated,
		requestsExpired: requestsExpired,
		royaltySkips:    royaltySkips,
		rateLimited:     rateLimited,
		fulfillSeconds:  fulfillSeconds,
	}
}

// IncPackRequested records an accepted or rejected pack request.
func (m *EngineMetrics) IncPackRequested(outcome string) {
	if m == nil || m.packsRequested == nil {
		return
	}
	m.packsRequested.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPacksFulfilled records completed pack fulfillments.
func (m *EngineMetrics) IncPacksFulfilled(count int) {
	if m == nil || m.packsFulfilled == nil {
		return
	}
	m.packsFulfilled.Add(float64(count))
}

// IncDeckExecuted records a deck execution.
func (m *EngineMetrics) IncDeckExecuted(deck string) {
	if m == nil || m.decksExecuted == nil {
		return
	}
	m.decksExecuted.WithLabelValues(normalizeLabel(deck)).Inc()
}

// IncItemsAllocated records allocated items for a rarity tier.
func (m *EngineMetrics) IncItemsAllocated(rarity string, count int) {
	if m == nil || m.itemsAllocated == nil {
		return
	}
	m.itemsAllocated.WithLabelValues(normalizeLabel(rarity)).Add(float64(count))
}

// IncRequestExpired records an expired randomness request.
func (m *EngineMetrics) IncRequestExpired() {
	if m == nil || m.requestsExpired == nil {
		return
	}
	m.requestsExpired.Inc()
}

// IncRoyaltySkipped records a skipped royalty transfer.
func (m *EngineMetrics) IncRoyaltySkipped() {
	if m == nil || m.royaltySkips == nil {
		return
	}
	m.royaltySkips.Inc()
}

// IncRateLimited records a purchase rejected by the cooldown limiter.
func (m *EngineMetrics) IncRateLimited() {
	if m == nil || m.rateLimited == nil {
		return
	}
	m.rateLimited.Inc()
}

// ObserveFulfillment records how long a fulfillment transaction took.
func (m *EngineMetrics) ObserveFulfillment(d time.Duration) {
	if m == nil || m.fulfillSeconds == nil {
		return
	}
	m.fulfillSeconds.Observe(d.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
