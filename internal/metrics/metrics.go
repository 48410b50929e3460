package metrics

import (
	"time"

	"agri-auction/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the auction engine's collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	BidsPlaced    prometheus.Counter
	BidsRejected  *prometheus.CounterVec
	Settlements   *prometheus.CounterVec
	SweepFailures prometheus.Counter
	SweepDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BidsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "bids_placed_total",
			Help:      "Bids accepted and committed.",
		}),
		BidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "bids_rejected_total",
			Help:      "Bids refused by validation, by reason.",
		}, []string{"reason"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "settlements_total",
			Help:      "Settlement attempts, by outcome.",
		}, []string{"outcome"}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "sweep_failures_total",
			Help:      "Auctions whose settlement failed during a sweep.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "auction",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one settlement sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.BidsPlaced, m.BidsRejected, m.Settlements, m.SweepFailures, m.SweepDuration)
	return m
}

func (m *Metrics) BidPlaced() {
	if m == nil {
		return
	}
	m.BidsPlaced.Inc()
}

func (m *Metrics) BidRejected(reason domain.RejectionReason) {
	if m == nil {
		return
	}
	m.BidsRejected.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) Settled(outcome domain.SettlementOutcome) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) SweepFailed() {
	if m == nil {
		return
	}
	m.SweepFailures.Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}
