package metrics

import (
	"testing"
	"time"

	"agri-auction/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.BidPlaced()
	m.BidPlaced()
	m.BidRejected(domain.ReasonBidTooLow)
	m.Settled(domain.OutcomeSold)
	m.SweepFailed()
	m.ObserveSweep(120 * time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.BidsPlaced))
	require.Equal(t, 1.0, testutil.ToFloat64(m.BidsRejected.WithLabelValues("bid_too_low")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Settlements.WithLabelValues("sold")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SweepFailures))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.BidPlaced()
	m.BidRejected(domain.ReasonSelfBid)
	m.Settled(domain.OutcomeNoBids)
	m.SweepFailed()
	m.ObserveSweep(time.Second)
}
