package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agri-auction/internal/domain"
)

func TestSelectWinner(t *testing.T) {
	early := baseTime
	late := baseTime.Add(time.Second)

	bids := []*domain.Bid{
		{ID: "b3", Amount: 150, CreatedAt: late, Status: domain.BidPending},
		{ID: "b2", Amount: 150, CreatedAt: early, Status: domain.BidPending},
		{ID: "b1", Amount: 150, CreatedAt: early, Status: domain.BidPending},
		{ID: "b0", Amount: 900, CreatedAt: early, Status: domain.BidRejected},
		{ID: "b4", Amount: 120, CreatedAt: early, Status: domain.BidActive},
	}

	winner := SelectWinner(bids)
	require.NotNil(t, winner)
	assert.Equal(t, "b1", winner.ID)
	assert.Nil(t, SelectWinner(nil))
}

func TestSettle_SingleWinner(t *testing.T) {
	f := newFixture(t).quiet()
	ctx := context.Background()
	a := f.createAuction(t)

	f.bid(t, a.ID, "buyer-1", 110)
	f.bid(t, a.ID, "buyer-2", 125)
	top := f.bid(t, a.ID, "buyer-3", 140)
	f.expire(a)

	result, err := f.settler.Settle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSold, result.Outcome)
	assert.Equal(t, top.ID, result.WinningBid.ID)
	assert.Equal(t, 2, result.Rejected)

	accepted := 0
	for id, b := range bidsByID(t, f.store, a.ID) {
		if id == top.ID {
			assert.Equal(t, domain.BidAccepted, b.Status)
			accepted++
			continue
		}
		assert.Equal(t, domain.BidRejected, b.Status)
	}
	assert.Equal(t, 1, accepted)

	order, err := f.manager.GetOrder(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "buyer-3", order.BuyerID)
	assert.Equal(t, "farmer-1", order.SellerID)
	assert.Equal(t, top.ID, order.BidID)
	assert.Equal(t, 140.0, order.UnitPrice)
	assert.Equal(t, 1400.0, order.TotalAmount)
	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus)

	got, err := f.store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCompleted, got.Status)
}

func TestSettle_NoBidsClosesCleanly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createAuction(t)
	f.expire(a)

	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, n *domain.Notification) error {
			assert.Equal(t, "farmer-1", n.UserID)
			assert.Equal(t, domain.NotificationAuction, n.Type)
			return nil
		})

	result, err := f.settler.Settle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoBids, result.Outcome)
	assert.Nil(t, result.Order)

	got, err := f.store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCompleted, got.Status)

	_, err = f.manager.GetOrder(ctx, a.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.Zero(t, f.store.OrderCount())
}

func TestSettle_Idempotent(t *testing.T) {
	f := newFixture(t).quiet()
	ctx := context.Background()
	a := f.createAuction(t)
	f.bid(t, a.ID, "buyer-1", 110)
	f.expire(a)

	first, err := f.settler.Settle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSold, first.Outcome)
	snapshot := bidsByID(t, f.store, a.ID)

	second, err := f.settler.Settle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadySettled, second.Outcome)

	assert.Equal(t, snapshot, bidsByID(t, f.store, a.ID))
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestSettle_ConcurrentCallsCreateOneOrder(t *testing.T) {
	f := newFixture(t).quiet()
	a := f.createAuction(t)
	f.bid(t, a.ID, "buyer-1", 110)
	f.bid(t, a.ID, "buyer-2", 130)
	f.expire(a)

	const settlers = 16
	outcomes := make(chan domain.SettlementOutcome, settlers)
	var wg sync.WaitGroup
	for i := 0; i < settlers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.settler.Settle(context.Background(), a.ID)
			if assert.NoError(t, err) {
				outcomes <- result.Outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	counts := map[domain.SettlementOutcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, 1, counts[domain.OutcomeSold])
	assert.Equal(t, settlers-1, counts[domain.OutcomeAlreadySettled])
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestSettle_ReserveIgnoredByDefault(t *testing.T) {
	f := newFixture(t).quiet()
	ctx := context.Background()
	a := f.createAuction(t, func(p *CreateAuctionParams) {
		p.StartPrice = 50
		p.ReservePrice = float(200)
	})
	f.bid(t, a.ID, "buyer-a", 100)
	b := f.bid(t, a.ID, "buyer-b", 150)
	f.expire(a)

	result, err := f.settler.Settle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSold, result.Outcome)
	assert.Equal(t, b.ID, result.WinningBid.ID)
	assert.Equal(t, 150.0, result.Order.UnitPrice)
}

func TestSettle_EnforcedReserve(t *testing.T) {
	f := newFixture(t).quiet()
	f.settler.reservePolicy = EnforceReserve
	ctx := context.Background()
	a := f.createAuction(t, func(p *CreateAuctionParams) {
		p.StartPrice = 50
		p.ReservePrice = float(200)
	})
	f.bid(t, a.ID, "buyer-a", 100)
	f.bid(t, a.ID, "buyer-b", 150)
	f.expire(a)

	result, err := f.settler.Settle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeBelowReserve, result.Outcome)
	assert.Equal(t, 2, result.Rejected)
	assert.Zero(t, f.store.OrderCount())

	for _, b := range bidsByID(t, f.store, a.ID) {
		assert.Equal(t, domain.BidRejected, b.Status)
	}
}

func TestEnforceReserve(t *testing.T) {
	bid := &domain.Bid{Amount: 200}
	assert.True(t, EnforceReserve(&domain.Auction{}, bid))
	assert.True(t, EnforceReserve(&domain.Auction{ReservePrice: float(200)}, bid))
	assert.False(t, EnforceReserve(&domain.Auction{ReservePrice: float(200.01)}, bid))
}

func TestSettle_BeforeEndTime(t *testing.T) {
	f := newFixture(t).quiet()
	a := f.createAuction(t)

	_, err := f.settler.Settle(context.Background(), a.ID)
	require.ErrorIs(t, err, domain.ErrAuctionNotEnded)
}

func TestSettle_UnknownAuction(t *testing.T) {
	f := newFixture(t)

	_, err := f.settler.Settle(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestAcceptBid(t *testing.T) {
	f := newFixture(t).quiet()
	ctx := context.Background()
	a := f.createAuction(t)
	chosen := f.bid(t, a.ID, "buyer-1", 110)
	f.bid(t, a.ID, "buyer-2", 130)

	_, err := f.settler.AcceptBid(ctx, a.ID, chosen.ID, "buyer-2")
	require.ErrorIs(t, err, domain.ErrNotAuctionSeller)

	result, err := f.settler.AcceptBid(ctx, a.ID, chosen.ID, "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSold, result.Outcome)
	assert.Equal(t, chosen.ID, result.WinningBid.ID)
	assert.Equal(t, 1100.0, result.Order.TotalAmount)
	assert.Equal(t, 1, result.Rejected)

	_, err = f.settler.AcceptBid(ctx, a.ID, chosen.ID, "farmer-1")
	require.ErrorIs(t, err, domain.ErrAuctionNotActive)
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestAcceptBid_BidFromOtherAuction(t *testing.T) {
	f := newFixture(t).quiet()
	a := f.createAuction(t)
	other := f.createAuction(t)
	foreign := f.bid(t, other.ID, "buyer-1", 110)

	_, err := f.settler.AcceptBid(context.Background(), a.ID, foreign.ID, "farmer-1")
	require.ErrorIs(t, err, domain.ErrBidNotFound)
}

func TestRejectBid(t *testing.T) {
	f := newFixture(t).quiet()
	ctx := context.Background()
	a := f.createAuction(t)
	b := f.bid(t, a.ID, "buyer-1", 110)

	rejected, err := f.settler.RejectBid(ctx, a.ID, b.ID, "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BidRejected, rejected.Status)

	_, err = f.settler.RejectBid(ctx, a.ID, b.ID, "farmer-1")
	require.ErrorIs(t, err, domain.ErrBidNotOpen)

	got, err := f.store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionActive, got.Status)

	f.expire(a)
	result, err := f.settler.Settle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoBids, result.Outcome)
}
