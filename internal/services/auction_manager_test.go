package services

import (
	"context"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agri-auction/internal/domain"
)

func TestCreateAuction_Defaults(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t, func(p *CreateAuctionParams) { p.StartTime = time.Time{} })

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, domain.AuctionActive, a.Status)
	assert.Equal(t, a.StartPrice, a.CurrentPrice)
	assert.Equal(t, baseTime, a.StartTime)
	assert.True(t, a.IsOpen(baseTime))

	stored, err := f.manager.GetAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, stored)
}

func TestCreateAuction_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *CreateAuctionParams)
	}{
		{"missing product", func(p *CreateAuctionParams) { p.ProductID = "" }},
		{"missing seller", func(p *CreateAuctionParams) { p.SellerID = " " }},
		{"zero quantity", func(p *CreateAuctionParams) { p.Quantity = 0 }},
		{"nan start price", func(p *CreateAuctionParams) { p.StartPrice = math.NaN() }},
		{"negative start price", func(p *CreateAuctionParams) { p.StartPrice = -1 }},
		{"negative reserve", func(p *CreateAuctionParams) { p.ReservePrice = float(-1) }},
		{"zero increment", func(p *CreateAuctionParams) { p.MinIncrement = float(0) }},
		{"sub-cent start price", func(p *CreateAuctionParams) { p.StartPrice = 40.005 }},
		{"sub-cent reserve", func(p *CreateAuctionParams) { p.ReservePrice = float(55.555) }},
		{"sub-cent increment", func(p *CreateAuctionParams) { p.MinIncrement = float(0.001) }},
		{"end before start", func(p *CreateAuctionParams) { p.EndTime = p.StartTime.Add(-time.Minute) }},
		{"end in the past", func(p *CreateAuctionParams) {
			p.StartTime = baseTime.Add(-2 * time.Hour)
			p.EndTime = baseTime.Add(-time.Hour)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			params := CreateAuctionParams{
				ProductID:  "beans",
				SellerID:   "farmer-1",
				Quantity:   5,
				StartPrice: 40,
				StartTime:  baseTime,
				EndTime:    baseTime.Add(time.Hour),
			}
			tt.mutate(&params)

			_, err := f.manager.CreateAuction(context.Background(), params)
			require.ErrorIs(t, err, domain.ErrInvalidAuction)
		})
	}
}

type fixedTiers map[float64]float64

func (f fixedTiers) LoadRules(ctx context.Context) error { return nil }

func (f fixedTiers) GetIncrementRule(amount float64) float64 { return f[amount] }

func TestCreateAuction_TieredIncrement(t *testing.T) {
	f := newFixture(t)
	f.manager.incrementRules = fixedTiers{100: 5}

	tiered := f.createAuction(t, func(p *CreateAuctionParams) { p.MinIncrement = nil })
	require.NotNil(t, tiered.MinIncrement)
	assert.Equal(t, 5.0, *tiered.MinIncrement)

	explicit := f.createAuction(t)
	assert.Equal(t, 10.0, *explicit.MinIncrement)

	untiered := f.createAuction(t, func(p *CreateAuctionParams) {
		p.MinIncrement = nil
		p.StartPrice = 42
	})
	assert.Nil(t, untiered.MinIncrement)
}

func TestCancelAuction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createAuction(t)

	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(3)
	f.bid(t, a.ID, "buyer-1", 110)
	f.bid(t, a.ID, "buyer-2", 120)
	f.bid(t, a.ID, "buyer-1", 130)

	_, err := f.manager.CancelAuction(ctx, a.ID, "buyer-1")
	require.ErrorIs(t, err, domain.ErrNotAuctionSeller)

	var notified []string
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, n *domain.Notification) error {
			assert.Equal(t, domain.NotificationAuction, n.Type)
			notified = append(notified, n.UserID)
			return nil
		}).Times(2)

	cancelled, err := f.manager.CancelAuction(ctx, a.ID, "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCancelled, cancelled.Status)
	sort.Strings(notified)
	assert.Equal(t, []string{"buyer-1", "buyer-2"}, notified)

	for _, b := range bidsByID(t, f.store, a.ID) {
		assert.Equal(t, domain.BidRejected, b.Status)
	}

	_, err = f.bids.PlaceBid(ctx, a.ID, "buyer-3", "", 500)
	require.ErrorIs(t, err, domain.ErrAuctionNotOpen)

	_, err = f.manager.CancelAuction(ctx, a.ID, "farmer-1")
	require.ErrorIs(t, err, domain.ErrAuctionNotActive)

	f.expire(a)
	result, err := f.settler.Settle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadySettled, result.Outcome)
	assert.Zero(t, f.store.OrderCount())
}

func TestCancelAuction_RacesSettlement(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		f := newFixture(t).quiet()
		a := f.createAuction(t)
		f.bid(t, a.ID, "buyer-1", 110)
		f.expire(a)

		var (
			wg        sync.WaitGroup
			start     = make(chan struct{})
			cancelErr error
			result    *domain.SettlementResult
			settleErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, cancelErr = f.manager.CancelAuction(ctx, a.ID, "farmer-1")
		}()
		go func() {
			defer wg.Done()
			<-start
			result, settleErr = f.settler.Settle(ctx, a.ID)
		}()
		close(start)
		wg.Wait()

		require.NoError(t, settleErr)
		stored, err := f.store.GetAuction(ctx, a.ID)
		require.NoError(t, err)

		if cancelErr == nil {
			assert.Equal(t, domain.OutcomeAlreadySettled, result.Outcome)
			assert.Equal(t, domain.AuctionCancelled, stored.Status)
			assert.Zero(t, f.store.OrderCount())
		} else {
			require.ErrorIs(t, cancelErr, domain.ErrAuctionNotActive)
			assert.Equal(t, domain.OutcomeSold, result.Outcome)
			assert.Equal(t, domain.AuctionCompleted, stored.Status)
			assert.Equal(t, 1, f.store.OrderCount())
		}
	}
}

func TestListBids(t *testing.T) {
	f := newFixture(t).quiet()
	a := f.createAuction(t)
	f.bid(t, a.ID, "buyer-1", 110)
	f.bid(t, a.ID, "buyer-2", 120)

	bids, err := f.manager.ListBids(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, 110.0, bids[0].Amount)
	assert.Equal(t, 120.0, bids[1].Amount)

	_, err = f.manager.ListBids(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
}
