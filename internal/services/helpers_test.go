package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"agri-auction/internal/domain"
	"agri-auction/internal/domain/mocks"
	"agri-auction/internal/infrastructure/memory"
	"agri-auction/pkg/logger"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store    *memory.Store
	notifier *mocks.MockNotifier
	clock    *testClock
	bids     *BidService
	settler  *AuctionSettler
	manager  *AuctionManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		store:    memory.NewStore(),
		notifier: mocks.NewMockNotifier(ctrl),
		clock:    &testClock{now: baseTime},
	}
	log := logger.NewNop()

	f.bids = NewBidService(f.store, NewBidValidator(false), f.notifier, nil, nil, log)
	f.bids.now = f.clock.Now
	f.settler = NewAuctionSettler(f.store, f.notifier, nil, IgnoreReserve, nil, log)
	f.settler.now = f.clock.Now
	f.manager = NewAuctionManager(f.store, f.notifier, nil, nil, log)
	f.manager.now = f.clock.Now
	return f
}

// quiet accepts any notification.
func (f *fixture) quiet() *fixture {
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	return f
}

func float(v float64) *float64 { return &v }

// createAuction lists 10 units at 100 with a 10 increment, open for an hour.
func (f *fixture) createAuction(t *testing.T, mutate ...func(*CreateAuctionParams)) *domain.Auction {
	t.Helper()
	params := CreateAuctionParams{
		ProductID:    "maize-grade-a",
		SellerID:     "farmer-1",
		Quantity:     10,
		StartPrice:   100,
		MinIncrement: float(10),
		StartTime:    baseTime,
		EndTime:      baseTime.Add(time.Hour),
	}
	for _, m := range mutate {
		m(&params)
	}
	auction, err := f.manager.CreateAuction(context.Background(), params)
	require.NoError(t, err)
	return auction
}

func (f *fixture) bid(t *testing.T, auctionID, bidderID string, amount float64) *domain.Bid {
	t.Helper()
	bid, err := f.bids.PlaceBid(context.Background(), auctionID, bidderID, bidderID, amount)
	require.NoError(t, err)
	return bid
}

func (f *fixture) expire(a *domain.Auction) {
	f.clock.Set(a.EndTime.Add(time.Second))
}

func bidsByID(t *testing.T, s *memory.Store, auctionID string) map[string]*domain.Bid {
	t.Helper()
	bids, err := s.ListBids(context.Background(), auctionID)
	require.NoError(t, err)
	out := make(map[string]*domain.Bid, len(bids))
	for _, b := range bids {
		out[b.ID] = b
	}
	return out
}
