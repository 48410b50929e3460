package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agri-auction/internal/domain"
	"agri-auction/internal/domain/mocks"
	"agri-auction/pkg/logger"
)

func (f *fixture) sweeper(leader domain.LeaderElection) *SettlementSweeper {
	s := NewSettlementSweeper(f.store, f.settler, leader, "instance-1", time.Minute, nil, logger.NewNop())
	s.now = f.clock.Now
	return s
}

func TestSweeper_RepeatedTicksSettleOnce(t *testing.T) {
	f := newFixture(t).quiet()
	ctx := context.Background()
	a := f.createAuction(t)
	f.bid(t, a.ID, "buyer-1", 110)
	f.expire(a)
	s := f.sweeper(nil)

	first, err := s.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, &SweepReport{Candidates: 1, Settled: 1}, first)

	second, err := s.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, &SweepReport{}, second)

	got, err := f.store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCompleted, got.Status)
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestSweeper_ConcurrentSweepsCreateOneOrder(t *testing.T) {
	f := newFixture(t).quiet()
	a := f.createAuction(t)
	f.bid(t, a.ID, "buyer-1", 110)
	f.expire(a)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sweeper(nil).Tick(context.Background(), f.clock.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.store.OrderCount())
}

func TestSweeper_OnlyExpiredAuctions(t *testing.T) {
	f := newFixture(t).quiet()
	ctx := context.Background()
	short := f.createAuction(t, func(p *CreateAuctionParams) { p.EndTime = baseTime.Add(10 * time.Minute) })
	long := f.createAuction(t)
	f.clock.Set(baseTime.Add(30 * time.Minute))

	report, err := f.sweeper(nil).Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)

	got, err := f.store.GetAuction(ctx, short.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCompleted, got.Status)

	got, err = f.store.GetAuction(ctx, long.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionActive, got.Status)
}

type scriptedSettler struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (s *scriptedSettler) Settle(ctx context.Context, auctionID string) (*domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, auctionID)
	if err := s.fail[auctionID]; err != nil {
		return nil, err
	}
	return &domain.SettlementResult{AuctionID: auctionID, Outcome: domain.OutcomeNoBids}, nil
}

func TestSweeper_ContinuesPastFailures(t *testing.T) {
	f := newFixture(t).quiet()
	first := f.createAuction(t, func(p *CreateAuctionParams) { p.EndTime = baseTime.Add(time.Minute) })
	second := f.createAuction(t, func(p *CreateAuctionParams) { p.EndTime = baseTime.Add(2 * time.Minute) })
	third := f.createAuction(t, func(p *CreateAuctionParams) { p.EndTime = baseTime.Add(3 * time.Minute) })

	settler := &scriptedSettler{fail: map[string]error{second.ID: errors.New("deadlock")}}
	s := NewSettlementSweeper(f.store, settler, nil, "instance-1", time.Minute, nil, logger.NewNop())

	report, err := s.Tick(context.Background(), baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, &SweepReport{Candidates: 3, Settled: 2, Failed: 1}, report)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, settler.calls)
}

func TestSweeper_SkipsWhenNotLeader(t *testing.T) {
	f := newFixture(t).quiet()
	a := f.createAuction(t)
	f.expire(a)

	leader := mocks.NewMockLeaderElection(gomock.NewController(t))
	leader.EXPECT().IsLeader(gomock.Any(), "instance-1").Return(false, nil)

	report, err := f.sweeper(leader).Tick(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	got, err := f.store.GetAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionActive, got.Status)
}

func TestSweeper_LeaderSweeps(t *testing.T) {
	f := newFixture(t).quiet()
	a := f.createAuction(t)
	f.expire(a)

	leader := mocks.NewMockLeaderElection(gomock.NewController(t))
	leader.EXPECT().IsLeader(gomock.Any(), "instance-1").Return(true, nil)

	report, err := f.sweeper(leader).Tick(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
}

func TestSweeper_LeadershipCheckError(t *testing.T) {
	f := newFixture(t)
	leader := mocks.NewMockLeaderElection(gomock.NewController(t))
	leader.EXPECT().IsLeader(gomock.Any(), gomock.Any()).Return(false, errors.New("redis down"))

	_, err := f.sweeper(leader).Tick(context.Background(), f.clock.Now())
	require.Error(t, err)
}

func TestSweeper_StartRunsInitialPass(t *testing.T) {
	f := newFixture(t).quiet()
	ctx := context.Background()
	a := f.createAuction(t)
	f.expire(a)
	s := f.sweeper(nil)

	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() { _ = s.Stop() })

	got, err := f.store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCompleted, got.Status)

	require.Error(t, s.Start(ctx))
}

func TestSweeper_StopWithoutStart(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.sweeper(nil).Stop())
}
