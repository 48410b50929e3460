package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agri-auction/internal/domain"
	"agri-auction/internal/metrics"
	"agri-auction/pkg/logger"
)

// SweepReport summarises one pass of the settlement sweeper.
type SweepReport struct {
	Candidates     int
	Settled        int
	AlreadySettled int
	Failed         int
	Skipped        bool // not the leader, nothing was attempted
}

// SettlementSweeper periodically settles every active auction whose end
// time has passed. A failure on one auction never stops the pass.
type SettlementSweeper struct {
	cron       *cron.Cron
	store      domain.AuctionStore
	settler    Settler
	leader     domain.LeaderElection
	instanceID string
	interval   time.Duration
	metrics    *metrics.Metrics
	log        logger.Logger
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSettlementSweeper builds a sweeper. leader may be nil, in which case
// every instance sweeps; settlement stays idempotent either way.
func NewSettlementSweeper(store domain.AuctionStore, settler Settler, leader domain.LeaderElection,
	instanceID string, interval time.Duration, m *metrics.Metrics, log logger.Logger) *SettlementSweeper {
	cl := cronLogger{log: log}
	return &SettlementSweeper{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		store:      store,
		settler:    settler,
		leader:     leader,
		instanceID: instanceID,
		interval:   interval,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

// Start runs one pass immediately, to catch auctions that ended while no
// instance was running, then schedules recurring passes.
func (s *SettlementSweeper) Start(ctx context.Context) error {
	s.log.Info("Starting settlement sweeper", "interval", s.interval.String())

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("settlement sweeper already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.runOnce(ctx)

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.runOnce(ctx)
	}); err != nil {
		cancel()
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop cancels the in-flight pass and waits for it to return.
func (s *SettlementSweeper) Stop() error {
	s.log.Info("Stopping settlement sweeper")

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	<-s.cron.Stop().Done()
	return nil
}

func (s *SettlementSweeper) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Tick(ctx, s.now()); err != nil && ctx.Err() == nil {
		s.metrics.SweepFailed()
		s.log.Error("Settlement sweep failed", "error", err)
	}
}

// Tick settles every auction that is active with end_time <= now.
func (s *SettlementSweeper) Tick(ctx context.Context, now time.Time) (*SweepReport, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(started)) }()

	report := &SweepReport{}

	if s.leader != nil {
		leading, err := s.leader.IsLeader(ctx, s.instanceID)
		if err != nil {
			return report, fmt.Errorf("check leadership: %w", err)
		}
		if !leading {
			s.log.Debug("Not the settlement leader, skipping sweep", "instance_id", s.instanceID)
			report.Skipped = true
			return report, nil
		}
	}

	ids, err := s.store.FindExpiredActive(ctx, now)
	if err != nil {
		return report, fmt.Errorf("find expired auctions: %w", err)
	}
	report.Candidates = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		result, err := s.settler.Settle(ctx, id)
		if err != nil {
			report.Failed++
			s.metrics.SweepFailed()
			s.log.Error("Failed to settle auction", "auction_id", id, "error", err)
			continue
		}

		if result.Outcome == domain.OutcomeAlreadySettled {
			report.AlreadySettled++
		} else {
			report.Settled++
		}
	}

	if report.Candidates > 0 {
		s.log.Info("Settlement sweep finished",
			"candidates", report.Candidates,
			"settled", report.Settled,
			"already_settled", report.AlreadySettled,
			"failed", report.Failed)
	}
	return report, ctx.Err()
}

type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
