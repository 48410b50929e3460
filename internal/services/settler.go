package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"agri-auction/internal/domain"
	"agri-auction/internal/metrics"
	"agri-auction/pkg/logger"
	"agri-auction/pkg/utils"
)

// ReservePolicy reports whether the best bid may win the auction.
type ReservePolicy func(auction *domain.Auction, best *domain.Bid) bool

// IgnoreReserve lets the highest bid win regardless of the reserve price.
func IgnoreReserve(*domain.Auction, *domain.Bid) bool { return true }

// EnforceReserve requires the best bid to reach the reserve price, if any.
func EnforceReserve(auction *domain.Auction, best *domain.Bid) bool {
	return auction.ReservePrice == nil || best.Amount >= *auction.ReservePrice
}

// Settler is the settlement operation the sweeper drives.
type Settler interface {
	Settle(ctx context.Context, auctionID string) (*domain.SettlementResult, error)
}

// AuctionSettler closes auctions: picks the winner, resolves every open
// bid and creates the order in a single transaction.
type AuctionSettler struct {
	store         domain.AuctionStore
	notifier      domain.Notifier
	stateCache    domain.AuctionStateCache
	reservePolicy ReservePolicy
	metrics       *metrics.Metrics
	log           logger.Logger
	now           func() time.Time
}

func NewAuctionSettler(store domain.AuctionStore, notifier domain.Notifier, stateCache domain.AuctionStateCache,
	reservePolicy ReservePolicy, m *metrics.Metrics, log logger.Logger) *AuctionSettler {
	if reservePolicy == nil {
		reservePolicy = IgnoreReserve
	}
	return &AuctionSettler{
		store:         store,
		notifier:      notifier,
		stateCache:    stateCache,
		reservePolicy: reservePolicy,
		metrics:       m,
		log:           log,
		now:           time.Now,
	}
}

// SelectWinner returns the highest open bid. Ties go to the earliest bid,
// then to the lowest id so the choice is deterministic.
func SelectWinner(bids []*domain.Bid) *domain.Bid {
	var best *domain.Bid
	for _, bid := range bids {
		if !bid.Status.IsOpen() {
			continue
		}
		if best == nil || outranks(bid, best) {
			best = bid
		}
	}
	return best
}

func outranks(a, b *domain.Bid) bool {
	if a.Amount != b.Amount {
		return a.Amount > b.Amount
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Settle closes an ended active auction. Settling an auction that is no
// longer active is a no-op reported as OutcomeAlreadySettled.
func (s *AuctionSettler) Settle(ctx context.Context, auctionID string) (*domain.SettlementResult, error) {
	now := s.now()
	var (
		auction *domain.Auction
		result  *domain.SettlementResult
	)

	err := s.store.WithinTx(ctx, func(tx domain.AuctionTx) error {
		var err error
		auction, err = tx.LoadForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if auction.Status != domain.AuctionActive {
			return domain.ErrAlreadySettled
		}
		if !auction.HasEnded(now) {
			return domain.ErrAuctionNotEnded
		}

		bids, err := tx.OpenBids(ctx, auctionID)
		if err != nil {
			return err
		}

		winner := SelectWinner(bids)
		outcome := domain.OutcomeSold
		switch {
		case winner == nil:
			outcome = domain.OutcomeNoBids
		case !s.reservePolicy(auction, winner):
			winner = nil
			outcome = domain.OutcomeBelowReserve
		}

		result, err = s.apply(ctx, tx, auction, bids, winner, outcome, now)
		return err
	})
	if errors.Is(err, domain.ErrAlreadySettled) {
		s.log.Debug("Auction already settled", "auction_id", auctionID)
		return &domain.SettlementResult{AuctionID: auctionID, Outcome: domain.OutcomeAlreadySettled}, nil
	}
	if err != nil {
		return nil, err
	}

	s.afterSettle(ctx, auction, result, now)
	return result, nil
}

// AcceptBid lets the seller close the auction early with a chosen open bid.
// The reserve policy does not apply to an explicit acceptance.
func (s *AuctionSettler) AcceptBid(ctx context.Context, auctionID, bidID, sellerID string) (*domain.SettlementResult, error) {
	now := s.now()
	var (
		auction *domain.Auction
		result  *domain.SettlementResult
	)

	err := s.store.WithinTx(ctx, func(tx domain.AuctionTx) error {
		var err error
		auction, err = s.loadOwnedActive(ctx, tx, auctionID, sellerID)
		if err != nil {
			return err
		}
		chosen, err := loadOpenBid(ctx, tx, auctionID, bidID)
		if err != nil {
			return err
		}
		bids, err := tx.OpenBids(ctx, auctionID)
		if err != nil {
			return err
		}

		result, err = s.apply(ctx, tx, auction, bids, chosen, domain.OutcomeSold, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterSettle(ctx, auction, result, now)
	return result, nil
}

// RejectBid lets the seller decline one open bid. The auction stays active.
func (s *AuctionSettler) RejectBid(ctx context.Context, auctionID, bidID, sellerID string) (*domain.Bid, error) {
	var rejected *domain.Bid

	err := s.store.WithinTx(ctx, func(tx domain.AuctionTx) error {
		if _, err := s.loadOwnedActive(ctx, tx, auctionID, sellerID); err != nil {
			return err
		}
		bid, err := loadOpenBid(ctx, tx, auctionID, bidID)
		if err != nil {
			return err
		}
		if err := tx.RejectBid(ctx, bid.ID); err != nil {
			return err
		}
		bid.Status = domain.BidRejected
		rejected = bid
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Bid rejected by seller", "auction_id", auctionID, "bid_id", bidID)
	notifyBestEffort(ctx, s.notifier, s.log, &domain.Notification{
		UserID:    rejected.BidderID,
		Title:     "Bid rejected",
		Message:   fmt.Sprintf("Your bid of %.2f was rejected by the seller", rejected.Amount),
		Type:      domain.NotificationBid,
		RelatedID: auctionID,
	})
	return rejected, nil
}

func (s *AuctionSettler) loadOwnedActive(ctx context.Context, tx domain.AuctionTx, auctionID, sellerID string) (*domain.Auction, error) {
	auction, err := tx.LoadForUpdate(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.SellerID != sellerID {
		return nil, domain.ErrNotAuctionSeller
	}
	if auction.Status != domain.AuctionActive {
		return nil, domain.ErrAuctionNotActive
	}
	return auction, nil
}

func loadOpenBid(ctx context.Context, tx domain.AuctionTx, auctionID, bidID string) (*domain.Bid, error) {
	bid, err := tx.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.AuctionID != auctionID {
		return nil, domain.ErrBidNotFound
	}
	if !bid.Status.IsOpen() {
		return nil, domain.ErrBidNotOpen
	}
	return bid, nil
}

// apply builds the settlement for winner (nil for no winner) and commits it
// through tx. Every other open bid is rejected.
func (s *AuctionSettler) apply(ctx context.Context, tx domain.AuctionTx, auction *domain.Auction,
	bids []*domain.Bid, winner *domain.Bid, outcome domain.SettlementOutcome, now time.Time) (*domain.SettlementResult, error) {
	settlement := &domain.Settlement{
		AuctionID: auction.ID,
		SettledAt: now,
	}

	for _, bid := range bids {
		if winner != nil && bid.ID == winner.ID {
			continue
		}
		settlement.LosingBidIDs = append(settlement.LosingBidIDs, bid.ID)
	}
	sort.Strings(settlement.LosingBidIDs)

	if winner != nil {
		settlement.WinningBidID = winner.ID
		settlement.Order = &domain.Order{
			ID:            utils.GenerateID("order"),
			AuctionID:     auction.ID,
			ProductID:     auction.ProductID,
			SellerID:      auction.SellerID,
			BuyerID:       winner.BidderID,
			BidID:         winner.ID,
			Quantity:      auction.Quantity,
			UnitPrice:     winner.Amount,
			TotalAmount:   utils.OrderTotal(winner.Amount, auction.Quantity),
			Status:        domain.OrderPending,
			PaymentStatus: domain.PaymentPending,
			CreatedAt:     now,
		}
	}

	if err := tx.SettleTransaction(ctx, settlement); err != nil {
		return nil, err
	}

	result := &domain.SettlementResult{
		AuctionID: auction.ID,
		Outcome:   outcome,
		Order:     settlement.Order,
		Rejected:  len(settlement.LosingBidIDs),
	}
	if winner != nil {
		won := winner.Clone()
		won.Status = domain.BidAccepted
		won.UpdatedAt = now
		result.WinningBid = won
	}
	return result, nil
}

func (s *AuctionSettler) afterSettle(ctx context.Context, auction *domain.Auction, result *domain.SettlementResult, now time.Time) {
	s.metrics.Settled(result.Outcome)
	s.log.Info("Auction settled",
		"auction_id", auction.ID, "outcome", result.Outcome, "rejected_bids", result.Rejected)

	state := &domain.AuctionState{
		AuctionID:    auction.ID,
		Status:       domain.AuctionCompleted,
		CurrentPrice: auction.CurrentPrice,
		UpdatedAt:    now,
	}

	var notifications []*domain.Notification
	switch result.Outcome {
	case domain.OutcomeSold:
		order := result.Order
		state.LeaderID = order.BuyerID
		state.CurrentPrice = order.UnitPrice
		notifications = append(notifications,
			&domain.Notification{
				UserID:    order.BuyerID,
				Title:     "Auction won",
				Message:   fmt.Sprintf("You won the auction at %.2f, order total %.2f", order.UnitPrice, order.TotalAmount),
				Type:      domain.NotificationOrder,
				RelatedID: order.ID,
				CreatedAt: now,
			},
			&domain.Notification{
				UserID:    auction.SellerID,
				Title:     "Auction sold",
				Message:   fmt.Sprintf("Your auction sold at %.2f, order total %.2f", order.UnitPrice, order.TotalAmount),
				Type:      domain.NotificationOrder,
				RelatedID: order.ID,
				CreatedAt: now,
			})
	case domain.OutcomeNoBids:
		notifications = append(notifications, &domain.Notification{
			UserID:    auction.SellerID,
			Title:     "Auction ended",
			Message:   "Your auction ended without any bids",
			Type:      domain.NotificationAuction,
			RelatedID: auction.ID,
			CreatedAt: now,
		})
	case domain.OutcomeBelowReserve:
		notifications = append(notifications, &domain.Notification{
			UserID:    auction.SellerID,
			Title:     "Auction ended",
			Message:   "Your auction ended without reaching the reserve price",
			Type:      domain.NotificationAuction,
			RelatedID: auction.ID,
			CreatedAt: now,
		})
	}

	notifyBestEffort(ctx, s.notifier, s.log, notifications...)
	cacheBestEffort(ctx, s.stateCache, s.log, state)
}
