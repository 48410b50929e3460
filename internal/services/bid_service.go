package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agri-auction/internal/domain"
	"agri-auction/internal/metrics"
	"agri-auction/pkg/logger"
	"agri-auction/pkg/utils"
)

// BidService places bids. Validation and both writes happen under the
// auction row lock, so two bids on one auction never both pass against
// the same price.
type BidService struct {
	store      domain.AuctionStore
	validator  *BidValidator
	notifier   domain.Notifier
	stateCache domain.AuctionStateCache
	metrics    *metrics.Metrics
	log        logger.Logger
	now        func() time.Time
}

func NewBidService(store domain.AuctionStore, validator *BidValidator, notifier domain.Notifier,
	stateCache domain.AuctionStateCache, m *metrics.Metrics, log logger.Logger) *BidService {
	return &BidService{
		store:      store,
		validator:  validator,
		notifier:   notifier,
		stateCache: stateCache,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

func (bs *BidService) PlaceBid(ctx context.Context, auctionID, bidderID, bidderName string, amount float64) (*domain.Bid, error) {
	if strings.TrimSpace(auctionID) == "" || strings.TrimSpace(bidderID) == "" {
		return nil, fmt.Errorf("%w: auction id and bidder id are required", domain.ErrInvalidRequest)
	}

	now := bs.now()
	var (
		placed  *domain.Bid
		auction *domain.Auction
	)

	err := bs.store.WithinTx(ctx, func(tx domain.AuctionTx) error {
		var err error
		auction, err = tx.LoadForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}

		if err := bs.validator.Validate(auction, amount, bidderID, now); err != nil {
			return err
		}

		bid := &domain.Bid{
			ID:         utils.GenerateID("bid"),
			AuctionID:  auction.ID,
			ProductID:  auction.ProductID,
			BidderID:   bidderID,
			BidderName: bidderName,
			Amount:     amount,
			Status:     domain.BidPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertBid(ctx, bid); err != nil {
			return err
		}
		if err := tx.UpdateAuctionPrice(ctx, auction.ID, amount); err != nil {
			return err
		}

		placed = bid
		return nil
	})
	if err != nil {
		var rejected *domain.BidRejectedError
		if errors.As(err, &rejected) {
			bs.metrics.BidRejected(rejected.Reason)
			bs.log.Info("Bid rejected",
				"auction_id", auctionID, "bidder_id", bidderID, "amount", amount, "reason", rejected.Reason)
			return nil, err
		}
		bs.log.Error("Failed to place bid", "auction_id", auctionID, "bidder_id", bidderID, "error", err)
		return nil, err
	}

	bs.metrics.BidPlaced()
	bs.log.Info("Bid placed",
		"auction_id", auctionID, "bid_id", placed.ID, "bidder_id", bidderID, "amount", amount)

	name := bidderName
	if name == "" {
		name = "A buyer"
	}
	notifyBestEffort(ctx, bs.notifier, bs.log, &domain.Notification{
		UserID:    auction.SellerID,
		Title:     "New bid received",
		Message:   fmt.Sprintf("%s bid %.2f on your auction", name, amount),
		Type:      domain.NotificationBid,
		RelatedID: auction.ID,
		CreatedAt: now,
	})
	cacheBestEffort(ctx, bs.stateCache, bs.log, &domain.AuctionState{
		AuctionID:    auction.ID,
		Status:       domain.AuctionActive,
		CurrentPrice: amount,
		LeaderID:     bidderID,
		UpdatedAt:    now,
	})

	return placed.Clone(), nil
}
