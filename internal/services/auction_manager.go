package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"agri-auction/internal/domain"
	"agri-auction/pkg/logger"
	"agri-auction/pkg/utils"
)

type CreateAuctionParams struct {
	ProductID    string
	SellerID     string
	Quantity     float64
	StartPrice   float64
	ReservePrice *float64
	MinIncrement *float64
	StartTime    time.Time // zero means now
	EndTime      time.Time
}

// AuctionManager owns the auction lifecycle outside bidding and
// settlement: creation, cancellation and reads.
type AuctionManager struct {
	store          domain.AuctionStore
	notifier       domain.Notifier
	stateCache     domain.AuctionStateCache
	incrementRules domain.IncrementRules
	log            logger.Logger
	now            func() time.Time
}

// NewAuctionManager builds a manager. incrementRules may be nil; when set,
// auctions created without a minimum increment get the tier for their
// start price.
func NewAuctionManager(store domain.AuctionStore, notifier domain.Notifier, stateCache domain.AuctionStateCache,
	incrementRules domain.IncrementRules, log logger.Logger) *AuctionManager {
	return &AuctionManager{
		store:          store,
		notifier:       notifier,
		stateCache:     stateCache,
		incrementRules: incrementRules,
		log:            log,
		now:            time.Now,
	}
}

func (am *AuctionManager) CreateAuction(ctx context.Context, params CreateAuctionParams) (*domain.Auction, error) {
	now := am.now()
	if params.StartTime.IsZero() {
		params.StartTime = now
	}
	if err := validateAuctionParams(params, now); err != nil {
		return nil, err
	}

	minIncrement := params.MinIncrement
	if minIncrement == nil && am.incrementRules != nil {
		if tier := am.incrementRules.GetIncrementRule(params.StartPrice); tier > 0 {
			minIncrement = &tier
		}
	}

	auction := &domain.Auction{
		ID:           utils.GenerateID("auction"),
		ProductID:    params.ProductID,
		SellerID:     params.SellerID,
		Quantity:     params.Quantity,
		StartPrice:   params.StartPrice,
		CurrentPrice: params.StartPrice,
		ReservePrice: params.ReservePrice,
		MinIncrement: minIncrement,
		StartTime:    params.StartTime,
		EndTime:      params.EndTime,
		Status:       domain.AuctionActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := am.store.CreateAuction(ctx, auction); err != nil {
		return nil, err
	}

	cacheBestEffort(ctx, am.stateCache, am.log, &domain.AuctionState{
		AuctionID:    auction.ID,
		Status:       auction.Status,
		CurrentPrice: auction.CurrentPrice,
		UpdatedAt:    now,
	})

	am.log.Info("Auction created", "auction_id", auction.ID, "product_id", auction.ProductID,
		"seller_id", auction.SellerID, "end_time", auction.EndTime)
	return auction.Clone(), nil
}

func validateAuctionParams(p CreateAuctionParams, now time.Time) error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", domain.ErrInvalidAuction, fmt.Sprintf(format, args...))
	}

	switch {
	case strings.TrimSpace(p.ProductID) == "":
		return invalid("product id is required")
	case strings.TrimSpace(p.SellerID) == "":
		return invalid("seller id is required")
	case !positive(p.Quantity):
		return invalid("quantity must be positive")
	case !positive(p.StartPrice):
		return invalid("start price must be positive")
	case !utils.IsCents(p.StartPrice):
		return invalid("start price must be in whole cents")
	case p.ReservePrice != nil && (!finite(*p.ReservePrice) || *p.ReservePrice < 0):
		return invalid("reserve price must not be negative")
	case p.ReservePrice != nil && !utils.IsCents(*p.ReservePrice):
		return invalid("reserve price must be in whole cents")
	case p.MinIncrement != nil && !positive(*p.MinIncrement):
		return invalid("minimum increment must be positive")
	case p.MinIncrement != nil && !utils.IsCents(*p.MinIncrement):
		return invalid("minimum increment must be in whole cents")
	case !p.EndTime.After(p.StartTime):
		return invalid("end time must be after start time")
	case !p.EndTime.After(now):
		return invalid("end time must be in the future")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positive(v float64) bool {
	return finite(v) && v > 0
}

// CancelAuction withdraws an active auction. Only its seller may cancel;
// every open bid is rejected and its bidder told so.
func (am *AuctionManager) CancelAuction(ctx context.Context, auctionID, requesterID string) (*domain.Auction, error) {
	now := am.now()
	var (
		cancelled *domain.Auction
		bidders   []string
	)

	err := am.store.WithinTx(ctx, func(tx domain.AuctionTx) error {
		auction, err := tx.LoadForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if auction.SellerID != requesterID {
			return domain.ErrNotAuctionSeller
		}
		if auction.Status != domain.AuctionActive {
			return domain.ErrAuctionNotActive
		}

		open, err := tx.OpenBids(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := tx.CancelAuction(ctx, auctionID); err != nil {
			return err
		}

		seen := make(map[string]bool, len(open))
		for _, bid := range open {
			if !seen[bid.BidderID] {
				seen[bid.BidderID] = true
				bidders = append(bidders, bid.BidderID)
			}
		}

		auction.Status = domain.AuctionCancelled
		auction.UpdatedAt = now
		cancelled = auction
		return nil
	})
	if err != nil {
		return nil, err
	}

	am.log.Info("Auction cancelled", "auction_id", auctionID, "notified_bidders", len(bidders))

	notifications := make([]*domain.Notification, 0, len(bidders))
	for _, bidderID := range bidders {
		notifications = append(notifications, &domain.Notification{
			UserID:    bidderID,
			Title:     "Auction cancelled",
			Message:   "An auction you bid on was cancelled by the seller",
			Type:      domain.NotificationAuction,
			RelatedID: auctionID,
			CreatedAt: now,
		})
	}
	notifyBestEffort(ctx, am.notifier, am.log, notifications...)
	cacheBestEffort(ctx, am.stateCache, am.log, &domain.AuctionState{
		AuctionID:    auctionID,
		Status:       domain.AuctionCancelled,
		CurrentPrice: cancelled.CurrentPrice,
		UpdatedAt:    now,
	})

	return cancelled, nil
}

func (am *AuctionManager) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return am.store.GetAuction(ctx, auctionID)
}

func (am *AuctionManager) ListBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	return am.store.ListBids(ctx, auctionID)
}

func (am *AuctionManager) GetOrder(ctx context.Context, auctionID string) (*domain.Order, error) {
	return am.store.GetOrderByAuction(ctx, auctionID)
}
