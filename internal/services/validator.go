package services

import (
	"math"
	"time"

	"agri-auction/internal/domain"
	"agri-auction/pkg/utils"
)

// BidValidator decides whether a proposed bid is admissible against the
// auction state it is given. It has no side effects.
type BidValidator struct {
	allowSelfBid bool
}

func NewBidValidator(allowSelfBid bool) *BidValidator {
	return &BidValidator{allowSelfBid: allowSelfBid}
}

// Validate applies the rules in order: open window, sane amount, above
// current price, minimum increment, no self-bidding. It returns a
// *domain.BidRejectedError or nil.
func (v *BidValidator) Validate(auction *domain.Auction, amount float64, bidderID string, now time.Time) error {
	minimum := MinimumBid(auction)

	if !auction.IsOpen(now) {
		return domain.NewBidRejected(domain.ReasonAuctionNotOpen, auction.CurrentPrice, minimum)
	}

	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 || !utils.IsCents(amount) {
		return domain.NewBidRejected(domain.ReasonInvalidAmount, auction.CurrentPrice, minimum)
	}

	if amount <= auction.CurrentPrice {
		return domain.NewBidRejected(domain.ReasonBidTooLow, auction.CurrentPrice, minimum)
	}

	if amount < minimum {
		return domain.NewBidRejected(domain.ReasonIncrementTooSmall, auction.CurrentPrice, minimum)
	}

	if !v.allowSelfBid && bidderID == auction.SellerID {
		return domain.NewBidRejected(domain.ReasonSelfBid, auction.CurrentPrice, minimum)
	}

	return nil
}

// MinimumBid is the lowest amount the increment rule admits. Without an
// increment any amount above the current price is admissible, so the
// current price itself is returned as the exclusive floor.
func MinimumBid(auction *domain.Auction) float64 {
	if auction.MinIncrement == nil || *auction.MinIncrement <= 0 {
		return auction.CurrentPrice
	}
	return utils.AddMoney(auction.CurrentPrice, *auction.MinIncrement)
}
