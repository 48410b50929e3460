package domain

import (
	"errors"
	"fmt"
)

// Lookup errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrBidNotFound     = errors.New("bid not found")
	ErrOrderNotFound   = errors.New("order not found")
)

// Bid rejection reasons, surfaced verbatim to the bidder
var (
	ErrAuctionNotOpen    = errors.New("auction is not open for bidding")
	ErrInvalidAmount     = errors.New("bid amount must be a positive number of whole cents")
	ErrBidTooLow         = errors.New("bid must be higher than the current price")
	ErrIncrementTooSmall = errors.New("bid does not meet the minimum increment")
	ErrSelfBid           = errors.New("sellers cannot bid on their own auction")
)

// Lifecycle errors
var (
	ErrAlreadySettled   = errors.New("auction already settled")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrAuctionNotEnded  = errors.New("auction has not reached its end time")
	ErrNotAuctionSeller = errors.New("requester is not the auction seller")
	ErrInvalidAuction   = errors.New("invalid auction")
	ErrConcurrentUpdate = errors.New("auction was modified concurrently")
	ErrBidNotOpen       = errors.New("bid is already resolved")
	ErrInvalidRequest   = errors.New("invalid request")
)

type RejectionReason string

const (
	ReasonAuctionNotOpen    RejectionReason = "auction_not_open"
	ReasonInvalidAmount     RejectionReason = "invalid_amount"
	ReasonBidTooLow         RejectionReason = "bid_too_low"
	ReasonIncrementTooSmall RejectionReason = "increment_too_small"
	ReasonSelfBid           RejectionReason = "self_bid"
)

var reasonErrors = map[RejectionReason]error{
	ReasonAuctionNotOpen:    ErrAuctionNotOpen,
	ReasonInvalidAmount:     ErrInvalidAmount,
	ReasonBidTooLow:         ErrBidTooLow,
	ReasonIncrementTooSmall: ErrIncrementTooSmall,
	ReasonSelfBid:           ErrSelfBid,
}

// BidRejectedError carries why a bid was refused. It unwraps to the
// sentinel for its reason, so errors.Is(err, ErrBidTooLow) works.
type BidRejectedError struct {
	Reason       RejectionReason
	CurrentPrice float64
	MinimumBid   float64
}

func NewBidRejected(reason RejectionReason, currentPrice, minimumBid float64) *BidRejectedError {
	return &BidRejectedError{Reason: reason, CurrentPrice: currentPrice, MinimumBid: minimumBid}
}

func (e *BidRejectedError) Error() string {
	switch e.Reason {
	case ReasonBidTooLow, ReasonIncrementTooSmall:
		return fmt.Sprintf("%s: current price %.2f, minimum bid %.2f", e.Unwrap(), e.CurrentPrice, e.MinimumBid)
	default:
		return e.Unwrap().Error()
	}
}

func (e *BidRejectedError) Unwrap() error {
	if err, ok := reasonErrors[e.Reason]; ok {
		return err
	}
	return fmt.Errorf("bid rejected: %s", e.Reason)
}

// IsBidRejection reports whether err is a validation rejection.
func IsBidRejection(err error) bool {
	var rejected *BidRejectedError
	return errors.As(err, &rejected)
}
