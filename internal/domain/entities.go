package domain

import (
	"time"
)

type Auction struct {
	ID           string
	ProductID    string
	SellerID     string
	Quantity     float64
	StartPrice   float64
	CurrentPrice float64
	// ReservePrice and MinIncrement are optional; nil means unset.
	ReservePrice *float64
	MinIncrement *float64
	StartTime    time.Time
	EndTime      time.Time
	Status       AuctionStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsOpen reports whether bids may be placed at now: active and within [StartTime, EndTime).
func (a *Auction) IsOpen(now time.Time) bool {
	return a.Status == AuctionActive && !now.Before(a.StartTime) && now.Before(a.EndTime)
}

// HasEnded reports whether now is at or past the end time.
func (a *Auction) HasEnded(now time.Time) bool {
	return !now.Before(a.EndTime)
}

func (a *Auction) Clone() *Auction {
	c := *a
	if a.ReservePrice != nil {
		v := *a.ReservePrice
		c.ReservePrice = &v
	}
	if a.MinIncrement != nil {
		v := *a.MinIncrement
		c.MinIncrement = &v
	}
	return &c
}

type AuctionStatus int

const (
	AuctionActive AuctionStatus = iota + 1
	AuctionCompleted
	AuctionCancelled
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionActive:
		return "active"
	case AuctionCompleted:
		return "completed"
	case AuctionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionCompleted || s == AuctionCancelled
}

type Bid struct {
	ID         string
	AuctionID  string
	ProductID  string
	BidderID   string
	BidderName string
	Amount     float64
	Status     BidStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (b *Bid) Clone() *Bid {
	c := *b
	return &c
}

type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidActive   BidStatus = "active"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

// IsOpen reports whether the bid has not been resolved yet.
func (s BidStatus) IsOpen() bool {
	return s == BidPending || s == BidActive
}

type Order struct {
	ID            string
	AuctionID     string
	ProductID     string
	SellerID      string
	BuyerID       string
	BidID         string
	Quantity      float64
	UnitPrice     float64
	TotalAmount   float64
	Status        OrderStatus
	PaymentStatus PaymentStatus
	CreatedAt     time.Time
}

type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
)

// Settlement is the full set of writes committed when an auction settles.
type Settlement struct {
	AuctionID    string
	WinningBidID string // empty when there is no winner
	LosingBidIDs []string
	Order        *Order // nil when there is no winner
	SettledAt    time.Time
}

type SettlementOutcome string

const (
	OutcomeSold           SettlementOutcome = "sold"
	OutcomeNoBids         SettlementOutcome = "no_bids"
	OutcomeBelowReserve   SettlementOutcome = "below_reserve"
	OutcomeAlreadySettled SettlementOutcome = "already_settled"
)

type SettlementResult struct {
	AuctionID  string
	Outcome    SettlementOutcome
	WinningBid *Bid
	Order      *Order
	Rejected   int
}

type NotificationType string

const (
	NotificationBid     NotificationType = "bid"
	NotificationAuction NotificationType = "auction"
	NotificationOrder   NotificationType = "order"
)

type Notification struct {
	UserID    string           `json:"user_id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	RelatedID string           `json:"related_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// AuctionState is the display snapshot mirrored to the cache after each commit.
type AuctionState struct {
	AuctionID    string
	Status       AuctionStatus
	CurrentPrice float64
	LeaderID     string
	UpdatedAt    time.Time
}

type IncrementTiers struct {
	Rules map[string]float64 `json:"rules"`
}
