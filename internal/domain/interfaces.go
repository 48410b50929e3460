package domain

import (
	"context"
	"time"
)

// AuctionStore owns persistence of auctions, bids and orders and the
// transactional boundary around them.
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	ListBids(ctx context.Context, auctionID string) ([]*Bid, error)
	GetOrderByAuction(ctx context.Context, auctionID string) (*Order, error)
	FindExpiredActive(ctx context.Context, now time.Time) ([]string, error)

	// WithinTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise; no partial writes are visible.
	WithinTx(ctx context.Context, fn func(tx AuctionTx) error) error
}

// AuctionTx is the set of operations available inside a store transaction.
type AuctionTx interface {
	// LoadForUpdate reads the auction and holds its row lock until the
	// transaction ends, so concurrent bids and settlements serialize on it.
	LoadForUpdate(ctx context.Context, auctionID string) (*Auction, error)
	InsertBid(ctx context.Context, bid *Bid) error
	// UpdateAuctionPrice raises current_price; it fails with
	// ErrConcurrentUpdate unless the auction is active and newPrice is higher.
	UpdateAuctionPrice(ctx context.Context, auctionID string, newPrice float64) error
	OpenBids(ctx context.Context, auctionID string) ([]*Bid, error)
	GetBid(ctx context.Context, bidID string) (*Bid, error)
	RejectBid(ctx context.Context, bidID string) error
	// CancelAuction moves an active auction to cancelled and rejects its open bids.
	CancelAuction(ctx context.Context, auctionID string) error
	// SettleTransaction applies a settlement: auction -> completed, winner
	// accepted, losers rejected, order inserted. ErrAlreadySettled when the
	// auction is no longer active.
	SettleTransaction(ctx context.Context, settlement *Settlement) error
}

// Notifier is the outbound notification port. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, notification *Notification) error
}

type NotificationHandler func(notification *Notification) error

type NotificationSubscriber interface {
	Subscribe(ctx context.Context, handler NotificationHandler) error
}

// Cache interfaces
type AuctionStateCache interface {
	SetAuctionState(ctx context.Context, state *AuctionState) error
	GetAuctionState(ctx context.Context, auctionID string) (*AuctionState, error)
}

type IncrementRules interface {
	LoadRules(ctx context.Context) error
	GetIncrementRule(amount float64) float64
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	ID() string
}

type ConnectionManager interface {
	RegisterConnection(conn WebSocketConnection) error
	UnregisterConnection(conn WebSocketConnection) error
	GetConnectionsForUser(userID string) []WebSocketConnection
	NotifyUser(userID string, message interface{}) error
	CloseAll() error
}
