// Package memory is an in-process AuctionStore. Transactions hold the store
// lock for their whole duration and stage writes until commit, which gives
// the same serialization on an auction that row locks give in MySQL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agri-auction/internal/domain"
)

type Store struct {
	mu            sync.RWMutex
	auctions      map[string]*domain.Auction
	bids          map[string]*domain.Bid
	bidsByAuction map[string][]string
	orders        map[string]*domain.Order // keyed by auction id
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		auctions:      make(map[string]*domain.Auction),
		bids:          make(map[string]*domain.Bid),
		bidsByAuction: make(map[string][]string),
		orders:        make(map[string]*domain.Order),
		now:           time.Now,
	}
}

func (s *Store) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[auction.ID]; exists {
		return fmt.Errorf("memory: auction %s already exists", auction.ID)
	}
	s.auctions[auction.ID] = auction.Clone()
	return nil
}

func (s *Store) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return auction.Clone(), nil
}

func (s *Store) ListBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.auctions[auctionID]; !ok {
		return nil, domain.ErrAuctionNotFound
	}
	bids := make([]*domain.Bid, 0, len(s.bidsByAuction[auctionID]))
	for _, id := range s.bidsByAuction[auctionID] {
		bids = append(bids, s.bids[id].Clone())
	}
	return bids, nil
}

func (s *Store) GetOrderByAuction(ctx context.Context, auctionID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[auctionID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	c := *order
	return &c, nil
}

func (s *Store) FindExpiredActive(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*domain.Auction
	for _, a := range s.auctions {
		if a.Status == domain.AuctionActive && a.HasEnded(now) {
			expired = append(expired, a)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].EndTime.Before(expired[j].EndTime)
	})

	ids := make([]string, 0, len(expired))
	for _, a := range expired {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.AuctionTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		store:    s,
		auctions: make(map[string]*domain.Auction),
		bids:     make(map[string]*domain.Bid),
		orders:   make(map[string]*domain.Order),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// OrderCount is the number of orders stored.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

type memTx struct {
	store    *Store
	auctions map[string]*domain.Auction
	bids     map[string]*domain.Bid
	inserted []*domain.Bid
	orders   map[string]*domain.Order
}

func (t *memTx) auction(auctionID string) (*domain.Auction, error) {
	if a, ok := t.auctions[auctionID]; ok {
		return a, nil
	}
	a, ok := t.store.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	staged := a.Clone()
	t.auctions[auctionID] = staged
	return staged, nil
}

func (t *memTx) bid(bidID string) (*domain.Bid, error) {
	if b, ok := t.bids[bidID]; ok {
		return b, nil
	}
	b, ok := t.store.bids[bidID]
	if !ok {
		return nil, domain.ErrBidNotFound
	}
	staged := b.Clone()
	t.bids[bidID] = staged
	return staged, nil
}

func (t *memTx) bidIDs(auctionID string) []string {
	ids := append([]string(nil), t.store.bidsByAuction[auctionID]...)
	for _, b := range t.inserted {
		if b.AuctionID == auctionID {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

func (t *memTx) LoadForUpdate(ctx context.Context, auctionID string) (*domain.Auction, error) {
	a, err := t.auction(auctionID)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func (t *memTx) InsertBid(ctx context.Context, bid *domain.Bid) error {
	if _, err := t.auction(bid.AuctionID); err != nil {
		return err
	}
	if _, err := t.bid(bid.ID); err == nil {
		return fmt.Errorf("memory: bid %s already exists", bid.ID)
	}
	staged := bid.Clone()
	t.bids[bid.ID] = staged
	t.inserted = append(t.inserted, staged)
	return nil
}

func (t *memTx) UpdateAuctionPrice(ctx context.Context, auctionID string, newPrice float64) error {
	a, err := t.auction(auctionID)
	if err != nil {
		return err
	}
	if a.Status != domain.AuctionActive || newPrice <= a.CurrentPrice {
		return domain.ErrConcurrentUpdate
	}
	a.CurrentPrice = newPrice
	a.UpdatedAt = t.store.now()
	return nil
}

func (t *memTx) OpenBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	if _, err := t.auction(auctionID); err != nil {
		return nil, err
	}
	var open []*domain.Bid
	for _, id := range t.bidIDs(auctionID) {
		b, err := t.bid(id)
		if err != nil {
			return nil, err
		}
		if b.Status.IsOpen() {
			open = append(open, b.Clone())
		}
	}
	return open, nil
}

func (t *memTx) GetBid(ctx context.Context, bidID string) (*domain.Bid, error) {
	b, err := t.bid(bidID)
	if err != nil {
		return nil, err
	}
	return b.Clone(), nil
}

func (t *memTx) RejectBid(ctx context.Context, bidID string) error {
	b, err := t.bid(bidID)
	if err != nil {
		return err
	}
	if !b.Status.IsOpen() {
		return domain.ErrBidNotOpen
	}
	b.Status = domain.BidRejected
	b.UpdatedAt = t.store.now()
	return nil
}

func (t *memTx) CancelAuction(ctx context.Context, auctionID string) error {
	a, err := t.auction(auctionID)
	if err != nil {
		return err
	}
	if a.Status != domain.AuctionActive {
		return domain.ErrAuctionNotActive
	}
	now := t.store.now()
	a.Status = domain.AuctionCancelled
	a.UpdatedAt = now

	for _, id := range t.bidIDs(auctionID) {
		b, err := t.bid(id)
		if err != nil {
			return err
		}
		if b.Status.IsOpen() {
			b.Status = domain.BidRejected
			b.UpdatedAt = now
		}
	}
	return nil
}

func (t *memTx) SettleTransaction(ctx context.Context, settlement *domain.Settlement) error {
	a, err := t.auction(settlement.AuctionID)
	if err != nil {
		return err
	}
	if a.Status != domain.AuctionActive {
		return domain.ErrAlreadySettled
	}
	a.Status = domain.AuctionCompleted
	a.UpdatedAt = settlement.SettledAt

	if settlement.WinningBidID != "" {
		if err := t.resolveBid(settlement.AuctionID, settlement.WinningBidID, domain.BidAccepted, settlement.SettledAt); err != nil {
			return err
		}
	}
	for _, id := range settlement.LosingBidIDs {
		if err := t.resolveBid(settlement.AuctionID, id, domain.BidRejected, settlement.SettledAt); err != nil {
			return err
		}
	}

	if settlement.Order != nil {
		if _, exists := t.store.orders[settlement.AuctionID]; exists {
			return domain.ErrAlreadySettled
		}
		o := *settlement.Order
		t.orders[settlement.AuctionID] = &o
	}
	return nil
}

func (t *memTx) resolveBid(auctionID, bidID string, status domain.BidStatus, at time.Time) error {
	b, err := t.bid(bidID)
	if err != nil {
		return err
	}
	if b.AuctionID != auctionID {
		return fmt.Errorf("memory: bid %s does not belong to auction %s: %w", bidID, auctionID, domain.ErrBidNotFound)
	}
	if !b.Status.IsOpen() {
		return domain.ErrBidNotOpen
	}
	b.Status = status
	b.UpdatedAt = at
	return nil
}

func (t *memTx) commit() {
	s := t.store
	for id, a := range t.auctions {
		s.auctions[id] = a
	}
	for id, b := range t.bids {
		s.bids[id] = b
	}
	for _, b := range t.inserted {
		s.bidsByAuction[b.AuctionID] = append(s.bidsByAuction[b.AuctionID], b.ID)
	}
	for auctionID, o := range t.orders {
		s.orders[auctionID] = o
	}
}
