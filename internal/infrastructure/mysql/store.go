package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agri-auction/internal/domain"

	_ "github.com/go-sql-driver/mysql"
)

const auctionColumns = `id, product_id, seller_id, quantity, start_price, current_price,
        reserve_price, min_increment, start_time, end_time, status, created_at, updated_at`

const bidColumns = `id, auction_id, product_id, bidder_id, bidder_name, amount, status, created_at, updated_at`

const orderColumns = `id, auction_id, product_id, seller_id, buyer_id, bid_id, quantity,
        unit_price, total_amount, status, payment_status, created_at`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

type MySQLAuctionStore struct {
	db *sql.DB
}

func NewMySQLAuctionStore(db *sql.DB) *MySQLAuctionStore {
	return &MySQLAuctionStore{db: db}
}

func (s *MySQLAuctionStore) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := s.db.ExecContext(ctx, query,
		auction.ID, auction.ProductID, auction.SellerID, auction.Quantity,
		auction.StartPrice, auction.CurrentPrice,
		nullFloat(auction.ReservePrice), nullFloat(auction.MinIncrement),
		auction.StartTime, auction.EndTime, int(auction.Status),
		auction.CreatedAt, auction.UpdatedAt)
	if err != nil {
		return fmt.Errorf("mysql: create auction %s: %w", auction.ID, err)
	}
	return nil
}

func (s *MySQLAuctionStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return getAuction(ctx, s.db, auctionID, false)
}

func (s *MySQLAuctionStore) ListBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	if _, err := s.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	query := `
        SELECT ` + bidColumns + `
        FROM bids WHERE auction_id = ?
        ORDER BY created_at ASC, id ASC
    `
	return queryBids(ctx, s.db, query, auctionID)
}

func (s *MySQLAuctionStore) GetOrderByAuction(ctx context.Context, auctionID string) (*domain.Order, error) {
	query := `
        SELECT ` + orderColumns + `
        FROM orders WHERE auction_id = ?
    `
	var order domain.Order
	var status, paymentStatus string
	err := s.db.QueryRowContext(ctx, query, auctionID).Scan(
		&order.ID, &order.AuctionID, &order.ProductID, &order.SellerID, &order.BuyerID,
		&order.BidID, &order.Quantity, &order.UnitPrice, &order.TotalAmount,
		&status, &paymentStatus, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("mysql: get order for auction %s: %w", auctionID, err)
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	return &order, nil
}

func (s *MySQLAuctionStore) FindExpiredActive(ctx context.Context, now time.Time) ([]string, error) {
	query := `
        SELECT id FROM auctions
        WHERE status = ? AND end_time <= ?
        ORDER BY end_time ASC
    `
	rows, err := s.db.QueryContext(ctx, query, int(domain.AuctionActive), now)
	if err != nil {
		return nil, fmt.Errorf("mysql: find expired auctions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("mysql: scan expired auction: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: find expired auctions: %w", err)
	}
	return ids, nil
}

// WithinTx runs fn under READ COMMITTED; LoadForUpdate adds the row lock.
func (s *MySQLAuctionStore) WithinTx(ctx context.Context, fn func(tx domain.AuctionTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("mysql: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mysql: commit: %w", err)
	}
	return nil
}

func getAuction(ctx context.Context, q execer, auctionID string, forUpdate bool) (*domain.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM auctions WHERE id = ?
    `
	if forUpdate {
		query += ` FOR UPDATE`
	}

	auction, err := scanAuction(q.QueryRowContext(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("mysql: get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

func scanAuction(row scanner) (*domain.Auction, error) {
	var auction domain.Auction
	var reserve, increment sql.NullFloat64
	var status int

	err := row.Scan(
		&auction.ID, &auction.ProductID, &auction.SellerID, &auction.Quantity,
		&auction.StartPrice, &auction.CurrentPrice, &reserve, &increment,
		&auction.StartTime, &auction.EndTime, &status,
		&auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	auction.Status = domain.AuctionStatus(status)
	if reserve.Valid {
		v := reserve.Float64
		auction.ReservePrice = &v
	}
	if increment.Valid {
		v := increment.Float64
		auction.MinIncrement = &v
	}
	return &auction, nil
}

func queryBids(ctx context.Context, q execer, query string, args ...interface{}) ([]*domain.Bid, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mysql: query bids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bids []*domain.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("mysql: scan bid: %w", err)
		}
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: query bids: %w", err)
	}
	return bids, nil
}

func scanBid(row scanner) (*domain.Bid, error) {
	var bid domain.Bid
	var status string
	err := row.Scan(&bid.ID, &bid.AuctionID, &bid.ProductID, &bid.BidderID, &bid.BidderName,
		&bid.Amount, &status, &bid.CreatedAt, &bid.UpdatedAt)
	if err != nil {
		return nil, err
	}
	bid.Status = domain.BidStatus(status)
	return &bid, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
