package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agri-auction/internal/domain"
)

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) LoadForUpdate(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return getAuction(ctx, t.tx, auctionID, true)
}

func (t *mysqlTx) InsertBid(ctx context.Context, bid *domain.Bid) error {
	query := `
        INSERT INTO bids (` + bidColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := t.tx.ExecContext(ctx, query,
		bid.ID, bid.AuctionID, bid.ProductID, bid.BidderID, bid.BidderName,
		bid.Amount, string(bid.Status), bid.CreatedAt, bid.UpdatedAt)
	if err != nil {
		return fmt.Errorf("mysql: insert bid %s: %w", bid.ID, err)
	}
	return nil
}

func (t *mysqlTx) UpdateAuctionPrice(ctx context.Context, auctionID string, newPrice float64) error {
	query := `
        UPDATE auctions SET current_price = ?, updated_at = ?
        WHERE id = ? AND status = ? AND current_price < ?
    `
	result, err := t.tx.ExecContext(ctx, query, newPrice, time.Now(), auctionID, int(domain.AuctionActive), newPrice)
	if err != nil {
		return fmt.Errorf("mysql: update price of auction %s: %w", auctionID, err)
	}
	return expectOneRow(result, domain.ErrConcurrentUpdate)
}

func (t *mysqlTx) OpenBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	query := `
        SELECT ` + bidColumns + `
        FROM bids WHERE auction_id = ? AND status IN (?, ?)
        ORDER BY created_at ASC, id ASC
        FOR UPDATE
    `
	return queryBids(ctx, t.tx, query, auctionID, string(domain.BidPending), string(domain.BidActive))
}

func (t *mysqlTx) GetBid(ctx context.Context, bidID string) (*domain.Bid, error) {
	query := `
        SELECT ` + bidColumns + `
        FROM bids WHERE id = ?
        FOR UPDATE
    `
	bid, err := scanBid(t.tx.QueryRowContext(ctx, query, bidID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBidNotFound
		}
		return nil, fmt.Errorf("mysql: get bid %s: %w", bidID, err)
	}
	return bid, nil
}

func (t *mysqlTx) RejectBid(ctx context.Context, bidID string) error {
	return t.resolveBid(ctx, "", bidID, domain.BidRejected, time.Now())
}

func (t *mysqlTx) CancelAuction(ctx context.Context, auctionID string) error {
	now := time.Now()
	if err := t.flipStatus(ctx, auctionID, domain.AuctionCancelled, now, domain.ErrAuctionNotActive); err != nil {
		return err
	}

	query := `
        UPDATE bids SET status = ?, updated_at = ?
        WHERE auction_id = ? AND status IN (?, ?)
    `
	_, err := t.tx.ExecContext(ctx, query, string(domain.BidRejected), now, auctionID,
		string(domain.BidPending), string(domain.BidActive))
	if err != nil {
		return fmt.Errorf("mysql: reject bids of cancelled auction %s: %w", auctionID, err)
	}
	return nil
}

func (t *mysqlTx) SettleTransaction(ctx context.Context, settlement *domain.Settlement) error {
	if err := t.flipStatus(ctx, settlement.AuctionID, domain.AuctionCompleted, settlement.SettledAt, domain.ErrAlreadySettled); err != nil {
		return err
	}

	if settlement.WinningBidID != "" {
		if err := t.resolveBid(ctx, settlement.AuctionID, settlement.WinningBidID, domain.BidAccepted, settlement.SettledAt); err != nil {
			return err
		}
	}
	for _, id := range settlement.LosingBidIDs {
		if err := t.resolveBid(ctx, settlement.AuctionID, id, domain.BidRejected, settlement.SettledAt); err != nil {
			return err
		}
	}

	if settlement.Order != nil {
		o := settlement.Order
		query := `
        INSERT INTO orders (` + orderColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
		_, err := t.tx.ExecContext(ctx, query,
			o.ID, o.AuctionID, o.ProductID, o.SellerID, o.BuyerID, o.BidID, o.Quantity,
			o.UnitPrice, o.TotalAmount, string(o.Status), string(o.PaymentStatus), o.CreatedAt)
		if err != nil {
			return fmt.Errorf("mysql: insert order for auction %s: %w", settlement.AuctionID, err)
		}
	}
	return nil
}

// flipStatus moves an active auction to a terminal status. The status
// predicate makes the first committer win; later attempts get errInactive.
func (t *mysqlTx) flipStatus(ctx context.Context, auctionID string, to domain.AuctionStatus, at time.Time, errInactive error) error {
	query := `UPDATE auctions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := t.tx.ExecContext(ctx, query, int(to), at, auctionID, int(domain.AuctionActive))
	if err != nil {
		return fmt.Errorf("mysql: set auction %s %s: %w", auctionID, to, err)
	}
	return expectOneRow(result, errInactive)
}

func (t *mysqlTx) resolveBid(ctx context.Context, auctionID, bidID string, status domain.BidStatus, at time.Time) error {
	query := `UPDATE bids SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`
	args := []interface{}{string(status), at, bidID, string(domain.BidPending), string(domain.BidActive)}
	if auctionID != "" {
		query += ` AND auction_id = ?`
		args = append(args, auctionID)
	}

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mysql: set bid %s %s: %w", bidID, status, err)
	}
	return expectOneRow(result, domain.ErrBidNotOpen)
}

func expectOneRow(result sql.Result, errNone error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mysql: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errNone
	}
	return nil
}
