package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

const auctionColumns = `id, title, seller_id, start_price, current_price, buy_now_price, bid_increment,
        start_time, end_time, status, bid_count, leading_bid_id, leading_bidder_id,
        extension_count, version, created_at, updated_at`

// AuctionStore keeps auctions and their bid ledger in MySQL. Mutations lock the
// auction row with SELECT ... FOR UPDATE, so writers in other processes are
// serialized as well.
type AuctionStore struct {
	db  *sql.DB
	log logger.Logger
}

var _ domain.AuctionStore = (*AuctionStore)(nil)

func NewAuctionStore(db *sql.DB, log logger.Logger) *AuctionStore {
	return &AuctionStore{db: db, log: log}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var auction domain.Auction
	var buyNow sql.NullInt64
	var status int

	err := row.Scan(
		&auction.ID, &auction.Title, &auction.SellerID, &auction.StartPrice, &auction.CurrentPrice,
		&buyNow, &auction.BidIncrement, &auction.StartTime, &auction.EndTime, &status,
		&auction.BidCount, &auction.LeadingBidID, &auction.LeadingBidderID,
		&auction.ExtensionCount, &auction.Version, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if buyNow.Valid {
		v := buyNow.Int64
		auction.BuyNowPrice = &v
	}
	auction.Status = domain.AuctionStatus(status)
	return &auction, nil
}

func (s *AuctionStore) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	var buyNow sql.NullInt64
	if auction.BuyNowPrice != nil {
		buyNow = sql.NullInt64{Int64: *auction.BuyNowPrice, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		auction.ID, auction.Title, auction.SellerID, auction.StartPrice, auction.CurrentPrice,
		buyNow, auction.BidIncrement, auction.StartTime, auction.EndTime, int(auction.Status),
		auction.BidCount, auction.LeadingBidID, auction.LeadingBidderID,
		auction.ExtensionCount, auction.Version, auction.CreatedAt, auction.UpdatedAt)
	return mapError(err)
}

func (s *AuctionStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`

	auction, err := scanAuction(s.db.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAuctionNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return auction, nil
}

func (s *AuctionStore) ListAuctions(ctx context.Context, filter domain.ListAuctionsFilter) ([]*domain.Auction, int, error) {
	where := ""
	var args []interface{}
	if filter.Status != nil {
		where = " WHERE status = ?"
		args = append(args, int(*filter.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auctions`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	query := `SELECT ` + auctionColumns + ` FROM auctions` + where +
		` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	auctions, err := s.queryAuctions(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return auctions, total, nil
}

func (s *AuctionStore) ListNonTerminal(ctx context.Context) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status IN (?, ?)`
	return s.queryAuctions(ctx, query, int(domain.AuctionPending), int(domain.AuctionActive))
}

func (s *AuctionStore) queryAuctions(ctx context.Context, query string, args ...interface{}) ([]*domain.Auction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	auctions := []*domain.Auction{}
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, mapError(err)
		}
		auctions = append(auctions, auction)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return auctions, nil
}

// Mutate loads the auction under a row lock, runs fn and commits the bid and the
// updated row in one transaction. Errors from fn roll back and are returned as is.
func (s *AuctionStore) Mutate(ctx context.Context, auctionID string, fn domain.MutateFunc) (*domain.Auction, []*domain.AuctionEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, mapError(err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Warn("Failed to roll back auction transaction", "auction_id", auctionID, "error", err)
		}
	}()

	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ? FOR UPDATE`
	auction, err := scanAuction(tx.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, domain.ErrAuctionNotFound
	}
	if err != nil {
		return nil, nil, mapError(err)
	}

	var leading *domain.Bid
	if auction.LeadingBidID != "" {
		leading, err = getBid(ctx, tx, auction.LeadingBidID)
		if err != nil {
			return nil, nil, mapError(fmt.Errorf("load leading bid %s: %w", auction.LeadingBidID, err))
		}
	}

	bid, events, err := fn(auction, leading)
	if err != nil {
		return nil, nil, err
	}

	if bid != nil {
		if err := insertBid(ctx, tx, bid); err != nil {
			return nil, nil, mapError(err)
		}
	}

	update := `
        UPDATE auctions SET current_price = ?, status = ?, end_time = ?, bid_count = ?,
            leading_bid_id = ?, leading_bidder_id = ?, extension_count = ?, version = ?, updated_at = ?
        WHERE id = ?
    `
	_, err = tx.ExecContext(ctx, update,
		auction.CurrentPrice, int(auction.Status), auction.EndTime, auction.BidCount,
		auction.LeadingBidID, auction.LeadingBidderID, auction.ExtensionCount, auction.Version,
		auction.UpdatedAt, auction.ID)
	if err != nil {
		return nil, nil, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, mapError(err)
	}
	return auction, events, nil
}
