package mysql

import (
	"context"
	"database/sql"
	"errors"

	"bidding-core/internal/domain"
)

const bidColumns = `id, auction_id, bidder_id, amount, is_auto_bid, effective_price, seq, idempotency_key, placed_at,
        price_after, leader_after, end_time_after, extended`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func scanBid(row rowScanner) (*domain.Bid, error) {
	var bid domain.Bid
	var key sql.NullString

	err := row.Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.IsAutoBid,
		&bid.EffectivePrice, &bid.Sequence, &key, &bid.PlacedAt,
		&bid.PriceAfter, &bid.LeaderAfter, &bid.EndTimeAfter, &bid.Extended)
	if err != nil {
		return nil, err
	}
	bid.IdempotencyKey = key.String
	return &bid, nil
}

func getBid(ctx context.Context, q queryer, bidID string) (*domain.Bid, error) {
	return scanBid(q.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = ?`, bidID))
}

func insertBid(ctx context.Context, e execer, bid *domain.Bid) error {
	query := `
        INSERT INTO bids (` + bidColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	var key sql.NullString
	if bid.IdempotencyKey != "" {
		key = sql.NullString{String: bid.IdempotencyKey, Valid: true}
	}

	_, err := e.ExecContext(ctx, query,
		bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.IsAutoBid,
		bid.EffectivePrice, bid.Sequence, key, bid.PlacedAt,
		bid.PriceAfter, bid.LeaderAfter, bid.EndTimeAfter, bid.Extended)
	return err
}

func (s *AuctionStore) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	if _, err := s.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}

	query := `
        SELECT ` + bidColumns + `
        FROM bids
        WHERE auction_id = ?
        ORDER BY seq ASC
    `
	rows, err := s.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	bids := []*domain.Bid{}
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, mapError(err)
		}
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return bids, nil
}

// FindBidByIdempotencyKey returns nil, nil when the bidder has no bid under the key.
func (s *AuctionStore) FindBidByIdempotencyKey(ctx context.Context, auctionID, bidderID, key string) (*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = ? AND bidder_id = ? AND idempotency_key = ?`

	bid, err := scanBid(s.db.QueryRowContext(ctx, query, auctionID, bidderID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return bid, nil
}
