package services

import (
	"time"

	"bidding-core/internal/domain"
)

// ValidateBid checks a candidate bid against the current auction state and its
// leading bid. The first failing check wins. It never mutates its inputs.
func ValidateBid(auction *domain.Auction, leading *domain.Bid, req domain.PlaceBidRequest, now time.Time) error {
	if auction.Status != domain.AuctionActive || now.Before(auction.StartTime) || !now.Before(auction.EndTime) {
		return &domain.ValidationError{Reason: domain.ReasonAuctionNotActive}
	}

	if req.Amount <= 0 {
		return &domain.ValidationError{Reason: domain.ReasonInvalidAmount}
	}

	minimum := auction.MinimumNextBid()
	if req.IsAutoBid {
		if req.Amount < minimum {
			return &domain.ValidationError{Reason: domain.ReasonAutoBidCeilingTooLow, MinimumAmount: minimum}
		}
	} else if req.Amount < minimum {
		return &domain.ValidationError{Reason: domain.ReasonBidTooLow, MinimumAmount: minimum}
	}

	if auction.HasLeader() && auction.LeadingBidderID == req.BidderID {
		if !req.IsAutoBid || req.Amount <= leaderCeiling(auction, leading) {
			return &domain.ValidationError{Reason: domain.ReasonSelfBidRejected}
		}
	}

	return nil
}

// leaderCeiling is the most the current leader is committed to pay. A manual
// leader is committed to the current price only.
func leaderCeiling(auction *domain.Auction, leading *domain.Bid) int64 {
	if leading != nil && leading.IsAutoBid && leading.Amount > auction.CurrentPrice {
		return leading.Amount
	}
	return auction.CurrentPrice
}
