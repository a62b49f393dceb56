package services

import (
	"bidding-core/internal/domain"
)

// Resolution is the outcome of running one admitted bid against the current leader.
type Resolution struct {
	// NewBidLeads is set when the incoming bid becomes the leading bid.
	NewBidLeads bool
	LeaderID    string
	Price       int64
	// EffectivePrice is recorded on the incoming bid row.
	EffectivePrice int64
}

// ResolveBid applies proxy bidding for an admitted bid. Only the current
// leader is considered; the result is computed in a single pass.
func ResolveBid(auction *domain.Auction, leading *domain.Bid, bid *domain.Bid) Resolution {
	inc := auction.BidIncrement

	if !auction.HasLeader() {
		price := bid.Amount
		if bid.IsAutoBid {
			price = min(bid.Amount, auction.CurrentPrice+inc)
		}
		price = max(auction.StartPrice, price)
		return Resolution{NewBidLeads: true, LeaderID: bid.BidderID, Price: price, EffectivePrice: price}
	}

	// Raising one's own ceiling keeps the price where it is.
	if bid.BidderID == auction.LeadingBidderID {
		return Resolution{
			NewBidLeads:    true,
			LeaderID:       bid.BidderID,
			Price:          auction.CurrentPrice,
			EffectivePrice: auction.CurrentPrice,
		}
	}

	cl := leaderCeiling(auction, leading)

	if !bid.IsAutoBid {
		if bid.Amount <= cl {
			price := min(cl, bid.Amount+inc)
			return Resolution{LeaderID: auction.LeadingBidderID, Price: price, EffectivePrice: bid.Amount}
		}
		return Resolution{NewBidLeads: true, LeaderID: bid.BidderID, Price: bid.Amount, EffectivePrice: bid.Amount}
	}

	cb := bid.Amount
	switch {
	case cb > cl:
		price := min(cb, cl+inc)
		return Resolution{NewBidLeads: true, LeaderID: bid.BidderID, Price: price, EffectivePrice: price}
	case cb == cl:
		// Earlier ceiling wins a tie.
		return Resolution{LeaderID: auction.LeadingBidderID, Price: cb, EffectivePrice: cb}
	default:
		price := min(cl, cb+inc)
		return Resolution{LeaderID: auction.LeadingBidderID, Price: price, EffectivePrice: cb}
	}
}
