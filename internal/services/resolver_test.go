package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bidding-core/internal/domain"
)

func TestResolveBid(t *testing.T) {
	led := func(leaderID string, price int64) *domain.Auction {
		a := activeAuction()
		a.CurrentPrice = price
		a.LeadingBidID = "bid_lead"
		a.LeadingBidderID = leaderID
		a.BidCount = 1
		return a
	}
	autoLead := func(ceiling int64) *domain.Bid {
		return &domain.Bid{ID: "bid_lead", BidderID: "l", Amount: ceiling, IsAutoBid: true}
	}
	manualLead := func(amount int64) *domain.Bid {
		return &domain.Bid{ID: "bid_lead", BidderID: "l", Amount: amount}
	}

	tests := []struct {
		name    string
		auction *domain.Auction
		leading *domain.Bid
		bid     *domain.Bid
		want    Resolution
	}{
		{
			name:    "first manual bid leads at its amount",
			auction: activeAuction(),
			bid:     &domain.Bid{BidderID: "b", Amount: 11000},
			want:    Resolution{NewBidLeads: true, LeaderID: "b", Price: 11000, EffectivePrice: 11000},
		},
		{
			name:    "first auto bid opens one increment above current",
			auction: activeAuction(),
			bid:     &domain.Bid{BidderID: "b", Amount: 50000, IsAutoBid: true},
			want:    Resolution{NewBidLeads: true, LeaderID: "b", Price: 11000, EffectivePrice: 11000},
		},
		{
			name:    "manual below auto ceiling is countered",
			auction: led("l", 12000),
			leading: autoLead(15000),
			bid:     &domain.Bid{BidderID: "b", Amount: 13000},
			want:    Resolution{LeaderID: "l", Price: 14000, EffectivePrice: 13000},
		},
		{
			name:    "counter capped at leader ceiling",
			auction: led("l", 12000),
			leading: autoLead(15000),
			bid:     &domain.Bid{BidderID: "b", Amount: 14500},
			want:    Resolution{LeaderID: "l", Price: 15000, EffectivePrice: 14500},
		},
		{
			name:    "manual equal to ceiling loses to earlier ceiling",
			auction: led("l", 12000),
			leading: autoLead(15000),
			bid:     &domain.Bid{BidderID: "b", Amount: 15000},
			want:    Resolution{LeaderID: "l", Price: 15000, EffectivePrice: 15000},
		},
		{
			name:    "manual above ceiling takes the lead",
			auction: led("l", 12000),
			leading: autoLead(15000),
			bid:     &domain.Bid{BidderID: "b", Amount: 16000},
			want:    Resolution{NewBidLeads: true, LeaderID: "b", Price: 16000, EffectivePrice: 16000},
		},
		{
			name:    "manual over manual leader",
			auction: led("l", 11000),
			leading: manualLead(11000),
			bid:     &domain.Bid{BidderID: "b", Amount: 12000},
			want:    Resolution{NewBidLeads: true, LeaderID: "b", Price: 12000, EffectivePrice: 12000},
		},
		{
			name:    "auto over manual leader",
			auction: led("l", 11000),
			leading: manualLead(11000),
			bid:     &domain.Bid{BidderID: "b", Amount: 15000, IsAutoBid: true},
			want:    Resolution{NewBidLeads: true, LeaderID: "b", Price: 12000, EffectivePrice: 12000},
		},
		{
			name:    "higher auto beats lower auto",
			auction: led("l", 11000),
			leading: autoLead(50000),
			bid:     &domain.Bid{BidderID: "b", Amount: 70000, IsAutoBid: true},
			want:    Resolution{NewBidLeads: true, LeaderID: "b", Price: 51000, EffectivePrice: 51000},
		},
		{
			name:    "lower auto pushes higher auto",
			auction: led("l", 11000),
			leading: autoLead(70000),
			bid:     &domain.Bid{BidderID: "b", Amount: 50000, IsAutoBid: true},
			want:    Resolution{LeaderID: "l", Price: 51000, EffectivePrice: 50000},
		},
		{
			name:    "close ceilings cap at winner",
			auction: led("l", 11000),
			leading: autoLead(20000),
			bid:     &domain.Bid{BidderID: "b", Amount: 20500, IsAutoBid: true},
			want:    Resolution{NewBidLeads: true, LeaderID: "b", Price: 20500, EffectivePrice: 20500},
		},
		{
			name:    "tied ceilings favor the leader at exactly the ceiling",
			auction: led("l", 11000),
			leading: autoLead(20000),
			bid:     &domain.Bid{BidderID: "b", Amount: 20000, IsAutoBid: true},
			want:    Resolution{LeaderID: "l", Price: 20000, EffectivePrice: 20000},
		},
		{
			name:    "self raise keeps price",
			auction: led("l", 11000),
			leading: autoLead(20000),
			bid:     &domain.Bid{BidderID: "l", Amount: 40000, IsAutoBid: true},
			want:    Resolution{NewBidLeads: true, LeaderID: "l", Price: 11000, EffectivePrice: 11000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveBid(tt.auction, tt.leading, tt.bid)
			assert.Equal(t, tt.want, got)
		})
	}
}
