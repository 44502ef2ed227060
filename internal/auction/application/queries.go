package application

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/minekarta/auctionhouse/internal/auction/domain"
	"github.com/minekarta/auctionhouse/internal/shared/gameloop"
)

// ListingView is the read-only DTO exposed to the UI and placeholder-text
// collaborators. Always a copy; callers can never corrupt ledger state.
type ListingView struct {
	ID          uuid.UUID           `json:"id"`
	SellerID    uuid.UUID           `json:"seller_id"`
	ItemPayload string              `json:"item_payload"`
	Price       domain.Price        `json:"price"`
	BidAmount   float64             `json:"bid_amount,omitempty"`
	BidderID    uuid.UUID           `json:"bidder_id,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
	State       domain.ListingState `json:"state"`
}

// QueryService is the thread-safe snapshot API. Reads are marshaled onto the
// authoritative loop, so they observe listings in exactly one state each.
type QueryService struct {
	ledger *domain.Ledger
	loop   *gameloop.Loop
}

func NewQueryService(ledger *domain.Ledger, loop *gameloop.Loop) *QueryService {
	return &QueryService{ledger: ledger, loop: loop}
}

func (q *QueryService) ActiveListings() []ListingView {
	var listings []*domain.Listing
	q.loop.Call(func() { listings = q.ledger.ActiveListings() })
	return toViews(listings)
}

func (q *QueryService) ListingsBySeller(seller uuid.UUID) []ListingView {
	var listings []*domain.Listing
	q.loop.Call(func() { listings = q.ledger.ActiveBySeller(seller) })
	return toViews(listings)
}

func (q *QueryService) ListingByID(id uuid.UUID) (*ListingView, error) {
	var (
		listing *domain.Listing
		err     error
	)
	q.loop.Call(func() { listing, err = q.ledger.Get(id) })
	if err != nil {
		return nil, err
	}
	view := toView(listing)
	return &view, nil
}

// ActiveListingCountFor implements the placeholder-text contract.
func (q *QueryService) ActiveListingCountFor(player uuid.UUID) int {
	var n int
	q.loop.Call(func() { n = q.ledger.CountActiveBySeller(player) })
	return n
}

func (q *QueryService) TotalActiveCount() int {
	var n int
	q.loop.Call(func() { n = q.ledger.ActiveCount() })
	return n
}

// TopListingSummary implements the placeholder-text contract: a one-line
// description of the most valuable active listing.
func (q *QueryService) TopListingSummary() string {
	var top *domain.Listing
	q.loop.Call(func() { top = q.ledger.TopActive() })
	if top == nil {
		return "no active listings"
	}
	return fmt.Sprintf("listing %s at %.2f (expires %s)",
		top.ID, top.LeadingAmount(), top.ExpiresAt.UTC().Format(time.RFC3339))
}

func toView(l *domain.Listing) ListingView {
	v := ListingView{
		ID:          l.ID,
		SellerID:    l.SellerID,
		ItemPayload: l.ItemPayload,
		Price:       l.Price,
		CreatedAt:   l.CreatedAt,
		ExpiresAt:   l.ExpiresAt,
		State:       l.State,
	}
	if l.CurrentBid != nil {
		v.BidAmount = l.CurrentBid.Amount
		v.BidderID = l.CurrentBid.Bidder
	}
	return v
}

func toViews(listings []*domain.Listing) []ListingView {
	views := make([]ListingView, 0, len(listings))
	for _, l := range listings {
		views = append(views, toView(l))
	}
	return views
}
