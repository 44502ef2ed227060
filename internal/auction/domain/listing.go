package domain

import (
	"time"

	"github.com/google/uuid"
)

// ListingState represents where a listing sits in its lifecycle. Transitions
// are one-directional; no state is ever revisited.
type ListingState string

const (
	StateActive           ListingState = "ACTIVE"
	StateSold             ListingState = "SOLD"
	StateExpiredUnclaimed ListingState = "EXPIRED_UNCLAIMED"
	StateCancelled        ListingState = "CANCELLED"
	StatePaidOut          ListingState = "PAID_OUT"
)

// transitions is the full state machine. PAID_OUT is terminal.
var transitions = map[ListingState]map[ListingState]bool{
	StateActive: {
		StateSold:             true,
		StateExpiredUnclaimed: true,
		StateCancelled:        true,
	},
	StateSold:             {StatePaidOut: true},
	StateExpiredUnclaimed: {StatePaidOut: true},
	StateCancelled:        {StatePaidOut: true},
	StatePaidOut:          {},
}

func CanTransition(from, to ListingState) bool {
	return transitions[from][to]
}

// PriceKind selects between a fixed buy-now sale and a bid-based auction.
type PriceKind string

const (
	PriceFixed   PriceKind = "FIXED"
	PriceBidding PriceKind = "BIDDING"
)

// Price is immutable once the listing is created; bid state lives in
// Listing.CurrentBid, not here.
type Price struct {
	Kind         PriceKind `json:"kind"`
	BuyNow       float64   `json:"buy_now,omitempty"`
	Starting     float64   `json:"starting,omitempty"`
	MinIncrement float64   `json:"min_increment,omitempty"`
}

func (p Price) Validate(minPrice float64) error {
	switch p.Kind {
	case PriceFixed:
		if p.BuyNow < minPrice {
			return ErrInvalidPrice
		}
	case PriceBidding:
		if p.Starting < minPrice || p.MinIncrement <= 0 {
			return ErrInvalidPrice
		}
	default:
		return ErrInvalidPrice
	}
	return nil
}

// Bid is the current leading bid on a listing.
type Bid struct {
	Bidder uuid.UUID `json:"bidder"`
	Amount float64   `json:"amount"`
	At     time.Time `json:"at"`
}

// Listing is the unit of sale. The ledger owns the in-memory instance during
// its active lifetime; the repository owns the durable row. ID, SellerID,
// ItemPayload, Price and ExpiresAt never change after creation.
type Listing struct {
	ID          uuid.UUID
	SellerID    uuid.UUID
	ItemPayload string
	Price       Price
	CurrentBid  *Bid
	CreatedAt   time.Time
	ExpiresAt   time.Time
	State       ListingState
	Version     int64
}

// NewListing allocates a fresh id; re-listing an item always produces a new id.
func NewListing(seller uuid.UUID, payload string, price Price, now time.Time, duration time.Duration) *Listing {
	return &Listing{
		ID:          uuid.New(),
		SellerID:    seller,
		ItemPayload: payload,
		Price:       price,
		CreatedAt:   now,
		ExpiresAt:   now.Add(duration),
		State:       StateActive,
		Version:     1,
	}
}

// Clone returns a deep copy, safe to hand to other goroutines.
func (l *Listing) Clone() *Listing {
	c := *l
	if l.CurrentBid != nil {
		bid := *l.CurrentBid
		c.CurrentBid = &bid
	}
	return &c
}

func (l *Listing) IsTerminal() bool { return l.State == StatePaidOut }

// AwaitingPayout reports whether the listing has settled but its payout has not
// been recorded yet.
func (l *Listing) AwaitingPayout() bool {
	switch l.State {
	case StateSold, StateExpiredUnclaimed, StateCancelled:
		return true
	}
	return false
}

// LeadingAmount is the current bid, or the starting price when nobody has bid.
func (l *Listing) LeadingAmount() float64 {
	if l.CurrentBid != nil {
		return l.CurrentBid.Amount
	}
	if l.Price.Kind == PriceBidding {
		return l.Price.Starting
	}
	return l.Price.BuyNow
}

// MinimumNextBid is the smallest acceptable bid: the starting price for the
// first bid, leading amount plus the increment afterwards.
func (l *Listing) MinimumNextBid() float64 {
	if l.CurrentBid == nil {
		return l.Price.Starting
	}
	return l.CurrentBid.Amount + l.Price.MinIncrement
}

// ApplyBid validates and records a bid. The amount per listing is strictly
// monotonic: each accepted bid beats the previous by at least the increment.
func (l *Listing) ApplyBid(bidder uuid.UUID, amount float64, now time.Time) error {
	if l.State != StateActive {
		return ErrItemNotAvailable
	}
	if l.Price.Kind != PriceBidding {
		return ErrNotBiddable
	}
	if bidder == l.SellerID {
		return ErrOwnListing
	}
	if min := l.MinimumNextBid(); amount < min {
		return &BidTooLowError{Leading: l.LeadingAmount(), Minimum: min}
	}
	l.CurrentBid = &Bid{Bidder: bidder, Amount: amount, At: now}
	return nil
}

// MarkSold records a buy-now purchase. The buyer is stored as the winning bid
// at the buy-now price.
func (l *Listing) MarkSold(buyer uuid.UUID, amount float64, now time.Time) error {
	if err := l.transition(StateSold); err != nil {
		return err
	}
	l.CurrentBid = &Bid{Bidder: buyer, Amount: amount, At: now}
	return nil
}

// MarkSoldToHighestBidder settles an expired auction in favor of the leading
// bidder.
func (l *Listing) MarkSoldToHighestBidder() error {
	if l.CurrentBid == nil {
		return ErrInvalidTransition
	}
	return l.transition(StateSold)
}

func (l *Listing) MarkExpiredUnclaimed() error {
	if l.CurrentBid != nil {
		return ErrInvalidTransition
	}
	return l.transition(StateExpiredUnclaimed)
}

func (l *Listing) MarkCancelled() error {
	if !CanTransition(l.State, StateCancelled) {
		return ErrInvalidTransition
	}
	if l.CurrentBid != nil {
		return ErrCancelWithBids
	}
	return l.transition(StateCancelled)
}

func (l *Listing) MarkPaidOut() error {
	return l.transition(StatePaidOut)
}

func (l *Listing) transition(to ListingState) error {
	if !CanTransition(l.State, to) {
		return ErrInvalidTransition
	}
	l.State = to
	return nil
}
