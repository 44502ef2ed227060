package application

import (
	"github.com/google/uuid"

	"github.com/minekarta/auctionhouse/internal/auction/domain"
)

type EventType string

const (
	EventListed    EventType = "listed"
	EventBidPlaced EventType = "bid_placed"
	EventSold      EventType = "sold"
	EventExpired   EventType = "expired"
	EventCancelled EventType = "cancelled"
	EventPaidOut   EventType = "paid_out"
)

// Event describes a listing lifecycle transition for outside observers.
type Event struct {
	Type      EventType           `json:"type"`
	ListingID uuid.UUID           `json:"listing_id"`
	SellerID  uuid.UUID           `json:"seller_id"`
	State     domain.ListingState `json:"state"`
	Amount    float64             `json:"amount,omitempty"`
	Bidder    uuid.UUID           `json:"bidder,omitempty"`
}

// Notifier receives events after their transaction has durably committed.
// Implementations must not block; they are invoked from the authoritative loop.
type Notifier interface {
	ListingEvent(evt Event)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) ListingEvent(Event) {}
