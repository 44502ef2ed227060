package domain

import (
	"errors"
	"fmt"
)

var (
	ErrListingNotFound        = errors.New("listing not found")
	ErrDuplicateListingID     = errors.New("duplicate listing id")
	ErrInvalidTransition      = errors.New("invalid listing state transition")
	ErrItemNotAvailable       = errors.New("item is not available")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrProviderUnavailable    = errors.New("economy provider is unavailable")
	ErrDurablePersistence     = errors.New("durable store write failed")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOwnListing             = errors.New("sellers cannot bid on or buy their own listing")
	ErrCancelWithBids         = errors.New("a listing with bids cannot be cancelled")
	ErrNotBiddable            = errors.New("listing does not accept bids")
	ErrNotBuyable             = errors.New("listing has no buy-now price")
	ErrInvalidPrice           = errors.New("invalid listing price")
	ErrInvalidDuration        = errors.New("invalid listing duration")
	ErrInvalidItemPayload     = errors.New("item payload is empty")
	ErrListingLimitReached    = errors.New("seller has reached the active listing limit")
	ErrNotListingOwner        = errors.New("listing belongs to another seller")
)

// BidTooLowError reports the leading amount so callers can tell the bidder what
// to beat. Rejected bids are never silently dropped.
type BidTooLowError struct {
	Leading float64
	Minimum float64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: leading amount is %.2f, minimum acceptable bid is %.2f", e.Leading, e.Minimum)
}
