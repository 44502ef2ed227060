package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func biddingListing(t *testing.T, starting, increment float64) *Listing {
	t.Helper()
	return NewListing(uuid.New(), "sword-of-testing", Price{
		Kind:         PriceBidding,
		Starting:     starting,
		MinIncrement: increment,
	}, time.Now(), time.Hour)
}

func fixedListing(t *testing.T, buyNow float64) *Listing {
	t.Helper()
	return NewListing(uuid.New(), "potion-crate", Price{
		Kind:   PriceFixed,
		BuyNow: buyNow,
	}, time.Now(), time.Hour)
}

func TestNewListingStartsActive(t *testing.T) {
	l := biddingListing(t, 100, 5)
	assert.Equal(t, StateActive, l.State)
	assert.EqualValues(t, 1, l.Version)
	assert.Nil(t, l.CurrentBid)
	assert.Equal(t, l.CreatedAt.Add(time.Hour), l.ExpiresAt)
}

func TestStateMachine(t *testing.T) {
	cases := []struct {
		from, to ListingState
		allowed  bool
	}{
		{StateActive, StateSold, true},
		{StateActive, StateExpiredUnclaimed, true},
		{StateActive, StateCancelled, true},
		{StateActive, StatePaidOut, false},
		{StateSold, StatePaidOut, true},
		{StateSold, StateActive, false},
		{StateSold, StateCancelled, false},
		{StateExpiredUnclaimed, StatePaidOut, true},
		{StateCancelled, StatePaidOut, true},
		{StatePaidOut, StateActive, false},
		{StatePaidOut, StateSold, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPriceValidate(t *testing.T) {
	assert.NoError(t, Price{Kind: PriceFixed, BuyNow: 10}.Validate(1))
	assert.NoError(t, Price{Kind: PriceBidding, Starting: 5, MinIncrement: 1}.Validate(1))

	assert.ErrorIs(t, Price{Kind: PriceFixed, BuyNow: 0.5}.Validate(1), ErrInvalidPrice)
	assert.ErrorIs(t, Price{Kind: PriceBidding, Starting: 0, MinIncrement: 1}.Validate(1), ErrInvalidPrice)
	assert.ErrorIs(t, Price{Kind: PriceBidding, Starting: 5, MinIncrement: 0}.Validate(1), ErrInvalidPrice)
	assert.ErrorIs(t, Price{Kind: "WEIRD", BuyNow: 10}.Validate(1), ErrInvalidPrice)
}

func TestApplyBidAcceptsAtStartingPrice(t *testing.T) {
	l := biddingListing(t, 100, 5)
	bidder := uuid.New()
	require.NoError(t, l.ApplyBid(bidder, 100, time.Now()))
	require.NotNil(t, l.CurrentBid)
	assert.Equal(t, bidder, l.CurrentBid.Bidder)
	assert.Equal(t, 100.0, l.CurrentBid.Amount)
}

func TestApplyBidEnforcesIncrement(t *testing.T) {
	l := biddingListing(t, 100, 5)
	require.NoError(t, l.ApplyBid(uuid.New(), 110, time.Now()))

	err := l.ApplyBid(uuid.New(), 105, time.Now())
	var tooLow *BidTooLowError
	require.True(t, errors.As(err, &tooLow))
	assert.Equal(t, 110.0, tooLow.Leading)
	assert.Equal(t, 115.0, tooLow.Minimum)

	// losing bid left no trace
	assert.Equal(t, 110.0, l.CurrentBid.Amount)

	require.NoError(t, l.ApplyBid(uuid.New(), 115, time.Now()))
	assert.Equal(t, 115.0, l.CurrentBid.Amount)
}

func TestApplyBidRejectsSeller(t *testing.T) {
	l := biddingListing(t, 100, 5)
	assert.ErrorIs(t, l.ApplyBid(l.SellerID, 200, time.Now()), ErrOwnListing)
}

func TestApplyBidRejectsFixedPrice(t *testing.T) {
	l := fixedListing(t, 50)
	assert.ErrorIs(t, l.ApplyBid(uuid.New(), 60, time.Now()), ErrNotBiddable)
}

func TestApplyBidRejectsSettledListing(t *testing.T) {
	l := biddingListing(t, 100, 5)
	require.NoError(t, l.ApplyBid(uuid.New(), 100, time.Now()))
	require.NoError(t, l.MarkSoldToHighestBidder())
	assert.ErrorIs(t, l.ApplyBid(uuid.New(), 200, time.Now()), ErrItemNotAvailable)
}

func TestMarkSoldRecordsBuyer(t *testing.T) {
	l := fixedListing(t, 50)
	buyer := uuid.New()
	require.NoError(t, l.MarkSold(buyer, 50, time.Now()))
	assert.Equal(t, StateSold, l.State)
	require.NotNil(t, l.CurrentBid)
	assert.Equal(t, buyer, l.CurrentBid.Bidder)
	assert.Equal(t, 50.0, l.CurrentBid.Amount)
}

func TestMarkSoldToHighestBidderRequiresBid(t *testing.T) {
	l := biddingListing(t, 100, 5)
	assert.ErrorIs(t, l.MarkSoldToHighestBidder(), ErrInvalidTransition)
}

func TestMarkExpiredUnclaimedRejectsBids(t *testing.T) {
	l := biddingListing(t, 100, 5)
	require.NoError(t, l.ApplyBid(uuid.New(), 100, time.Now()))
	assert.ErrorIs(t, l.MarkExpiredUnclaimed(), ErrInvalidTransition)
}

func TestMarkCancelledRejectsBids(t *testing.T) {
	l := biddingListing(t, 100, 5)
	require.NoError(t, l.MarkCancelled())

	withBid := biddingListing(t, 100, 5)
	require.NoError(t, withBid.ApplyBid(uuid.New(), 100, time.Now()))
	assert.ErrorIs(t, withBid.MarkCancelled(), ErrCancelWithBids)
	assert.Equal(t, StateActive, withBid.State)
}

func TestMarkCancelledOnSettledListing(t *testing.T) {
	// once settled the transition rule wins over the has-bids rule
	sold := biddingListing(t, 100, 5)
	require.NoError(t, sold.ApplyBid(uuid.New(), 100, time.Now()))
	require.NoError(t, sold.MarkSoldToHighestBidder())
	assert.ErrorIs(t, sold.MarkCancelled(), ErrInvalidTransition)

	paid := fixedListing(t, 50)
	require.NoError(t, paid.MarkSold(uuid.New(), 50, time.Now()))
	require.NoError(t, paid.MarkPaidOut())
	assert.ErrorIs(t, paid.MarkCancelled(), ErrInvalidTransition)
}

func TestPaidOutIsTerminal(t *testing.T) {
	l := fixedListing(t, 50)
	require.NoError(t, l.MarkSold(uuid.New(), 50, time.Now()))
	require.NoError(t, l.MarkPaidOut())
	assert.True(t, l.IsTerminal())
	assert.ErrorIs(t, l.MarkPaidOut(), ErrInvalidTransition)
	assert.ErrorIs(t, l.MarkCancelled(), ErrInvalidTransition)
}

func TestAwaitingPayout(t *testing.T) {
	l := biddingListing(t, 100, 5)
	assert.False(t, l.AwaitingPayout())
	require.NoError(t, l.MarkCancelled())
	assert.True(t, l.AwaitingPayout())
	require.NoError(t, l.MarkPaidOut())
	assert.False(t, l.AwaitingPayout())
}

func TestCloneIsIndependent(t *testing.T) {
	l := biddingListing(t, 100, 5)
	require.NoError(t, l.ApplyBid(uuid.New(), 100, time.Now()))

	c := l.Clone()
	require.NoError(t, l.ApplyBid(uuid.New(), 200, time.Now()))
	l.State = StateSold

	assert.Equal(t, StateActive, c.State)
	assert.Equal(t, 100.0, c.CurrentBid.Amount)
}

func TestLeadingAmountAndMinimumNextBid(t *testing.T) {
	l := biddingListing(t, 100, 5)
	assert.Equal(t, 100.0, l.LeadingAmount())
	assert.Equal(t, 100.0, l.MinimumNextBid())

	require.NoError(t, l.ApplyBid(uuid.New(), 120, time.Now()))
	assert.Equal(t, 120.0, l.LeadingAmount())
	assert.Equal(t, 125.0, l.MinimumNextBid())

	f := fixedListing(t, 50)
	assert.Equal(t, 50.0, f.LeadingAmount())
}
