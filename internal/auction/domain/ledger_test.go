package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerListing(t *testing.T, seller uuid.UUID, expiresIn time.Duration) *Listing {
	t.Helper()
	return NewListing(seller, "item", Price{
		Kind:         PriceBidding,
		Starting:     100,
		MinIncrement: 5,
	}, time.Now(), expiresIn)
}

func TestLedgerInsertRejectsDuplicates(t *testing.T) {
	lg := NewLedger()
	l := ledgerListing(t, uuid.New(), time.Hour)
	require.NoError(t, lg.Insert(l))
	assert.ErrorIs(t, lg.Insert(l), ErrDuplicateListingID)
}

func TestLedgerGetReturnsCopy(t *testing.T) {
	lg := NewLedger()
	l := ledgerListing(t, uuid.New(), time.Hour)
	require.NoError(t, lg.Insert(l))

	got, err := lg.Get(l.ID)
	require.NoError(t, err)
	got.State = StateSold

	again, err := lg.Get(l.ID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, again.State)
}

func TestLedgerGetUnknown(t *testing.T) {
	lg := NewLedger()
	_, err := lg.Get(uuid.New())
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestLedgerMutateBumpsVersion(t *testing.T) {
	lg := NewLedger()
	l := ledgerListing(t, uuid.New(), time.Hour)
	require.NoError(t, lg.Insert(l))

	require.NoError(t, lg.Mutate(l.ID, func(l *Listing) error {
		return l.ApplyBid(uuid.New(), 100, time.Now())
	}))
	got, err := lg.Get(l.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Version)
}

func TestLedgerMutateFailureLeavesVersion(t *testing.T) {
	lg := NewLedger()
	l := ledgerListing(t, uuid.New(), time.Hour)
	require.NoError(t, lg.Insert(l))

	err := lg.Mutate(l.ID, func(l *Listing) error {
		return l.ApplyBid(uuid.New(), 1, time.Now()) // below starting price
	})
	require.Error(t, err)

	got, _ := lg.Get(l.ID)
	assert.EqualValues(t, 1, got.Version)
	assert.Nil(t, got.CurrentBid)
}

func TestLedgerMutateUnknown(t *testing.T) {
	lg := NewLedger()
	err := lg.Mutate(uuid.New(), func(*Listing) error { return nil })
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestLedgerRestore(t *testing.T) {
	lg := NewLedger()
	l := ledgerListing(t, uuid.New(), time.Hour)
	require.NoError(t, lg.Insert(l))

	snapshot, _ := lg.Get(l.ID)
	require.NoError(t, lg.Mutate(l.ID, func(l *Listing) error {
		return l.ApplyBid(uuid.New(), 100, time.Now())
	}))

	lg.Restore(snapshot)
	got, _ := lg.Get(l.ID)
	assert.Nil(t, got.CurrentBid)
	assert.EqualValues(t, 1, got.Version)

	// restoring a removed listing must not resurrect it
	lg.Remove(l.ID)
	lg.Restore(snapshot)
	_, err := lg.Get(l.ID)
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestLedgerRemoveClearsIndexes(t *testing.T) {
	lg := NewLedger()
	seller := uuid.New()
	l := ledgerListing(t, seller, time.Hour)
	require.NoError(t, lg.Insert(l))

	lg.Remove(l.ID)
	assert.Equal(t, 0, lg.CountActiveBySeller(seller))
	assert.Empty(t, lg.SnapshotActiveExpiringBefore(time.Now().Add(2*time.Hour)))
	assert.Equal(t, 0, lg.ActiveCount())

	// removing twice is harmless
	lg.Remove(l.ID)
}

func TestSnapshotActiveExpiringBeforeOrder(t *testing.T) {
	lg := NewLedger()
	late := ledgerListing(t, uuid.New(), 3*time.Hour)
	early := ledgerListing(t, uuid.New(), time.Hour)
	mid := ledgerListing(t, uuid.New(), 2*time.Hour)
	for _, l := range []*Listing{late, early, mid} {
		require.NoError(t, lg.Insert(l))
	}

	ids := lg.SnapshotActiveExpiringBefore(time.Now().Add(150 * time.Minute))
	assert.Equal(t, []uuid.UUID{early.ID, mid.ID}, ids)

	all := lg.SnapshotActiveExpiringBefore(time.Now().Add(4 * time.Hour))
	assert.Equal(t, []uuid.UUID{early.ID, mid.ID, late.ID}, all)
}

func TestSnapshotSkipsSettledListings(t *testing.T) {
	lg := NewLedger()
	l := ledgerListing(t, uuid.New(), time.Hour)
	require.NoError(t, lg.Insert(l))
	require.NoError(t, lg.Mutate(l.ID, func(l *Listing) error {
		return l.MarkCancelled()
	}))

	assert.Empty(t, lg.SnapshotActiveExpiringBefore(time.Now().Add(2*time.Hour)))
	assert.Equal(t, []uuid.UUID{l.ID}, lg.SnapshotAwaitingPayout())
}

func TestSnapshotIsReadConsistent(t *testing.T) {
	lg := NewLedger()
	l := ledgerListing(t, uuid.New(), time.Hour)
	require.NoError(t, lg.Insert(l))

	ids := lg.SnapshotActiveExpiringBefore(time.Now().Add(2 * time.Hour))
	lg.Remove(l.ID)
	assert.Equal(t, []uuid.UUID{l.ID}, ids)
}

func TestActiveBySeller(t *testing.T) {
	lg := NewLedger()
	seller := uuid.New()
	a := ledgerListing(t, seller, 2*time.Hour)
	b := ledgerListing(t, seller, time.Hour)
	other := ledgerListing(t, uuid.New(), time.Hour)
	for _, l := range []*Listing{a, b, other} {
		require.NoError(t, lg.Insert(l))
	}

	got := lg.ActiveBySeller(seller)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID) // expiry order
	assert.Equal(t, a.ID, got[1].ID)
	assert.Equal(t, 2, lg.CountActiveBySeller(seller))
	assert.Equal(t, 1, lg.CountActiveBySeller(other.SellerID))
}

func TestTopActive(t *testing.T) {
	lg := NewLedger()
	assert.Nil(t, lg.TopActive())

	cheap := ledgerListing(t, uuid.New(), time.Hour)
	dear := NewListing(uuid.New(), "crown", Price{Kind: PriceFixed, BuyNow: 9999}, time.Now(), time.Hour)
	require.NoError(t, lg.Insert(cheap))
	require.NoError(t, lg.Insert(dear))

	top := lg.TopActive()
	require.NotNil(t, top)
	assert.Equal(t, dear.ID, top.ID)

	// a leading bid outranks a starting price
	require.NoError(t, lg.Mutate(cheap.ID, func(l *Listing) error {
		return l.ApplyBid(uuid.New(), 20000, time.Now())
	}))
	assert.Equal(t, cheap.ID, lg.TopActive().ID)
}
