package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type expiryKey struct {
	at time.Time
	id uuid.UUID
}

// Ledger is the authoritative in-memory index of listings. It is pure data
// structure: no I/O ever happens here, so calls from the authoritative loop
// never block. Every call, reads included, runs on that loop; other goroutines
// reach it only through tasks marshaled onto the loop, which keeps the hot
// path lock-free.
type Ledger struct {
	listings map[uuid.UUID]*Listing
	bySeller map[uuid.UUID]map[uuid.UUID]struct{}
	byExpiry []expiryKey // ascending (expiresAt, id)
}

func NewLedger() *Ledger {
	return &Ledger{
		listings: make(map[uuid.UUID]*Listing),
		bySeller: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// Insert adds a listing to the primary map and both secondary indexes.
func (lg *Ledger) Insert(l *Listing) error {
	if _, ok := lg.listings[l.ID]; ok {
		return ErrDuplicateListingID
	}
	lg.listings[l.ID] = l
	sellers, ok := lg.bySeller[l.SellerID]
	if !ok {
		sellers = make(map[uuid.UUID]struct{})
		lg.bySeller[l.SellerID] = sellers
	}
	sellers[l.ID] = struct{}{}
	lg.expiryInsert(expiryKey{at: l.ExpiresAt, id: l.ID})
	return nil
}

// Mutate applies transform under exclusive access to the listing's slot and
// increments the version on success. A transform error leaves the listing
// untouched only if the transform itself made no changes before failing;
// transforms are written validate-first so that holds.
func (lg *Ledger) Mutate(id uuid.UUID, transform func(*Listing) error) error {
	l, ok := lg.listings[id]
	if !ok {
		return ErrListingNotFound
	}
	if err := transform(l); err != nil {
		return err
	}
	l.Version++
	return nil
}

// Remove erases the listing from all indexes. Used only after the durable
// store has confirmed the terminal state.
func (lg *Ledger) Remove(id uuid.UUID) {
	l, ok := lg.listings[id]
	if !ok {
		return
	}
	delete(lg.listings, id)
	if sellers, ok := lg.bySeller[l.SellerID]; ok {
		delete(sellers, id)
		if len(sellers) == 0 {
			delete(lg.bySeller, l.SellerID)
		}
	}
	lg.expiryRemove(expiryKey{at: l.ExpiresAt, id: id})
}

// Restore replaces a listing's in-memory state with a previously taken
// snapshot. This is the compensating mutation applied when a durable write
// fails after the in-memory commit.
func (lg *Ledger) Restore(snapshot *Listing) {
	if _, ok := lg.listings[snapshot.ID]; !ok {
		return
	}
	lg.listings[snapshot.ID] = snapshot.Clone()
}

// Get returns a deep copy; callers never receive a mutable reference.
func (lg *Ledger) Get(id uuid.UUID) (*Listing, error) {
	l, ok := lg.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	return l.Clone(), nil
}

// SnapshotActiveExpiringBefore returns ids of ACTIVE listings with
// expiresAt <= cutoff, ordered by ascending expiry. The returned slice is a
// copy, read-consistent at call time; later mutations do not affect it.
func (lg *Ledger) SnapshotActiveExpiringBefore(cutoff time.Time) []uuid.UUID {
	var ids []uuid.UUID
	for _, key := range lg.byExpiry {
		if key.at.After(cutoff) {
			break
		}
		if l, ok := lg.listings[key.id]; ok && l.State == StateActive {
			ids = append(ids, key.id)
		}
	}
	return ids
}

// SnapshotAwaitingPayout returns ids of settled listings whose payout has not
// been recorded yet, in expiry order.
func (lg *Ledger) SnapshotAwaitingPayout() []uuid.UUID {
	var ids []uuid.UUID
	for _, key := range lg.byExpiry {
		if l, ok := lg.listings[key.id]; ok && l.AwaitingPayout() {
			ids = append(ids, key.id)
		}
	}
	return ids
}

// ActiveBySeller returns copies of the seller's ACTIVE listings.
func (lg *Ledger) ActiveBySeller(seller uuid.UUID) []*Listing {
	var out []*Listing
	for id := range lg.bySeller[seller] {
		if l := lg.listings[id]; l != nil && l.State == StateActive {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

func (lg *Ledger) CountActiveBySeller(seller uuid.UUID) int {
	n := 0
	for id := range lg.bySeller[seller] {
		if l := lg.listings[id]; l != nil && l.State == StateActive {
			n++
		}
	}
	return n
}

// ActiveListings returns copies of every ACTIVE listing in expiry order.
func (lg *Ledger) ActiveListings() []*Listing {
	var out []*Listing
	for _, key := range lg.byExpiry {
		if l, ok := lg.listings[key.id]; ok && l.State == StateActive {
			out = append(out, l.Clone())
		}
	}
	return out
}

func (lg *Ledger) ActiveCount() int {
	n := 0
	for _, l := range lg.listings {
		if l.State == StateActive {
			n++
		}
	}
	return n
}

// TopActive returns a copy of the ACTIVE listing with the highest leading
// amount, or nil when nothing is listed.
func (lg *Ledger) TopActive() *Listing {
	var top *Listing
	for _, l := range lg.listings {
		if l.State != StateActive {
			continue
		}
		if top == nil || l.LeadingAmount() > top.LeadingAmount() {
			top = l
		}
	}
	if top == nil {
		return nil
	}
	return top.Clone()
}

func (lg *Ledger) expiryInsert(key expiryKey) {
	i := sort.Search(len(lg.byExpiry), func(i int) bool {
		k := lg.byExpiry[i]
		if !k.at.Equal(key.at) {
			return k.at.After(key.at)
		}
		return k.id.String() >= key.id.String()
	})
	lg.byExpiry = append(lg.byExpiry, expiryKey{})
	copy(lg.byExpiry[i+1:], lg.byExpiry[i:])
	lg.byExpiry[i] = key
}

func (lg *Ledger) expiryRemove(key expiryKey) {
	for i, k := range lg.byExpiry {
		if k.id == key.id {
			lg.byExpiry = append(lg.byExpiry[:i], lg.byExpiry[i+1:]...)
			return
		}
	}
}
