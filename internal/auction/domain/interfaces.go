package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SystemAccount is the escrow account holding bid funds between acceptance and
// payout. The zero UUID is reserved for it; no player ever owns it.
var SystemAccount = uuid.Nil

// ListingRepository translates listings to and from durable rows. All durable
// I/O for listings is funneled through here; implementations retry transient
// failures with bounded backoff and surface ErrDurablePersistence on
// exhaustion, ErrConcurrentModification on version mismatch.
//
// deliveries passed to Upsert and Archive are written in the same durable
// transaction as the row, so a recorded state change and its mailbox effects
// are never observed apart.
type ListingRepository interface {
	LoadAllActive(ctx context.Context) ([]*Listing, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Listing, error)
	Upsert(ctx context.Context, l *Listing, expectedVersion int64, deliveries ...*MailboxEntry) error
	Archive(ctx context.Context, l *Listing, closedReason string, closedAt time.Time, deliveries ...*MailboxEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MailboxRepository reads and claims deliveries. Inserts happen through
// ListingRepository so they share the owning transaction.
//
// ClaimAll atomically marks every unclaimed entry of the owner as claimed and
// returns exactly the entries it marked; concurrent claimers never receive the
// same entry twice. Unclaim is the compensating write when the payout that
// followed a claim failed.
type MailboxRepository interface {
	ListUnclaimed(ctx context.Context, owner uuid.UUID) ([]*MailboxEntry, error)
	ClaimAll(ctx context.Context, owner uuid.UUID, at time.Time) ([]*MailboxEntry, error)
	Unclaim(ctx context.Context, ids []uuid.UUID) error
}

// EconomyService is the consumed economy-provider contract. Each Transfer is
// atomic from the caller's point of view; a failed transfer moved nothing.
type EconomyService interface {
	Transfer(ctx context.Context, from, to uuid.UUID, amount float64, reason string) error
	Balance(ctx context.Context, account uuid.UUID) (float64, error)
}
