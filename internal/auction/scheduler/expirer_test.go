package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minekarta/auctionhouse/internal/auction/application"
	"github.com/minekarta/auctionhouse/internal/auction/domain"
	"github.com/minekarta/auctionhouse/internal/auction/infra/economy"
	"github.com/minekarta/auctionhouse/internal/shared/async"
	"github.com/minekarta/auctionhouse/internal/shared/gameloop"
)

type memoryRepo struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*domain.Listing
	archived map[uuid.UUID]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		rows:     make(map[uuid.UUID]*domain.Listing),
		archived: make(map[uuid.UUID]string),
	}
}

func (r *memoryRepo) LoadAllActive(ctx context.Context) ([]*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Listing
	for _, l := range r.rows {
		out = append(out, l.Clone())
	}
	return out, nil
}

func (r *memoryRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.rows[id]; ok {
		return l.Clone(), nil
	}
	return nil, domain.ErrListingNotFound
}

func (r *memoryRepo) Upsert(ctx context.Context, l *domain.Listing, expectedVersion int64, deliveries ...*domain.MailboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if expectedVersion > 0 {
		existing, ok := r.rows[l.ID]
		if !ok || existing.Version != expectedVersion {
			return domain.ErrConcurrentModification
		}
	}
	r.rows[l.ID] = l.Clone()
	return nil
}

func (r *memoryRepo) Archive(ctx context.Context, l *domain.Listing, closedReason string, closedAt time.Time, deliveries ...*domain.MailboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, l.ID)
	r.archived[l.ID] = closedReason
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *memoryRepo) archivedReason(id uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.archived[id]
}

type noMailbox struct{}

func (noMailbox) ListUnclaimed(ctx context.Context, owner uuid.UUID) ([]*domain.MailboxEntry, error) {
	return nil, nil
}

func (noMailbox) ClaimAll(ctx context.Context, owner uuid.UUID, at time.Time) ([]*domain.MailboxEntry, error) {
	return nil, nil
}

func (noMailbox) Unclaim(ctx context.Context, ids []uuid.UUID) error {
	return nil
}

func TestSweepSettlesAndPaysOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	loop := gameloop.New(32)
	go loop.Run(ctx)
	pool := async.NewPool(2, 16)
	t.Cleanup(pool.Shutdown)

	repo := newMemoryRepo()
	funds := economy.NewMemoryEconomy()
	coord := application.NewCoordinator(
		domain.NewLedger(), repo, noMailbox{}, funds, loop, pool, nil,
		application.Config{
			MinPrice:            1,
			DefaultMinIncrement: 5,
			DefaultDuration:     time.Hour,
			MaxDuration:         24 * time.Hour,
			OpTimeout:           2 * time.Second,
		},
	)

	seller, bidder := uuid.New(), uuid.New()
	funds.Deposit(bidder, 200)

	res := <-coord.List(application.ListRequest{
		Seller:      seller,
		ItemPayload: "short-lived",
		Price:       domain.Price{Kind: domain.PriceBidding, Starting: 100, MinIncrement: 5},
		Duration:    50 * time.Millisecond,
	})
	require.NoError(t, res.Err)
	id := res.ListingID
	require.NoError(t, (<-coord.PlaceBid(application.BidRequest{ListingID: id, Bidder: bidder, Amount: 120})).Err)

	time.Sleep(100 * time.Millisecond)

	expirer := New(coord, time.Minute)
	expirer.Sweep(time.Now())

	assert.Equal(t, "sold", repo.archivedReason(id))
	assert.Empty(t, coord.AwaitingPayout())

	balance, err := funds.Balance(context.Background(), seller)
	require.NoError(t, err)
	assert.Equal(t, 120.0, balance)
}

func TestSweepWithNothingDueIsQuiet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	loop := gameloop.New(32)
	go loop.Run(ctx)
	pool := async.NewPool(1, 8)
	t.Cleanup(pool.Shutdown)

	coord := application.NewCoordinator(
		domain.NewLedger(), newMemoryRepo(), noMailbox{}, economy.NewMemoryEconomy(), loop, pool, nil,
		application.Config{
			MinPrice:            1,
			DefaultMinIncrement: 5,
			DefaultDuration:     time.Hour,
			MaxDuration:         24 * time.Hour,
		},
	)

	res := <-coord.List(application.ListRequest{
		Seller:      uuid.New(),
		ItemPayload: "long-lived",
		Price:       domain.Price{Kind: domain.PriceFixed, BuyNow: 10},
	})
	require.NoError(t, res.Err)

	New(coord, time.Minute).Sweep(time.Now())
	assert.Empty(t, coord.AwaitingPayout())
	assert.NotEmpty(t, coord.DueForSettlement(time.Now().Add(2*time.Hour)))
}
