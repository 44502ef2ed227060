package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minekarta/auctionhouse/internal/auction/domain"
	"github.com/minekarta/auctionhouse/internal/shared/async"
	"github.com/minekarta/auctionhouse/internal/shared/gameloop"
	"github.com/minekarta/auctionhouse/internal/shared/logger"
)

var log = logger.GetLogger()

// Result is the final outcome of a coordinator operation, delivered on the
// channel the operation returned once the durable side has settled.
type Result struct {
	ListingID uuid.UUID
	Entries   []*domain.MailboxEntry
	Err       error
}

// Config is the coordinator's tuning surface.
type Config struct {
	MinPrice             float64
	DefaultMinIncrement  float64
	DefaultDuration      time.Duration
	MaxDuration          time.Duration
	MaxListingsPerSeller int
	OpTimeout            time.Duration
}

// Coordinator is the only entry point for operations that change money, items
// or listing state. Each operation follows the same protocol: validate against
// the ledger, apply the in-memory mutation (the commit point), hand the
// durable write and any economy transfer to the worker pool, and compensate
// the ledger if the durable side fails.
//
// Public methods may be called from any goroutine; they post onto the
// authoritative loop and return a buffered channel that receives exactly one
// Result.
type Coordinator struct {
	ledger   *domain.Ledger
	repo     domain.ListingRepository
	mailbox  domain.MailboxRepository
	economy  domain.EconomyService
	loop     *gameloop.Loop
	pool     *async.Pool
	notifier Notifier
	cfg      Config
	clock    func() time.Time

	// transaction registry, touched only from the loop. A listing with an
	// in-flight durable write rejects new transactions, and completions
	// arriving for an already-finished transaction are discarded instead of
	// reapplied.
	inFlight map[uuid.UUID]uuid.UUID // listing id -> transaction id
	txns     map[uuid.UUID]uuid.UUID // transaction id -> listing id
}

func NewCoordinator(
	ledger *domain.Ledger,
	repo domain.ListingRepository,
	mailbox domain.MailboxRepository,
	economy domain.EconomyService,
	loop *gameloop.Loop,
	pool *async.Pool,
	notifier Notifier,
	cfg Config,
) *Coordinator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 10 * time.Second
	}
	return &Coordinator{
		ledger:   ledger,
		repo:     repo,
		mailbox:  mailbox,
		economy:  economy,
		loop:     loop,
		pool:     pool,
		notifier: notifier,
		cfg:      cfg,
		clock:    time.Now,
		inFlight: make(map[uuid.UUID]uuid.UUID),
		txns:     make(map[uuid.UUID]uuid.UUID),
	}
}

// Rehydrate loads every live row into the ledger. Called once at startup,
// before the loop begins; listings that settled or expired while the process
// was down are picked up by the first scheduler sweep.
func (c *Coordinator) Rehydrate(ctx context.Context) error {
	listings, err := c.repo.LoadAllActive(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate ledger: %w", err)
	}
	for _, l := range listings {
		if err := c.ledger.Insert(l); err != nil {
			return fmt.Errorf("rehydrate listing %s: %w", l.ID, err)
		}
	}
	log.Info("ledger rehydrated", zap.Int("listings", len(listings)))
	return nil
}

// DueForSettlement snapshots ids of ACTIVE listings expired at cutoff.
// Safe to call from any goroutine.
func (c *Coordinator) DueForSettlement(cutoff time.Time) []uuid.UUID {
	var ids []uuid.UUID
	c.loop.Call(func() {
		ids = c.ledger.SnapshotActiveExpiringBefore(cutoff)
	})
	return ids
}

// AwaitingPayout snapshots ids of settled listings whose payout has not been
// recorded yet. Safe to call from any goroutine.
func (c *Coordinator) AwaitingPayout() []uuid.UUID {
	var ids []uuid.UUID
	c.loop.Call(func() {
		ids = c.ledger.SnapshotAwaitingPayout()
	})
	return ids
}

// ListRequest describes a new listing. Duration zero means the configured
// default.
type ListRequest struct {
	Seller      uuid.UUID
	ItemPayload string
	Price       domain.Price
	Duration    time.Duration
}

// List creates a listing: ledger insert first, durable insert async, full
// rollback if the durable side never confirms.
func (c *Coordinator) List(req ListRequest) <-chan Result {
	out := make(chan Result, 1)
	c.loop.Post(func() { c.list(req, out) })
	return out
}

func (c *Coordinator) list(req ListRequest, out chan Result) {
	if strings.TrimSpace(req.ItemPayload) == "" {
		out <- Result{Err: domain.ErrInvalidItemPayload}
		return
	}
	price := req.Price
	if price.Kind == domain.PriceBidding && price.MinIncrement == 0 {
		price.MinIncrement = c.cfg.DefaultMinIncrement
	}
	if err := price.Validate(c.cfg.MinPrice); err != nil {
		out <- Result{Err: err}
		return
	}
	duration := req.Duration
	if duration == 0 {
		duration = c.cfg.DefaultDuration
	}
	if duration <= 0 || duration > c.cfg.MaxDuration {
		out <- Result{Err: domain.ErrInvalidDuration}
		return
	}
	if c.cfg.MaxListingsPerSeller > 0 && c.ledger.CountActiveBySeller(req.Seller) >= c.cfg.MaxListingsPerSeller {
		out <- Result{Err: domain.ErrListingLimitReached}
		return
	}

	listing := domain.NewListing(req.Seller, req.ItemPayload, price, c.clock(), duration)
	if err := c.ledger.Insert(listing); err != nil {
		out <- Result{Err: err}
		return
	}
	txID := c.begin(listing.ID)
	row := listing.Clone()

	c.dispatch(txID, func(ctx context.Context) error {
		return c.repo.Upsert(ctx, row, 0)
	}, func(err error) {
		if err != nil {
			c.ledger.Remove(listing.ID)
			log.Error("listing create failed, ledger rolled back",
				zap.String("listingID", listing.ID.String()),
				zap.String("sellerID", req.Seller.String()),
				zap.Error(err),
			)
			c.resolve(out, txID, Result{ListingID: listing.ID, Err: err})
			return
		}
		log.Info("listing created",
			zap.String("listingID", listing.ID.String()),
			zap.String("sellerID", req.Seller.String()),
			zap.Time("expiresAt", listing.ExpiresAt),
		)
		c.notifier.ListingEvent(Event{
			Type:      EventListed,
			ListingID: listing.ID,
			SellerID:  listing.SellerID,
			State:     domain.StateActive,
			Amount:    listing.LeadingAmount(),
		})
		c.resolve(out, txID, Result{ListingID: listing.ID})
	})
}

// begin registers a transaction for the listing. Callers must have checked
// busy() first; a fresh uuid never collides.
func (c *Coordinator) begin(listingID uuid.UUID) uuid.UUID {
	txID := uuid.New()
	c.inFlight[listingID] = txID
	c.txns[txID] = listingID
	return txID
}

func (c *Coordinator) busy(listingID uuid.UUID) bool {
	_, ok := c.inFlight[listingID]
	return ok
}

func (c *Coordinator) finish(txID uuid.UUID) {
	if listingID, ok := c.txns[txID]; ok {
		delete(c.inFlight, listingID)
		delete(c.txns, txID)
	}
}

func (c *Coordinator) alive(txID uuid.UUID) bool {
	_, ok := c.txns[txID]
	return ok
}

func (c *Coordinator) resolve(out chan Result, txID uuid.UUID, res Result) {
	c.finish(txID)
	out <- res
}

// dispatch runs job on the worker pool and marshals its completion back onto
// the loop. Completions for transactions that were finished in the meantime
// (e.g. rolled back) are discarded rather than reapplied.
func (c *Coordinator) dispatch(txID uuid.UUID, job func(context.Context) error, complete func(error)) {
	c.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.OpTimeout)
		defer cancel()
		err := job(ctx)
		c.loop.Post(func() {
			if !c.alive(txID) {
				log.Warn("discarding late completion for finished transaction",
					zap.String("txID", txID.String()), zap.Error(err))
				return
			}
			complete(err)
		})
	})
}

// refund returns escrowed or debited funds outside any transaction, as
// compensation after a durable failure. Failure here is logged loudly; the
// funds sit in the source account and need operator attention.
func (c *Coordinator) refund(from, to uuid.UUID, amount float64, reason string) {
	c.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.OpTimeout)
		defer cancel()
		if err := c.economy.Transfer(ctx, from, to, amount, reason); err != nil {
			log.Error("compensating transfer failed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
				zap.Float64("amount", amount),
				zap.String("reason", reason),
				zap.Error(err),
			)
		}
	})
}

// recoverAndRetry handles a version mismatch against the durable store: the
// row is re-read, the ledger is reconciled with it, and the whole transaction
// is re-run exactly once before the error surfaces to the caller.
func (c *Coordinator) recoverAndRetry(listingID, txID uuid.UUID, redo func()) {
	var row *domain.Listing
	c.dispatch(txID, func(ctx context.Context) error {
		found, err := c.repo.FindByID(ctx, listingID)
		if err != nil {
			return err
		}
		row = found
		return nil
	}, func(err error) {
		c.finish(txID)
		switch {
		case err == nil:
			c.ledger.Restore(row)
		case isNotFound(err):
			// a concurrent writer archived or deleted the row
			c.ledger.Remove(listingID)
		default:
			log.Error("re-read after version conflict failed",
				zap.String("listingID", listingID.String()), zap.Error(err))
		}
		redo()
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrListingNotFound)
}
