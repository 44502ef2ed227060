package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minekarta/auctionhouse/internal/auction/domain"
)

type CancelRequest struct {
	ListingID uuid.UUID
	Requester uuid.UUID
}

// Cancel withdraws an ACTIVE listing with no bids. The item goes back to the
// seller's mailbox through the payout path, so cancellation shares the same
// consistency contract as every other settlement.
func (c *Coordinator) Cancel(req CancelRequest) <-chan Result {
	out := make(chan Result, 1)
	c.loop.Post(func() { c.cancel(req, out, false) })
	return out
}

func (c *Coordinator) cancel(req CancelRequest, out chan Result, retried bool) {
	snapshot, err := c.ledger.Get(req.ListingID)
	if err != nil {
		out <- Result{Err: err}
		return
	}
	if c.busy(req.ListingID) {
		out <- Result{Err: domain.ErrItemNotAvailable}
		return
	}
	if err := c.ledger.Mutate(req.ListingID, func(l *domain.Listing) error {
		if req.Requester != l.SellerID {
			return domain.ErrNotListingOwner
		}
		if l.State != domain.StateActive {
			return domain.ErrItemNotAvailable
		}
		return l.MarkCancelled()
	}); err != nil {
		out <- Result{Err: err}
		return
	}

	updated, _ := c.ledger.Get(req.ListingID)
	txID := c.begin(req.ListingID)

	c.dispatch(txID, func(ctx context.Context) error {
		return c.repo.Upsert(ctx, updated, snapshot.Version)
	}, func(err error) {
		if err == nil {
			log.Info("listing cancelled", zap.String("listingID", req.ListingID.String()))
			c.notifier.ListingEvent(Event{
				Type:      EventCancelled,
				ListingID: updated.ID,
				SellerID:  updated.SellerID,
				State:     updated.State,
			})
			c.resolve(out, txID, Result{ListingID: req.ListingID})
			return
		}
		c.ledger.Restore(snapshot)
		if errors.Is(err, domain.ErrConcurrentModification) && !retried {
			c.recoverAndRetry(req.ListingID, txID, func() { c.cancel(req, out, true) })
			return
		}
		c.resolve(out, txID, Result{Err: err})
	})
}

// SettleExpired transitions an expired ACTIVE listing to SOLD (bid present,
// highest bidder wins) or EXPIRED_UNCLAIMED (no bid). Settling a listing that
// already settled is a no-op reporting success, so sweeps are idempotent.
func (c *Coordinator) SettleExpired(id uuid.UUID) <-chan Result {
	out := make(chan Result, 1)
	c.loop.Post(func() { c.settleExpired(id, out, false) })
	return out
}

func (c *Coordinator) settleExpired(id uuid.UUID, out chan Result, retried bool) {
	snapshot, err := c.ledger.Get(id)
	if err != nil {
		out <- Result{Err: err}
		return
	}
	if snapshot.IsTerminal() || snapshot.AwaitingPayout() {
		out <- Result{ListingID: id}
		return
	}
	if c.busy(id) {
		out <- Result{Err: domain.ErrItemNotAvailable}
		return
	}
	now := c.clock()
	if snapshot.ExpiresAt.After(now) {
		// not due yet; the scheduler will come back
		out <- Result{ListingID: id}
		return
	}
	if err := c.ledger.Mutate(id, func(l *domain.Listing) error {
		if l.CurrentBid != nil {
			return l.MarkSoldToHighestBidder()
		}
		return l.MarkExpiredUnclaimed()
	}); err != nil {
		out <- Result{Err: err}
		return
	}

	updated, _ := c.ledger.Get(id)
	txID := c.begin(id)

	c.dispatch(txID, func(ctx context.Context) error {
		return c.repo.Upsert(ctx, updated, snapshot.Version)
	}, func(err error) {
		if err == nil {
			evtType := EventExpired
			if updated.State == domain.StateSold {
				evtType = EventSold
			}
			log.Info("listing settled",
				zap.String("listingID", id.String()),
				zap.String("state", string(updated.State)),
			)
			evt := Event{
				Type:      evtType,
				ListingID: updated.ID,
				SellerID:  updated.SellerID,
				State:     updated.State,
				Amount:    updated.LeadingAmount(),
			}
			if updated.CurrentBid != nil {
				evt.Bidder = updated.CurrentBid.Bidder
			}
			c.notifier.ListingEvent(evt)
			c.resolve(out, txID, Result{ListingID: id})
			return
		}
		c.ledger.Restore(snapshot)
		if errors.Is(err, domain.ErrConcurrentModification) && !retried {
			c.recoverAndRetry(id, txID, func() { c.settleExpired(id, out, true) })
			return
		}
		c.resolve(out, txID, Result{Err: err})
	})
}

// Payout completes a settled listing: escrowed proceeds move to the seller,
// the item is delivered to whoever holds the claim, and the row is archived to
// history. Paying out an already PAID_OUT listing reports success without
// re-running anything.
func (c *Coordinator) Payout(id uuid.UUID) <-chan Result {
	out := make(chan Result, 1)
	c.loop.Post(func() { c.payout(id, out) })
	return out
}

func (c *Coordinator) payout(id uuid.UUID, out chan Result) {
	snapshot, err := c.ledger.Get(id)
	if err != nil {
		out <- Result{Err: err}
		return
	}
	if snapshot.IsTerminal() {
		out <- Result{ListingID: id}
		return
	}
	if c.busy(id) {
		out <- Result{Err: domain.ErrItemNotAvailable}
		return
	}
	if err := c.ledger.Mutate(id, func(l *domain.Listing) error {
		return l.MarkPaidOut()
	}); err != nil {
		out <- Result{Err: err}
		return
	}

	updated, _ := c.ledger.Get(id)
	txID := c.begin(id)
	now := c.clock()

	var (
		deliveries   []*domain.MailboxEntry
		proceeds     float64
		closedReason string
	)
	switch snapshot.State {
	case domain.StateSold:
		closedReason = "sold"
		winner := snapshot.CurrentBid.Bidder
		deliveries = append(deliveries, domain.NewItemDelivery(
			winner, snapshot.ItemPayload,
			fmt.Sprintf("won listing %s", snapshot.ID), now))
		if snapshot.Price.Kind == domain.PriceBidding {
			// bid funds were escrowed; buy-now paid the seller directly
			proceeds = snapshot.CurrentBid.Amount
		}
	case domain.StateExpiredUnclaimed:
		closedReason = "expired_unclaimed"
		deliveries = append(deliveries, domain.NewItemDelivery(
			snapshot.SellerID, snapshot.ItemPayload,
			fmt.Sprintf("listing %s expired without bids", snapshot.ID), now))
	case domain.StateCancelled:
		closedReason = "cancelled"
		deliveries = append(deliveries, domain.NewItemDelivery(
			snapshot.SellerID, snapshot.ItemPayload,
			fmt.Sprintf("listing %s cancelled", snapshot.ID), now))
	}

	transferred := false
	c.dispatch(txID, func(ctx context.Context) error {
		if proceeds > 0 {
			if err := c.economy.Transfer(ctx, domain.SystemAccount, snapshot.SellerID, proceeds,
				fmt.Sprintf("proceeds of listing %s", id)); err != nil {
				return err
			}
			transferred = true
		}
		return c.repo.Archive(ctx, updated, closedReason, now, deliveries...)
	}, func(err error) {
		if err == nil {
			c.ledger.Remove(id)
			log.Info("listing paid out",
				zap.String("listingID", id.String()),
				zap.String("closedReason", closedReason),
				zap.Float64("proceeds", proceeds),
			)
			c.notifier.ListingEvent(Event{
				Type:      EventPaidOut,
				ListingID: updated.ID,
				SellerID:  updated.SellerID,
				State:     updated.State,
				Amount:    proceeds,
			})
			c.resolve(out, txID, Result{ListingID: id})
			return
		}
		c.ledger.Restore(snapshot)
		if transferred {
			c.refund(snapshot.SellerID, domain.SystemAccount, proceeds, "reversal of failed payout")
		}
		c.resolve(out, txID, Result{Err: err})
	})
}

// MailboxEntries lists what is waiting for the player without claiming it.
func (c *Coordinator) MailboxEntries(player uuid.UUID) <-chan Result {
	out := make(chan Result, 1)
	c.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.OpTimeout)
		defer cancel()
		entries, err := c.mailbox.ListUnclaimed(ctx, player)
		out <- Result{Entries: entries, Err: err}
	})
	return out
}

// ClaimMailbox hands a player everything waiting in their mailbox: fund
// entries are paid out of the system account as one transfer, and the claimed
// entries (items included) are returned for the caller to deliver in-game.
// Claim-then-pay: entries are atomically marked claimed first, and the
// transfer covers only what this call actually claimed, so concurrent claims
// can never pay the same entry twice.
func (c *Coordinator) ClaimMailbox(player uuid.UUID) <-chan Result {
	out := make(chan Result, 1)
	c.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.OpTimeout)
		defer cancel()
		out <- c.claimMailbox(ctx, player)
	})
	return out
}

func (c *Coordinator) claimMailbox(ctx context.Context, player uuid.UUID) Result {
	entries, err := c.mailbox.ClaimAll(ctx, player, time.Now())
	if err != nil {
		return Result{Err: err}
	}
	if len(entries) == 0 {
		return Result{}
	}
	var funds float64
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
		if e.Kind == domain.MailboxFunds {
			funds += e.Amount
		}
	}
	if funds > 0 {
		if err := c.economy.Transfer(ctx, domain.SystemAccount, player, funds,
			"mailbox claim"); err != nil {
			// put the entries back so a later claim retries them; if even
			// that fails the entries stay claimed-but-unpaid and need
			// operator attention
			if uerr := c.mailbox.Unclaim(ctx, ids); uerr != nil {
				log.Error("unclaim after failed mailbox payout failed",
					zap.String("playerID", player.String()),
					zap.Float64("funds", funds),
					zap.Error(uerr),
				)
			}
			return Result{Err: err}
		}
	}
	log.Info("mailbox claimed",
		zap.String("playerID", player.String()),
		zap.Int("entries", len(entries)),
		zap.Float64("funds", funds),
	)
	return Result{Entries: entries}
}
