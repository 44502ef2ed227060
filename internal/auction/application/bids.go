package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minekarta/auctionhouse/internal/auction/domain"
)

type BidRequest struct {
	ListingID uuid.UUID
	Bidder    uuid.UUID
	Amount    float64
}

// PlaceBid escrows the bidder's funds into the system account and records the
// bid. The displaced bidder's refund becomes a mailbox entry written in the
// same durable transaction as the listing row.
func (c *Coordinator) PlaceBid(req BidRequest) <-chan Result {
	out := make(chan Result, 1)
	c.loop.Post(func() { c.placeBid(req, out, false) })
	return out
}

func (c *Coordinator) placeBid(req BidRequest, out chan Result, retried bool) {
	snapshot, err := c.ledger.Get(req.ListingID)
	if err != nil {
		out <- Result{Err: err}
		return
	}
	if c.busy(req.ListingID) {
		out <- Result{Err: domain.ErrItemNotAvailable}
		return
	}
	now := c.clock()
	if err := c.ledger.Mutate(req.ListingID, func(l *domain.Listing) error {
		return l.ApplyBid(req.Bidder, req.Amount, now)
	}); err != nil {
		var tooLow *domain.BidTooLowError
		if errors.As(err, &tooLow) {
			log.Warn("bid rejected: amount too low",
				zap.String("listingID", req.ListingID.String()),
				zap.String("bidderID", req.Bidder.String()),
				zap.Float64("amount", req.Amount),
				zap.Float64("leading", tooLow.Leading),
			)
		}
		out <- Result{Err: err}
		return
	}

	updated, _ := c.ledger.Get(req.ListingID)
	txID := c.begin(req.ListingID)

	var deliveries []*domain.MailboxEntry
	if prev := snapshot.CurrentBid; prev != nil {
		deliveries = append(deliveries, domain.NewFundsDelivery(
			prev.Bidder, prev.Amount,
			fmt.Sprintf("outbid on listing %s", snapshot.ID), now))
	}

	transferred := false
	c.dispatch(txID, func(ctx context.Context) error {
		if err := c.economy.Transfer(ctx, req.Bidder, domain.SystemAccount, req.Amount,
			fmt.Sprintf("bid escrow for listing %s", req.ListingID)); err != nil {
			return err
		}
		transferred = true
		return c.repo.Upsert(ctx, updated, snapshot.Version, deliveries...)
	}, func(err error) {
		if err == nil {
			log.Info("bid placed",
				zap.String("listingID", req.ListingID.String()),
				zap.String("bidderID", req.Bidder.String()),
				zap.Float64("amount", req.Amount),
			)
			c.notifier.ListingEvent(Event{
				Type:      EventBidPlaced,
				ListingID: updated.ID,
				SellerID:  updated.SellerID,
				State:     updated.State,
				Amount:    req.Amount,
				Bidder:    req.Bidder,
			})
			c.resolve(out, txID, Result{ListingID: req.ListingID})
			return
		}

		c.ledger.Restore(snapshot)
		if transferred {
			c.refund(domain.SystemAccount, req.Bidder, req.Amount, "refund for failed bid")
		}
		if errors.Is(err, domain.ErrConcurrentModification) && !retried {
			c.recoverAndRetry(req.ListingID, txID, func() { c.placeBid(req, out, true) })
			return
		}
		c.resolve(out, txID, Result{Err: err})
	})
}

type BuyRequest struct {
	ListingID uuid.UUID
	Buyer     uuid.UUID
}

// BuyNow purchases a fixed-price listing. The single economy transfer moves
// the buy-now amount buyer to seller; the item itself is delivered to the
// buyer's mailbox by the payout transaction.
func (c *Coordinator) BuyNow(req BuyRequest) <-chan Result {
	out := make(chan Result, 1)
	c.loop.Post(func() { c.buyNow(req, out, false) })
	return out
}

func (c *Coordinator) buyNow(req BuyRequest, out chan Result, retried bool) {
	snapshot, err := c.ledger.Get(req.ListingID)
	if err != nil {
		out <- Result{Err: err}
		return
	}
	if c.busy(req.ListingID) {
		out <- Result{Err: domain.ErrItemNotAvailable}
		return
	}
	now := c.clock()
	if err := c.ledger.Mutate(req.ListingID, func(l *domain.Listing) error {
		if l.State != domain.StateActive {
			return domain.ErrItemNotAvailable
		}
		if l.Price.Kind != domain.PriceFixed {
			return domain.ErrNotBuyable
		}
		if req.Buyer == l.SellerID {
			return domain.ErrOwnListing
		}
		return l.MarkSold(req.Buyer, l.Price.BuyNow, now)
	}); err != nil {
		out <- Result{Err: err}
		return
	}

	updated, _ := c.ledger.Get(req.ListingID)
	txID := c.begin(req.ListingID)
	amount := snapshot.Price.BuyNow

	transferred := false
	c.dispatch(txID, func(ctx context.Context) error {
		if err := c.economy.Transfer(ctx, req.Buyer, snapshot.SellerID, amount,
			fmt.Sprintf("buy-now purchase of listing %s", req.ListingID)); err != nil {
			return err
		}
		transferred = true
		return c.repo.Upsert(ctx, updated, snapshot.Version)
	}, func(err error) {
		if err == nil {
			log.Info("listing bought",
				zap.String("listingID", req.ListingID.String()),
				zap.String("buyerID", req.Buyer.String()),
				zap.Float64("amount", amount),
			)
			c.notifier.ListingEvent(Event{
				Type:      EventSold,
				ListingID: updated.ID,
				SellerID:  updated.SellerID,
				State:     updated.State,
				Amount:    amount,
				Bidder:    req.Buyer,
			})
			c.resolve(out, txID, Result{ListingID: req.ListingID})
			return
		}

		c.ledger.Restore(snapshot)
		if transferred {
			c.refund(snapshot.SellerID, req.Buyer, amount, "refund for failed purchase")
		}
		if errors.Is(err, domain.ErrConcurrentModification) && !retried {
			c.recoverAndRetry(req.ListingID, txID, func() { c.buyNow(req, out, true) })
			return
		}
		c.resolve(out, txID, Result{Err: err})
	})
}
