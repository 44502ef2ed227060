package httpapi

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/minekarta/auctionhouse/internal/auction/application"
	"github.com/minekarta/auctionhouse/internal/auction/domain"
)

type handlers struct {
	coordinator *application.Coordinator
	queries     *application.QueryService
}

type createListingRequest struct {
	SellerID        string       `json:"seller_id"`
	ItemPayload     string       `json:"item_payload"`
	Price           domain.Price `json:"price"`
	DurationSeconds int64        `json:"duration_seconds"`
}

func (h *handlers) createListing(c *fiber.Ctx) error {
	var req createListingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	seller, err := uuid.Parse(req.SellerID)
	if err != nil {
		return badRequest(c, "invalid seller_id")
	}
	res := <-h.coordinator.List(application.ListRequest{
		Seller:      seller,
		ItemPayload: req.ItemPayload,
		Price:       req.Price,
		Duration:    time.Duration(req.DurationSeconds) * time.Second,
	})
	if res.Err != nil {
		return domainError(c, res.Err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"listing_id": res.ListingID})
}

type bidRequest struct {
	BidderID string  `json:"bidder_id"`
	Amount   float64 `json:"amount"`
}

func (h *handlers) placeBid(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid listing id")
	}
	var req bidRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	bidder, err := uuid.Parse(req.BidderID)
	if err != nil {
		return badRequest(c, "invalid bidder_id")
	}
	res := <-h.coordinator.PlaceBid(application.BidRequest{
		ListingID: listingID,
		Bidder:    bidder,
		Amount:    req.Amount,
	})
	if res.Err != nil {
		return domainError(c, res.Err)
	}
	return c.JSON(fiber.Map{"listing_id": res.ListingID, "accepted": true})
}

type buyRequest struct {
	BuyerID string `json:"buyer_id"`
}

func (h *handlers) buyNow(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid listing id")
	}
	var req buyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	buyer, err := uuid.Parse(req.BuyerID)
	if err != nil {
		return badRequest(c, "invalid buyer_id")
	}
	res := <-h.coordinator.BuyNow(application.BuyRequest{ListingID: listingID, Buyer: buyer})
	if res.Err != nil {
		return domainError(c, res.Err)
	}
	return c.JSON(fiber.Map{"listing_id": res.ListingID, "sold": true})
}

type cancelRequest struct {
	SellerID string `json:"seller_id"`
}

func (h *handlers) cancel(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid listing id")
	}
	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	seller, err := uuid.Parse(req.SellerID)
	if err != nil {
		return badRequest(c, "invalid seller_id")
	}
	res := <-h.coordinator.Cancel(application.CancelRequest{ListingID: listingID, Requester: seller})
	if res.Err != nil {
		return domainError(c, res.Err)
	}
	return c.JSON(fiber.Map{"listing_id": res.ListingID, "cancelled": true})
}

type mailboxEntryView struct {
	ID          uuid.UUID          `json:"id"`
	Kind        domain.MailboxKind `json:"kind"`
	ItemPayload string             `json:"item_payload,omitempty"`
	Amount      float64            `json:"amount,omitempty"`
	Reason      string             `json:"reason"`
}

func mailboxEntryViews(entries []*domain.MailboxEntry) []mailboxEntryView {
	views := make([]mailboxEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, mailboxEntryView{
			ID:          e.ID,
			Kind:        e.Kind,
			ItemPayload: e.ItemPayload,
			Amount:      e.Amount,
			Reason:      e.Reason,
		})
	}
	return views
}

func (h *handlers) mailboxEntries(c *fiber.Ctx) error {
	player, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid player id")
	}
	res := <-h.coordinator.MailboxEntries(player)
	if res.Err != nil {
		return domainError(c, res.Err)
	}
	return c.JSON(fiber.Map{"entries": mailboxEntryViews(res.Entries)})
}

func (h *handlers) claimMailbox(c *fiber.Ctx) error {
	player, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid player id")
	}
	res := <-h.coordinator.ClaimMailbox(player)
	if res.Err != nil {
		return domainError(c, res.Err)
	}
	return c.JSON(fiber.Map{"entries": mailboxEntryViews(res.Entries)})
}

func (h *handlers) activeListings(c *fiber.Ctx) error {
	return c.JSON(h.queries.ActiveListings())
}

func (h *handlers) listingByID(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid listing id")
	}
	view, err := h.queries.ListingByID(id)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(view)
}

func (h *handlers) listingsBySeller(c *fiber.Ctx) error {
	seller, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid player id")
	}
	return c.JSON(h.queries.ListingsBySeller(seller))
}

func (h *handlers) listingCount(c *fiber.Ctx) error {
	player, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid player id")
	}
	return c.JSON(fiber.Map{"count": h.queries.ActiveListingCountFor(player)})
}

func (h *handlers) topSummary(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"summary":      h.queries.TopListingSummary(),
		"active_count": h.queries.TotalActiveCount(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// domainError maps the coordinator's error taxonomy onto HTTP statuses.
func domainError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var tooLow *domain.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		status = fiber.StatusBadRequest
	case errors.Is(err, domain.ErrListingNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		status = fiber.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotListingOwner), errors.Is(err, domain.ErrOwnListing):
		status = fiber.StatusForbidden
	case errors.Is(err, domain.ErrItemNotAvailable),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrCancelWithBids),
		errors.Is(err, domain.ErrDuplicateListingID):
		status = fiber.StatusConflict
	case errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidItemPayload),
		errors.Is(err, domain.ErrNotBiddable),
		errors.Is(err, domain.ErrNotBuyable),
		errors.Is(err, domain.ErrListingLimitReached):
		status = fiber.StatusBadRequest
	case errors.Is(err, domain.ErrDurablePersistence),
		errors.Is(err, domain.ErrProviderUnavailable):
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
