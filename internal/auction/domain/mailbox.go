package domain

import (
	"time"

	"github.com/google/uuid"
)

// MailboxKind distinguishes item deliveries from fund deliveries.
type MailboxKind string

const (
	MailboxItem  MailboxKind = "ITEM"
	MailboxFunds MailboxKind = "FUNDS"
)

// MailboxEntry is a durable delivery owned by a player: sold items, reclaimed
// items, outbid refunds and sale proceeds all arrive here instead of touching a
// live inventory. Entries stay until claimed.
type MailboxEntry struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Kind        MailboxKind
	ItemPayload string
	Amount      float64
	Reason      string
	CreatedAt   time.Time
	ClaimedAt   *time.Time
}

func NewItemDelivery(owner uuid.UUID, payload, reason string, now time.Time) *MailboxEntry {
	return &MailboxEntry{
		ID:          uuid.New(),
		OwnerID:     owner,
		Kind:        MailboxItem,
		ItemPayload: payload,
		Reason:      reason,
		CreatedAt:   now,
	}
}

func NewFundsDelivery(owner uuid.UUID, amount float64, reason string, now time.Time) *MailboxEntry {
	return &MailboxEntry{
		ID:        uuid.New(),
		OwnerID:   owner,
		Kind:      MailboxFunds,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: now,
	}
}
