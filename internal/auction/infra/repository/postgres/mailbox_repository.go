package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minekarta/auctionhouse/internal/auction/domain"
)

// MailboxRepository implements domain.MailboxRepository. Entries are inserted
// through ListingRepository so they share the owning transaction; this side
// only reads and claims.
type MailboxRepository struct {
	pool       *pgxpool.Pool
	maxRetries uint64
}

func NewMailboxRepository(pool *pgxpool.Pool) *MailboxRepository {
	return &MailboxRepository{pool: pool, maxRetries: 4}
}

func (r *MailboxRepository) ListUnclaimed(ctx context.Context, owner uuid.UUID) ([]*domain.MailboxEntry, error) {
	query := `
        SELECT id, owner_id, kind, item_payload, amount, reason, created_at, claimed_at
        FROM mailbox
        WHERE owner_id = $1 AND claimed_at IS NULL
        ORDER BY created_at ASC
    `
	var entries []*domain.MailboxEntry
	err := withRetry(ctx, "listUnclaimed", r.maxRetries, func() error {
		rows, err := r.pool.Query(ctx, query, owner)
		if err != nil {
			return err
		}
		defer rows.Close()

		entries = entries[:0]
		for rows.Next() {
			e := &domain.MailboxEntry{}
			var payload *string
			if err := rows.Scan(&e.ID, &e.OwnerID, &e.Kind, &payload, &e.Amount, &e.Reason, &e.CreatedAt, &e.ClaimedAt); err != nil {
				return permanent(err)
			}
			if payload != nil {
				e.ItemPayload = *payload
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ClaimAll marks and returns the owner's unclaimed entries in one statement.
// The claimed_at guard makes concurrent claims disjoint: each entry is
// returned to exactly one caller.
func (r *MailboxRepository) ClaimAll(ctx context.Context, owner uuid.UUID, at time.Time) ([]*domain.MailboxEntry, error) {
	query := `
        UPDATE mailbox
        SET claimed_at = $1
        WHERE owner_id = $2 AND claimed_at IS NULL
        RETURNING id, owner_id, kind, item_payload, amount, reason, created_at, claimed_at
    `
	var entries []*domain.MailboxEntry
	err := withRetry(ctx, "claimAll", r.maxRetries, func() error {
		rows, err := r.pool.Query(ctx, query, at, owner)
		if err != nil {
			return err
		}
		defer rows.Close()

		entries = entries[:0]
		for rows.Next() {
			e := &domain.MailboxEntry{}
			var payload *string
			if err := rows.Scan(&e.ID, &e.OwnerID, &e.Kind, &payload, &e.Amount, &e.Reason, &e.CreatedAt, &e.ClaimedAt); err != nil {
				return permanent(err)
			}
			if payload != nil {
				e.ItemPayload = *payload
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Unclaim puts entries back after a failed payout so a later claim retries them.
func (r *MailboxRepository) Unclaim(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return withRetry(ctx, "unclaim", r.maxRetries, func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE mailbox SET claimed_at = NULL WHERE id = ANY($1)`,
			ids,
		)
		return err
	})
}
