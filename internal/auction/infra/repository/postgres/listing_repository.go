package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/minekarta/auctionhouse/internal/auction/domain"
	"github.com/minekarta/auctionhouse/internal/shared/logger"
)

var log = logger.GetLogger()

// ListingRepository implements domain.ListingRepository on top of a pooled
// postgres connection. Transient failures are retried with exponential backoff
// up to maxRetries; exhaustion surfaces domain.ErrDurablePersistence, version
// mismatches surface domain.ErrConcurrentModification without retrying.
type ListingRepository struct {
	pool       *pgxpool.Pool
	maxRetries uint64
}

func NewListingRepository(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{pool: pool, maxRetries: 4}
}

// withRetry wraps a durable operation in the bounded retry policy. Operations
// mark non-retryable outcomes with backoff.Permanent.
func withRetry(ctx context.Context, name string, maxRetries uint64, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		opErr := op()
		if opErr != nil && !isPermanent(opErr) {
			log.Warn("durable operation failed, will retry",
				zap.String("op", name),
				zap.Int("attempt", attempt),
				zap.Error(opErr),
			)
		}
		return opErr
	}, policy)
	if err == nil {
		return nil
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return perm.err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrDurablePersistence, name, err)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return backoff.Permanent(&permanentError{err: err})
}

func isPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}

// LoadAllActive returns every live (not yet archived) listing. Used once at
// startup to rehydrate the ledger; rows that settled before a crash come back
// too so their payout can finish.
func (r *ListingRepository) LoadAllActive(ctx context.Context) ([]*domain.Listing, error) {
	query := `
        SELECT id, seller_id, item_payload, price_json, bid_json, created_at, expires_at, state, version
        FROM listings
        ORDER BY expires_at ASC
    `
	var listings []*domain.Listing
	err := withRetry(ctx, "loadAllActive", r.maxRetries, func() error {
		rows, err := r.pool.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		listings = listings[:0]
		for rows.Next() {
			l, err := scanListing(rows)
			if err != nil {
				return permanent(err)
			}
			listings = append(listings, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *ListingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	query := `
        SELECT id, seller_id, item_payload, price_json, bid_json, created_at, expires_at, state, version
        FROM listings
        WHERE id = $1
    `
	var listing *domain.Listing
	err := withRetry(ctx, "findByID", r.maxRetries, func() error {
		l, err := scanListing(r.pool.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return permanent(domain.ErrListingNotFound)
			}
			return err
		}
		listing = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// Upsert writes the row iff the stored version matches expectedVersion
// (0 for a brand-new listing). Any mailbox deliveries ride in the same
// database transaction, so a recorded state change and its deliveries are
// never observed apart. A version mismatch, or an update against a row another
// writer already archived, means someone got there first:
// domain.ErrConcurrentModification, no retry.
func (r *ListingRepository) Upsert(ctx context.Context, l *domain.Listing, expectedVersion int64, deliveries ...*domain.MailboxEntry) error {
	insert := `
        INSERT INTO listings (id, seller_id, item_payload, price_json, bid_json, created_at, expires_at, state, version)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	update := `
        UPDATE listings
        SET bid_json = $1, state = $2, version = $3
        WHERE id = $4 AND version = $5
    `
	priceJSON, bidJSON, err := encodeListing(l)
	if err != nil {
		return err
	}
	return withRetry(ctx, "upsert", r.maxRetries, func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if expectedVersion == 0 {
			if _, err := tx.Exec(ctx, insert,
				l.ID, l.SellerID, l.ItemPayload, priceJSON, bidJSON,
				l.CreatedAt, l.ExpiresAt, l.State, l.Version,
			); err != nil {
				return err
			}
		} else {
			tag, err := tx.Exec(ctx, update, bidJSON, l.State, l.Version, l.ID, expectedVersion)
			if err != nil {
				return err
			}
			// zero rows: version moved on, or the row was archived. Either
			// way the caller must re-read before touching it again.
			if tag.RowsAffected() == 0 {
				return permanent(fmt.Errorf("%w: listing %s expected version %d",
					domain.ErrConcurrentModification, l.ID, expectedVersion))
			}
		}
		if err := insertDeliveries(ctx, tx, deliveries); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// Archive moves a terminal listing into listing_history and removes the live
// row, one transaction, deliveries included.
func (r *ListingRepository) Archive(ctx context.Context, l *domain.Listing, closedReason string, closedAt time.Time, deliveries ...*domain.MailboxEntry) error {
	insertHistory := `
        INSERT INTO listing_history (id, seller_id, item_payload, price_json, bid_json, created_at, expires_at, state, version, closed_at, closed_reason)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (id) DO NOTHING
    `
	priceJSON, bidJSON, err := encodeListing(l)
	if err != nil {
		return err
	}
	return withRetry(ctx, "archive", r.maxRetries, func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, insertHistory,
			l.ID, l.SellerID, l.ItemPayload, priceJSON, bidJSON,
			l.CreatedAt, l.ExpiresAt, l.State, l.Version, closedAt, closedReason,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM listings WHERE id = $1`, l.ID); err != nil {
			return err
		}
		if err := insertDeliveries(ctx, tx, deliveries); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

func (r *ListingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return withRetry(ctx, "delete", r.maxRetries, func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
		return err
	})
}

func insertDeliveries(ctx context.Context, tx pgx.Tx, deliveries []*domain.MailboxEntry) error {
	query := `
        INSERT INTO mailbox (id, owner_id, kind, item_payload, amount, reason, created_at, claimed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	for _, d := range deliveries {
		if _, err := tx.Exec(ctx, query,
			d.ID, d.OwnerID, d.Kind, d.ItemPayload, d.Amount, d.Reason, d.CreatedAt, d.ClaimedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

func encodeListing(l *domain.Listing) ([]byte, []byte, error) {
	priceJSON, err := json.Marshal(l.Price)
	if err != nil {
		return nil, nil, fmt.Errorf("encode price: %w", err)
	}
	var bidJSON []byte
	if l.CurrentBid != nil {
		bidJSON, err = json.Marshal(l.CurrentBid)
		if err != nil {
			return nil, nil, fmt.Errorf("encode bid: %w", err)
		}
	}
	return priceJSON, bidJSON, nil
}

func scanListing(row pgx.Row) (*domain.Listing, error) {
	l := &domain.Listing{}
	var priceJSON, bidJSON []byte
	err := row.Scan(
		&l.ID,
		&l.SellerID,
		&l.ItemPayload,
		&priceJSON,
		&bidJSON,
		&l.CreatedAt,
		&l.ExpiresAt,
		&l.State,
		&l.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(priceJSON, &l.Price); err != nil {
		return nil, fmt.Errorf("decode price for listing %s: %w", l.ID, err)
	}
	if len(bidJSON) > 0 {
		bid := &domain.Bid{}
		if err := json.Unmarshal(bidJSON, bid); err != nil {
			return nil, fmt.Errorf("decode bid for listing %s: %w", l.ID, err)
		}
		l.CurrentBid = bid
	}
	return l, nil
}
