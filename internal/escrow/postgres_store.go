package escrow

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists escrow transactions in PostgreSQL.
//
// The listing-level "one active hold" invariant is enforced by a partial
// unique index on (listing_id) WHERE payment_status = 'held', and session
// idempotency by a unique index on session_id; both surface here as
// unique-violation errors mapped to the package sentinels. Transitions are
// conditional UPDATEs guarded on the current status, so a lost race shows
// up as zero affected rows rather than a double write.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const txColumns = `id, listing_id, buyer_id, seller_id, amount_cents, fee_cents,
	       session_id, payment_intent_id, payment_status, seller_confirmed_at,
	       admin_review, created_at, resolved_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO escrow_transactions (
			id, listing_id, buyer_id, seller_id, amount_cents, fee_cents,
			session_id, payment_intent_id, payment_status, seller_confirmed_at,
			admin_review, created_at, resolved_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14
		)`,
		tx.ID, tx.ListingID, tx.BuyerID, tx.SellerID, tx.AmountCents, tx.FeeCents,
		tx.SessionID, tx.PaymentIntentID, string(tx.Status), nullTime(tx.SellerConfirmedAt),
		tx.AdminReview, tx.CreatedAt, nullTime(tx.ResolvedAt), tx.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			if strings.Contains(pqErr.Constraint, "session") {
				return ErrSessionAlreadyConsumed
			}
			return ErrListingUnavailable
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM escrow_transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (p *PostgresStore) GetBySession(ctx context.Context, sessionID string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM escrow_transactions WHERE session_id = $1`, sessionID)
	return scanTransaction(row)
}

func (p *PostgresStore) GetForListing(ctx context.Context, listingID, userID string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+txColumns+`
		FROM escrow_transactions
		WHERE listing_id = $1
		  AND (buyer_id = $2 OR seller_id = $2)
		ORDER BY CASE payment_status
			WHEN 'held' THEN 0
			WHEN 'disputed' THEN 1
			ELSE 2
		END, created_at DESC
		LIMIT 1`, listingID, userID)
	return scanTransaction(row)
}

func (p *PostgresStore) ActiveForListing(ctx context.Context, listingID string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+txColumns+`
		FROM escrow_transactions
		WHERE listing_id = $1 AND payment_status = 'held'`, listingID)
	return scanTransaction(row)
}

func (p *PostgresStore) SetSellerConfirmed(ctx context.Context, id string, at time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE escrow_transactions SET
			seller_confirmed_at = $1, updated_at = $1
		WHERE id = $2
		  AND payment_status = 'held'
		  AND seller_confirmed_at IS NULL`,
		at, id,
	)
	if err != nil {
		return err
	}
	return oneRowOr(result, ErrInvalidState)
}

func (p *PostgresStore) Transition(ctx context.Context, tx *Transaction) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE escrow_transactions SET
			payment_status = $1, admin_review = $2, resolved_at = $3, updated_at = $4
		WHERE id = $5
		  AND payment_status = 'held'`,
		string(tx.Status), tx.AdminReview, nullTime(tx.ResolvedAt), tx.UpdatedAt,
		tx.ID,
	)
	if err != nil {
		return err
	}
	return oneRowOr(result, ErrInvalidState)
}

// oneRowOr returns fallback when the conditional write matched no row,
// meaning a concurrent writer invalidated the transition guard.
func oneRowOr(result sql.Result, fallback error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fallback
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s scanner) (*Transaction, error) {
	tx := &Transaction{}
	var (
		status            string
		sellerConfirmedAt sql.NullTime
		resolvedAt        sql.NullTime
	)

	err := s.Scan(
		&tx.ID, &tx.ListingID, &tx.BuyerID, &tx.SellerID, &tx.AmountCents, &tx.FeeCents,
		&tx.SessionID, &tx.PaymentIntentID, &status, &sellerConfirmedAt,
		&tx.AdminReview, &tx.CreatedAt, &resolvedAt, &tx.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Status = Status(status)
	if sellerConfirmedAt.Valid {
		tx.SellerConfirmedAt = &sellerConfirmedAt.Time
	}
	if resolvedAt.Valid {
		tx.ResolvedAt = &resolvedAt.Time
	}
	return tx, nil
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
