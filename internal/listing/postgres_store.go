package listing

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists listing data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed listing store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const listingColumns = `id, seller_id, title, price_cents, is_sold,
	       is_boosted, boosted_at, boosted_until, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, l *Listing) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO listings (
			id, seller_id, title, price_cents, is_sold,
			is_boosted, boosted_at, boosted_until, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.SellerID, l.Title, l.PriceCents, l.IsSold,
		l.IsBoosted, nullTime(l.BoostedAt), nullTime(l.BoostedUntil),
		l.CreatedAt, l.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Listing, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)

	l := &Listing{}
	var (
		boostedAt    sql.NullTime
		boostedUntil sql.NullTime
	)
	err := row.Scan(
		&l.ID, &l.SellerID, &l.Title, &l.PriceCents, &l.IsSold,
		&l.IsBoosted, &boostedAt, &boostedUntil, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	if boostedAt.Valid {
		l.BoostedAt = &boostedAt.Time
	}
	if boostedUntil.Valid {
		l.BoostedUntil = &boostedUntil.Time
	}
	return l, nil
}

func (p *PostgresStore) SetBoost(ctx context.Context, id string, at, until time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE listings SET
			is_boosted = TRUE, boosted_at = $1, boosted_until = $2, updated_at = NOW()
		WHERE id = $3`,
		at, until, id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrListingNotFound
	}
	return nil
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
