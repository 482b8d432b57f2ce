package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/preventa/preventa/internal/platform/httpx"
)

// ErrProfileNotFound is returned when the user has no billing projection yet.
var ErrProfileNotFound = fmt.Errorf("billing profile %w", httpx.ErrNotFound)

// Repository persists billing profile projections.
type Repository interface {
	Get(ctx context.Context, userID int64) (*Profile, error)
	UpsertCustomer(ctx context.Context, userID int64, customerID string) error
	SetFiscalCode(ctx context.Context, userID int64, fiscalCode *string) error
	SetPaymentMethod(ctx context.Context, userID int64, paymentMethod *string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, userID int64) (*Profile, error) {
	const q = `
SELECT user_id, stripe_customer_id, is_payment_set, stripe_payment_method, fiscal_code, updated_at
FROM billing_profiles
WHERE user_id = $1`
	var p Profile
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&p.UserID, &p.StripeCustomerID, &p.IsPaymentSet, &p.StripePaymentMethod, &p.FiscalCode, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get billing profile: %w", err)
	}
	return &p, nil
}

func (r *repository) UpsertCustomer(ctx context.Context, userID int64, customerID string) error {
	const q = `
INSERT INTO billing_profiles (user_id, stripe_customer_id, is_payment_set, updated_at)
VALUES ($1, $2, FALSE, NOW())
ON CONFLICT (user_id) DO UPDATE
SET stripe_customer_id = EXCLUDED.stripe_customer_id, updated_at = NOW()`
	if _, err := r.pool.Exec(ctx, q, userID, customerID); err != nil {
		return fmt.Errorf("upsert billing customer: %w", err)
	}
	return nil
}

// SetFiscalCode upserts: the provider may deliver a tax id event before the
// first customer.updated creates the row.
func (r *repository) SetFiscalCode(ctx context.Context, userID int64, fiscalCode *string) error {
	const q = `
INSERT INTO billing_profiles (user_id, stripe_customer_id, is_payment_set, fiscal_code, updated_at)
VALUES ($1, '', FALSE, $2, NOW())
ON CONFLICT (user_id) DO UPDATE
SET fiscal_code = EXCLUDED.fiscal_code, updated_at = NOW()`
	if _, err := r.pool.Exec(ctx, q, userID, fiscalCode); err != nil {
		return fmt.Errorf("set fiscal code: %w", err)
	}
	return nil
}

// SetPaymentMethod upserts for the same reason as SetFiscalCode: event order
// is not guaranteed.
func (r *repository) SetPaymentMethod(ctx context.Context, userID int64, paymentMethod *string) error {
	const q = `
INSERT INTO billing_profiles (user_id, stripe_customer_id, is_payment_set, stripe_payment_method, updated_at)
VALUES ($1, '', ($2 IS NOT NULL), $2, NOW())
ON CONFLICT (user_id) DO UPDATE
SET stripe_payment_method = EXCLUDED.stripe_payment_method,
    is_payment_set = EXCLUDED.is_payment_set,
    updated_at = NOW()`
	if _, err := r.pool.Exec(ctx, q, userID, paymentMethod); err != nil {
		return fmt.Errorf("set payment method: %w", err)
	}
	return nil
}
