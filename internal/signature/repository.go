package signature

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/preventa/preventa/internal/platform/db"
)

// Repository defines persistence operations for verifications and approval
// records. MarkVerified and LinkVerificationToApproval take the transaction
// opened by InTx so that consuming a code and linking it commit together.
type Repository interface {
	Create(ctx context.Context, v Verification) error
	Get(ctx context.Context, id uuid.UUID) (*Verification, error)
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
	MarkVerified(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) error
	CreateApproval(ctx context.Context, a Approval) error
	GetApproval(ctx context.Context, id uuid.UUID) (*Approval, error)
	LinkVerificationToApproval(ctx context.Context, tx pgx.Tx, approvalID, verificationID uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Create(ctx context.Context, v Verification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO verifications (id, email, name, otp_code, verified_at, created_at, max_validity_time)
		VALUES ($1, $2, $3, $4, NULL, $5, $6)`,
		v.ID, v.Email, v.Name, v.Code, v.CreatedAt, v.MaxValidityTime)
	return err
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Verification, error) {
	return r.get(ctx, r.pool, id)
}

func (r *repository) get(ctx context.Context, q db.Querier, id uuid.UUID) (*Verification, error) {
	var v Verification
	err := q.QueryRow(ctx, `
		SELECT id, email, name, otp_code, verified_at, created_at, max_validity_time
		FROM verifications WHERE id = $1`, id).
		Scan(&v.ID, &v.Email, &v.Name, &v.Code, &v.VerifiedAt, &v.CreatedAt, &v.MaxValidityTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVerificationNotFound
		}
		return nil, err
	}
	return &v, nil
}

// InTx runs fn inside a single database transaction.
func (r *repository) InTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

// MarkVerified sets verified_at exactly once. The condition carries the
// whole contract: a second call, or a call after expiry, affects no rows
// and is classified by re-reading the record.
func (r *repository) MarkVerified(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE verifications SET verified_at = $2
		WHERE id = $1 AND verified_at IS NULL AND max_validity_time >= $2`,
		id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		v, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if v.Verified() {
			return ErrAlreadyVerified
		}
		return ErrVerificationExpired
	}
	return nil
}

func (r *repository) CreateApproval(ctx context.Context, a Approval) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO budget_approvals (id, budget_id, email, created_at)
		VALUES ($1, $2, $3, $4)`,
		a.ID, a.BudgetID, a.Email, a.CreatedAt)
	return err
}

func (r *repository) GetApproval(ctx context.Context, id uuid.UUID) (*Approval, error) {
	return r.getApproval(ctx, r.pool, id)
}

func (r *repository) getApproval(ctx context.Context, q db.Querier, id uuid.UUID) (*Approval, error) {
	var a Approval
	err := q.QueryRow(ctx, `
		SELECT id, budget_id, email, verification_id, created_at
		FROM budget_approvals WHERE id = $1`, id).
		Scan(&a.ID, &a.BudgetID, &a.Email, &a.VerificationID, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApprovalNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *repository) LinkVerificationToApproval(ctx context.Context, tx pgx.Tx, approvalID, verificationID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE budget_approvals SET verification_id = $2
		WHERE id = $1 AND verification_id IS NULL`,
		approvalID, verificationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.getApproval(ctx, tx, approvalID); err != nil {
			return err
		}
		return ErrAlreadyApproved
	}
	return nil
}
