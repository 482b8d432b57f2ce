package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/preventa/preventa/internal/platform/httpx"
)

var (
	// ErrNotFound indicates a missing budget.
	ErrNotFound = fmt.Errorf("%w: budget", httpx.ErrNotFound)
	// ErrAlreadySigned indicates the budget already carries a verification.
	ErrAlreadySigned = fmt.Errorf("%w: budget already signed", httpx.ErrConflict)
	// ErrPublicIDTaken indicates a public id collision; callers retry with a
	// fresh code.
	ErrPublicIDTaken = fmt.Errorf("%w: public id taken", httpx.ErrConflict)
)

// Repository defines persistence operations for budgets.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Budget, error)
	GetByPublicID(ctx context.Context, publicID string) (*Budget, error)
	List(ctx context.Context, req ListBudgetsRequest) ([]Budget, StatusCounts, error)
	Create(ctx context.Context, b Budget) error
	Save(ctx context.Context, b Budget) error
	SetPublicID(ctx context.Context, id uuid.UUID, publicID string) error
	LinkVerification(ctx context.Context, tx pgx.Tx, budgetID, verificationID uuid.UUID) error
	OwnerEmail(ctx context.Context, budgetID uuid.UUID) (string, error)
	Delete(ctx context.Context, id uuid.UUID, ownerID int64) error
	DeleteByOwner(ctx context.Context, ownerID int64) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const budgetColumns = `id, public_id, user_id, is_template, name, metadata, deadline, verification_id, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Budget, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = $1`, id)
	return scanBudget(row)
}

func (r *repository) GetByPublicID(ctx context.Context, publicID string) (*Budget, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE public_id = $1`, publicID)
	return scanBudget(row)
}

func (r *repository) List(ctx context.Context, req ListBudgetsRequest) ([]Budget, StatusCounts, error) {
	where := `WHERE user_id = $1 AND is_template = $2`
	args := []interface{}{req.UserID, req.Templates}
	argPos := 3

	if req.Status != nil {
		switch *req.Status {
		case StatusSigned:
			where += ` AND verification_id IS NOT NULL`
		case StatusExpired:
			where += ` AND verification_id IS NULL AND deadline IS NOT NULL AND deadline < NOW()`
		case StatusNotExpired:
			where += ` AND verification_id IS NULL AND deadline IS NOT NULL AND deadline >= NOW()`
		}
	}

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE verification_id IS NOT NULL),
		       COUNT(*) FILTER (WHERE verification_id IS NULL AND deadline IS NOT NULL AND deadline < NOW()),
		       COUNT(*) FILTER (WHERE verification_id IS NULL AND deadline IS NOT NULL AND deadline >= NOW())
		FROM budgets WHERE user_id = $1 AND is_template = $2`)
	var counts StatusCounts
	if err := r.pool.QueryRow(ctx, countQuery, req.UserID, req.Templates).Scan(
		&counts.All, &counts.Signed, &counts.Expired, &counts.NotExpired,
	); err != nil {
		return nil, StatusCounts{}, err
	}

	query := fmt.Sprintf(`SELECT %s FROM budgets %s ORDER BY updated_at DESC, id LIMIT $%d OFFSET $%d`,
		budgetColumns, where, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, StatusCounts{}, err
	}
	defer rows.Close()

	var budgets []Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, StatusCounts{}, err
		}
		budgets = append(budgets, *b)
	}
	return budgets, counts, rows.Err()
}

func (r *repository) Create(ctx context.Context, b Budget) error {
	meta, err := json.Marshal(b.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO budgets (id, public_id, user_id, is_template, name, metadata, deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		b.ID, b.PublicID, b.UserID, b.IsTemplate, b.Name, meta, b.Deadline)
	return err
}

// Save overwrites name, deadline and the whole metadata document. Budgets
// that already carry a verification are immutable.
func (r *repository) Save(ctx context.Context, b Budget) error {
	meta, err := json.Marshal(b.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE budgets SET name = $2, metadata = $3, deadline = $4, updated_at = NOW()
		WHERE id = $1 AND verification_id IS NULL`,
		b.ID, b.Name, meta, b.Deadline)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, b.ID); err != nil {
			return err
		}
		return ErrAlreadySigned
	}
	return nil
}

func (r *repository) SetPublicID(ctx context.Context, id uuid.UUID, publicID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE budgets SET public_id = $2, updated_at = NOW() WHERE id = $1 AND public_id IS NULL`,
		id, publicID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrPublicIDTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		// Already shared; keeping the existing code is not an error.
		return nil
	}
	return nil
}

// LinkVerification is the single-writer signature link: a conditional write
// so that of two concurrent signers exactly one wins. It runs on the
// transaction that also consumes the verification code, so a crash between
// the two cannot strand a consumed-but-unlinked code.
func (r *repository) LinkVerification(ctx context.Context, tx pgx.Tx, budgetID, verificationID uuid.UUID) error {
	tag, err := tx.Exec(ctx,
		`UPDATE budgets SET verification_id = $2, updated_at = NOW() WHERE id = $1 AND verification_id IS NULL`,
		budgetID, verificationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := scanBudget(tx.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = $1`, budgetID)); err != nil {
			return err
		}
		return ErrAlreadySigned
	}
	return nil
}

func (r *repository) OwnerEmail(ctx context.Context, budgetID uuid.UUID) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `
		SELECT u.email FROM budgets b JOIN users u ON b.user_id = u.id WHERE b.id = $1`,
		budgetID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return email, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID, ownerID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM budgets WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteByOwner(ctx context.Context, ownerID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM budgets WHERE user_id = $1`, ownerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanBudget(row pgx.Row) (*Budget, error) {
	var (
		b        Budget
		meta     []byte
		deadline *time.Time
	)
	err := row.Scan(&b.ID, &b.PublicID, &b.UserID, &b.IsTemplate, &b.Name, &meta, &deadline, &b.VerificationID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.Deadline = deadline
	b.Metadata, err = DecodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
