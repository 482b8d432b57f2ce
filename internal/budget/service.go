package budget

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/preventa/preventa/internal/platform/httpx"
)

const (
	publicIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	publicIDLength   = 10
	publicIDRetries  = 5
)

// Service wraps budget business rules.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		logger:   logger,
		validate: validator.New(),
	}
}

// Create persists a new draft or template budget. A nil userID seeds an
// anonymous or template budget.
func (s *Service) Create(ctx context.Context, req CreateBudgetRequest, userID *int64) (*Budget, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}

	b := Budget{
		ID:         uuid.New(),
		UserID:     userID,
		IsTemplate: req.IsTemplate,
		Name:       req.Name,
		Deadline:   req.Deadline,
		Metadata:   req.Metadata.toMetadata(),
	}
	s.normalize(&b, "create")

	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create budget: %w", err)
	}
	return s.repo.Get(ctx, b.ID)
}

// Get fetches a budget and enforces ownership.
func (s *Service) Get(ctx context.Context, id uuid.UUID, userID int64) (*Budget, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != nil && *b.UserID != userID {
		return nil, fmt.Errorf("%w: budget belongs to another user", httpx.ErrForbidden)
	}
	return b, nil
}

// GetPublic fetches a budget by its shared public id, without
// authentication.
func (s *Service) GetPublic(ctx context.Context, publicID string) (*Budget, error) {
	return s.repo.GetByPublicID(ctx, publicID)
}

// Update overwrites the whole document. Signed budgets are immutable, also
// for non-financial fields: the conditional write in the repository is the
// authority, this check only produces a friendlier error without a round
// trip for the common case.
func (s *Service) Update(ctx context.Context, id uuid.UUID, userID int64, req UpdateBudgetRequest) (*Budget, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}

	existing, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if existing.Signed() {
		return nil, ErrAlreadySigned
	}

	existing.Name = req.Name
	existing.Deadline = req.Deadline
	existing.Metadata = req.Metadata.toMetadata()
	s.normalize(existing, "update")

	if err := s.repo.Save(ctx, *existing); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// List returns the owner's budgets plus the status counters for the
// dashboard filter.
func (s *Service) List(ctx context.Context, req ListBudgetsRequest) ([]Budget, StatusCounts, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, StatusCounts{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if req.Limit == 0 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}

// Share assigns a short public id, making the budget reachable without
// authentication. Idempotent: an already shared budget keeps its code.
func (s *Service) Share(ctx context.Context, id uuid.UUID, userID int64) (string, error) {
	b, err := s.Get(ctx, id, userID)
	if err != nil {
		return "", err
	}
	if b.PublicID != nil {
		return *b.PublicID, nil
	}

	for attempt := 0; attempt < publicIDRetries; attempt++ {
		code, err := newPublicID()
		if err != nil {
			return "", err
		}
		err = s.repo.SetPublicID(ctx, id, code)
		if errors.Is(err, ErrPublicIDTaken) {
			continue
		}
		if err != nil {
			return "", err
		}
		b, err = s.repo.Get(ctx, id)
		if err != nil {
			return "", err
		}
		return *b.PublicID, nil
	}
	return "", fmt.Errorf("share budget: exhausted public id attempts")
}

// Clone copies a template (or any owned budget) into a fresh draft.
func (s *Service) Clone(ctx context.Context, sourceID uuid.UUID, userID int64, name string) (*Budget, error) {
	src, err := s.repo.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src.UserID != nil && *src.UserID != userID && !src.IsTemplate {
		return nil, fmt.Errorf("%w: budget belongs to another user", httpx.ErrForbidden)
	}
	if name == "" {
		name = src.Name + " (copy)"
	}

	clone := Budget{
		ID:       uuid.New(),
		UserID:   &userID,
		Name:     name,
		Metadata: src.Metadata,
	}
	if err := s.repo.Create(ctx, clone); err != nil {
		return nil, fmt.Errorf("clone budget: %w", err)
	}
	return s.repo.Get(ctx, clone.ID)
}

// Delete removes a single budget owned by userID.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, userID int64) error {
	return s.repo.Delete(ctx, id, userID)
}

// DeleteByOwner removes every budget of an account, used by account
// deletion.
func (s *Service) DeleteByOwner(ctx context.Context, userID int64) (int64, error) {
	return s.repo.DeleteByOwner(ctx, userID)
}

// normalize drops dangling assignments and logs the event. The cost engine
// would silently value them at zero, so the drop is surfaced here.
func (s *Service) normalize(b *Budget, op string) {
	if dropped := b.Metadata.DropDanglingAssignments(); dropped > 0 {
		s.logger.Warn("dropped dangling resource assignments",
			slog.String("op", op),
			slog.String("budget_id", b.ID.String()),
			slog.Int("dropped", dropped))
	}
}

func newPublicID() (string, error) {
	buf := make([]byte, publicIDLength)
	max := big.NewInt(int64(len(publicIDAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate public id: %w", err)
		}
		buf[i] = publicIDAlphabet[n.Int64()]
	}
	return string(buf), nil
}
