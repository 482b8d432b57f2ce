package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/preventa/preventa/internal/platform/httpx"
)

// BudgetPurger removes all budgets owned by a user. *budget.Service
// satisfies it.
type BudgetPurger interface {
	DeleteByOwner(ctx context.Context, userID int64) (int64, error)
}

// RegisterRequest carries the signup payload.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *TokenStore
	budgets  BudgetPurger
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService constructs a Service.
func NewService(repo Repository, tokens *TokenStore, budgets BudgetPurger, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		tokens:   tokens,
		budgets:  budgets,
		logger:   logger,
		validate: validator.New(),
	}
}

// Register creates a new account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.repo.Create(ctx, strings.ToLower(req.Email), req.Name, string(hash))
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", slog.Int64("user_id", u.ID))
	return u, nil
}

// Login validates credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	u, err := s.repo.FindByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Logout revokes the bearer token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// Me returns the account behind a user id.
func (s *Service) Me(ctx context.Context, userID int64) (*User, error) {
	return s.repo.FindByID(ctx, userID)
}

// DeleteAccount removes the account and every budget it owns.
func (s *Service) DeleteAccount(ctx context.Context, userID int64, token string) error {
	deleted, err := s.budgets.DeleteByOwner(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID); err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, token); err != nil {
		s.logger.Warn("revoke token after account deletion", slog.Any("error", err))
	}
	s.logger.Info("account deleted",
		slog.Int64("user_id", userID),
		slog.Int64("budgets_removed", deleted),
	)
	return nil
}
