package signature

import (
	"context"
	"crypto/subtle"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"

	"github.com/preventa/preventa/internal/budget"
	"github.com/preventa/preventa/internal/platform/httpx"
	"github.com/preventa/preventa/internal/shared"
	"github.com/preventa/preventa/jobs"
)

// EventModule scopes workflow audit events recorded by this package.
const EventModule = "signature"

// BudgetGateway is the slice of the budget repository the workflow needs.
// LinkVerification takes the transaction that also consumes the code.
type BudgetGateway interface {
	Get(ctx context.Context, id uuid.UUID) (*budget.Budget, error)
	LinkVerification(ctx context.Context, tx pgx.Tx, budgetID, verificationID uuid.UUID) error
	OwnerEmail(ctx context.Context, budgetID uuid.UUID) (string, error)
}

// Notifier enqueues outbound email; satisfied by *jobs.Client.
type Notifier interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// DocumentRenderer produces the signature certificate document.
type DocumentRenderer interface {
	Certificate(b *budget.Budget, signerEmail string, signedAt time.Time) (string, error)
}

// RequestInput starts a signature attempt.
type RequestInput struct {
	Email  string  `validate:"required,email"`
	Name   *string `validate:"omitempty,max=200"`
	Target Target  `validate:"required"`
}

// SignInput completes a signature attempt: verify the code, then link.
type SignInput struct {
	VerificationID uuid.UUID `validate:"required"`
	Code           string    `validate:"required,len=6,numeric"`
	Target         Target    `validate:"required"`
}

// Service drives the OTP signature workflow.
type Service struct {
	repo     Repository
	budgets  BudgetGateway
	notifier Notifier
	renderer DocumentRenderer
	events   *shared.EventRecorder
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a Service. The events recorder may be nil.
func NewService(repo Repository, budgets BudgetGateway, notifier Notifier, renderer DocumentRenderer, events *shared.EventRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		budgets:  budgets,
		notifier: notifier,
		renderer: renderer,
		events:   events,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Request issues a fresh OTP for the target entity and emails it to the
// signer. Multiple outstanding requests for the same email and entity may
// coexist; abandoned ones simply expire.
func (s *Service) Request(ctx context.Context, in RequestInput) (*Verification, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}

	b, err := s.targetBudget(ctx, in.Target)
	if err != nil {
		return nil, err
	}
	if expired(b, s.now()) {
		return nil, ErrBudgetExpired
	}

	code, err := newCode()
	if err != nil {
		return nil, err
	}
	now := s.now()
	v := Verification{
		ID:              uuid.New(),
		Email:           in.Email,
		Name:            in.Name,
		Code:            code,
		CreatedAt:       now,
		MaxValidityTime: now.Add(Validity),
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("create verification: %w", err)
	}
	s.recordEvent(ctx, in.Target.BudgetID, in.Email, shared.EventOTPRequested, "")

	// Without the code email the attempt cannot proceed, so unlike the
	// post-link notifications this enqueue failure is propagated.
	_, err = s.notifier.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:       in.Email,
		Subject:  fmt.Sprintf("Your signature code for %q", b.Name),
		HTMLBody: otpEmailBody(b.Name, code),
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue otp email: %w", err)
	}
	return &v, nil
}

// Sign verifies the submitted code and links the verification onto the
// target. Exactly one concurrent signer can win the link; the loser gets a
// conflict error distinct from a wrong code.
func (s *Service) Sign(ctx context.Context, in SignInput) (*Verification, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}

	b, err := s.targetBudget(ctx, in.Target)
	if err != nil {
		return nil, err
	}
	if expired(b, s.now()) {
		return nil, ErrBudgetExpired
	}

	v, err := s.repo.Get(ctx, in.VerificationID)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(v.Code), []byte(in.Code)) != 1 {
		return nil, ErrCodeMismatch
	}

	// Consuming the code and linking it commit or roll back together, so a
	// lost link can never strand a consumed verification.
	now := s.now()
	err = s.repo.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.MarkVerified(ctx, tx, v.ID, now); err != nil {
			return err
		}
		if in.Target.ApprovalID != nil {
			return s.repo.LinkVerificationToApproval(ctx, tx, *in.Target.ApprovalID, v.ID)
		}
		return s.budgets.LinkVerification(ctx, tx, in.Target.BudgetID, v.ID)
	})
	if err != nil {
		return nil, err
	}
	v.VerifiedAt = &now
	s.recordEvent(ctx, in.Target.BudgetID, v.Email, shared.EventOTPVerified, "")
	s.recordEvent(ctx, in.Target.BudgetID, v.Email, shared.EventSigned, "")

	// Notification is best-effort: the signature stands regardless of
	// whether either email goes out.
	s.notify(ctx, b, v, now)
	return v, nil
}

// CreateApproval registers a standalone counter-signature slot on a budget.
func (s *Service) CreateApproval(ctx context.Context, budgetID uuid.UUID, email string) (*Approval, error) {
	if _, err := s.budgets.Get(ctx, budgetID); err != nil {
		return nil, err
	}
	a := Approval{
		ID:        uuid.New(),
		BudgetID:  budgetID,
		Email:     email,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateApproval(ctx, a); err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}
	return &a, nil
}

// GetVerification exposes a verification record, e.g. for the certificate
// page.
func (s *Service) GetVerification(ctx context.Context, id uuid.UUID) (*Verification, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) targetBudget(ctx context.Context, t Target) (*budget.Budget, error) {
	if t.ApprovalID == nil {
		return s.budgets.Get(ctx, t.BudgetID)
	}
	a, err := s.repo.GetApproval(ctx, *t.ApprovalID)
	if err != nil {
		return nil, err
	}
	// An approval is only reachable through its own quote's public URL.
	if a.BudgetID != t.BudgetID {
		return nil, ErrApprovalNotFound
	}
	return s.budgets.Get(ctx, a.BudgetID)
}

// expired reports whether the budget's signing window has closed. A signed
// budget is never expired, but the link step rejects it anyway.
func expired(b *budget.Budget, now time.Time) bool {
	return b.VerificationID == nil && b.Deadline != nil && b.Deadline.Before(now)
}

func (s *Service) notify(ctx context.Context, b *budget.Budget, v *Verification, signedAt time.Time) {
	var attachments []jobs.EmailAttachment
	cert, err := s.renderer.Certificate(b, v.Email, signedAt)
	if err != nil {
		s.logger.Error("notify: render certificate", slog.Any("error", err))
	} else {
		attachments = append(attachments, jobs.EmailAttachment{
			Filename:    "signature-certificate.html",
			ContentType: "text/html",
			Content:     []byte(cert),
		})
	}

	// Signer copy, certificate attached.
	if _, err := s.notifier.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:          v.Email,
		Subject:     fmt.Sprintf("You signed %q", b.Name),
		HTMLBody:    signerEmailBody(b.Name, signedAt),
		Attachments: attachments,
	}); err != nil {
		s.logger.Error("notify signer", slog.String("to", v.Email), slog.Any("error", err))
	}

	// Owner notification; anonymous budgets have no owner to notify.
	owner, err := s.budgets.OwnerEmail(ctx, b.ID)
	if err != nil || owner == "" {
		if err != nil {
			s.logger.Warn("notify: owner lookup", slog.Any("error", err))
		}
		return
	}
	if _, err := s.notifier.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:       owner,
		Subject:  fmt.Sprintf("%q was signed by %s", b.Name, v.Email),
		HTMLBody: ownerEmailBody(b.Name, v.Email, signedAt),
	}); err != nil {
		s.logger.Error("notify owner", slog.String("to", owner), slog.Any("error", err))
	}
}

func (s *Service) recordEvent(ctx context.Context, ref uuid.UUID, actor string, action shared.EventAction, note string) {
	if s.events == nil {
		return
	}
	if err := s.events.Record(ctx, shared.Event{
		Module: EventModule,
		RefID:  ref,
		Actor:  actor,
		Action: action,
		Note:   note,
	}); err != nil {
		s.logger.Warn("record signature event", slog.Any("error", err))
	}
}

func otpEmailBody(budgetName, code string) string {
	budgetName = html.EscapeString(budgetName)
	return fmt.Sprintf(`<html><body>
<p>You requested to sign <strong>%s</strong>.</p>
<p>Your one-time code is:</p>
<p style="font-size:28px;letter-spacing:6px;font-weight:bold">%s</p>
<p>The code expires in 30 minutes. If you did not request it, ignore this email.</p>
</body></html>`, budgetName, code)
}

func signerEmailBody(budgetName string, signedAt time.Time) string {
	budgetName = html.EscapeString(budgetName)
	return fmt.Sprintf(`<html><body>
<p>You signed <strong>%s</strong> on %s.</p>
<p>Your signature certificate is attached.</p>
</body></html>`, budgetName, signedAt.Format("02 Jan 2006 15:04 MST"))
}

func ownerEmailBody(budgetName, signerEmail string, signedAt time.Time) string {
	budgetName = html.EscapeString(budgetName)
	signerEmail = html.EscapeString(signerEmail)
	return fmt.Sprintf(`<html><body>
<p><strong>%s</strong> was signed by %s on %s.</p>
</body></html>`, budgetName, signerEmail, signedAt.Format("02 Jan 2006 15:04 MST"))
}
