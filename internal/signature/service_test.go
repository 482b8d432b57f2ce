package signature_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preventa/preventa/internal/budget"
	"github.com/preventa/preventa/internal/platform/httpx"
	"github.com/preventa/preventa/internal/signature"
	"github.com/preventa/preventa/jobs"
)

type memRepo struct {
	verifications map[uuid.UUID]signature.Verification
	approvals     map[uuid.UUID]signature.Approval

	txCalls    int
	inTx       bool
	markedInTx bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		verifications: make(map[uuid.UUID]signature.Verification),
		approvals:     make(map[uuid.UUID]signature.Approval),
	}
}

func (r *memRepo) Create(ctx context.Context, v signature.Verification) error {
	r.verifications[v.ID] = v
	return nil
}

func (r *memRepo) Get(ctx context.Context, id uuid.UUID) (*signature.Verification, error) {
	v, ok := r.verifications[id]
	if !ok {
		return nil, signature.ErrVerificationNotFound
	}
	return &v, nil
}

func (r *memRepo) InTx(ctx context.Context, fn func(pgx.Tx) error) error {
	r.txCalls++
	r.inTx = true
	defer func() { r.inTx = false }()
	return fn(nil)
}

func (r *memRepo) MarkVerified(ctx context.Context, _ pgx.Tx, id uuid.UUID, at time.Time) error {
	r.markedInTx = r.inTx
	v, ok := r.verifications[id]
	if !ok {
		return signature.ErrVerificationNotFound
	}
	if v.VerifiedAt != nil {
		return signature.ErrAlreadyVerified
	}
	if at.After(v.MaxValidityTime) {
		return signature.ErrVerificationExpired
	}
	v.VerifiedAt = &at
	r.verifications[id] = v
	return nil
}

func (r *memRepo) CreateApproval(ctx context.Context, a signature.Approval) error {
	r.approvals[a.ID] = a
	return nil
}

func (r *memRepo) GetApproval(ctx context.Context, id uuid.UUID) (*signature.Approval, error) {
	a, ok := r.approvals[id]
	if !ok {
		return nil, signature.ErrApprovalNotFound
	}
	return &a, nil
}

func (r *memRepo) LinkVerificationToApproval(ctx context.Context, _ pgx.Tx, approvalID, verificationID uuid.UUID) error {
	a, ok := r.approvals[approvalID]
	if !ok {
		return signature.ErrApprovalNotFound
	}
	if a.VerificationID != nil {
		return signature.ErrAlreadyApproved
	}
	a.VerificationID = &verificationID
	r.approvals[approvalID] = a
	return nil
}

type memGateway struct {
	budgets map[uuid.UUID]*budget.Budget
	owner   string

	repo       *memRepo
	linkedInTx bool
}

func (g *memGateway) Get(ctx context.Context, id uuid.UUID) (*budget.Budget, error) {
	b, ok := g.budgets[id]
	if !ok {
		return nil, budget.ErrNotFound
	}
	return b, nil
}

func (g *memGateway) LinkVerification(ctx context.Context, _ pgx.Tx, budgetID, verificationID uuid.UUID) error {
	if g.repo != nil {
		g.linkedInTx = g.repo.inTx
	}
	b, ok := g.budgets[budgetID]
	if !ok {
		return budget.ErrNotFound
	}
	if b.VerificationID != nil {
		return budget.ErrAlreadySigned
	}
	b.VerificationID = &verificationID
	return nil
}

func (g *memGateway) OwnerEmail(ctx context.Context, budgetID uuid.UUID) (string, error) {
	return g.owner, nil
}

type capturingNotifier struct {
	sent    []jobs.SendEmailPayload
	failAll bool
}

func (n *capturingNotifier) EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error) {
	if n.failAll {
		return nil, errors.New("queue unavailable")
	}
	n.sent = append(n.sent, payload)
	return &asynq.TaskInfo{}, nil
}

type stubRenderer struct{}

func (stubRenderer) Certificate(b *budget.Budget, signerEmail string, signedAt time.Time) (string, error) {
	return "<html>certificate</html>", nil
}

func newTestService(t *testing.T) (*signature.Service, *memRepo, *memGateway, *capturingNotifier, uuid.UUID) {
	t.Helper()
	repo := newMemRepo()
	gw := &memGateway{budgets: make(map[uuid.UUID]*budget.Budget), owner: "owner@example.com", repo: repo}
	notifier := &capturingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := signature.NewService(repo, gw, notifier, stubRenderer{}, nil, logger)

	id := uuid.New()
	gw.budgets[id] = &budget.Budget{ID: id, Name: "Website relaunch"}
	return svc, repo, gw, notifier, id
}

var codePattern = regexp.MustCompile(`^\d{6}$`)

func storedCode(t *testing.T, repo *memRepo, id uuid.UUID) string {
	t.Helper()
	v, ok := repo.verifications[id]
	require.True(t, ok)
	return v.Code
}

func TestRequestIssuesCode(t *testing.T) {
	svc, repo, _, notifier, budgetID := newTestService(t)

	v, err := svc.Request(context.Background(), signature.RequestInput{
		Email:  "signer@example.com",
		Target: signature.Target{BudgetID: budgetID},
	})
	require.NoError(t, err)

	code := storedCode(t, repo, v.ID)
	assert.Regexp(t, codePattern, code)
	assert.WithinDuration(t, time.Now().Add(signature.Validity), v.MaxValidityTime, 5*time.Second)
	assert.Nil(t, v.VerifiedAt)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "signer@example.com", notifier.sent[0].To)
	assert.Contains(t, notifier.sent[0].HTMLBody, code)
}

func TestRequestRejectsExpiredBudget(t *testing.T) {
	svc, _, gw, _, budgetID := newTestService(t)
	past := time.Now().Add(-time.Hour)
	gw.budgets[budgetID].Deadline = &past

	_, err := svc.Request(context.Background(), signature.RequestInput{
		Email:  "signer@example.com",
		Target: signature.Target{BudgetID: budgetID},
	})
	require.ErrorIs(t, err, signature.ErrBudgetExpired)
	require.ErrorIs(t, err, httpx.ErrExpired)
}

func TestSignHappyPath(t *testing.T) {
	svc, repo, gw, notifier, budgetID := newTestService(t)
	target := signature.Target{BudgetID: budgetID}

	v, err := svc.Request(context.Background(), signature.RequestInput{Email: "signer@example.com", Target: target})
	require.NoError(t, err)

	signed, err := svc.Sign(context.Background(), signature.SignInput{
		VerificationID: v.ID,
		Code:           storedCode(t, repo, v.ID),
		Target:         target,
	})
	require.NoError(t, err)
	require.NotNil(t, signed.VerifiedAt)

	require.NotNil(t, gw.budgets[budgetID].VerificationID)
	assert.Equal(t, v.ID, *gw.budgets[budgetID].VerificationID)

	// OTP email, signer confirmation, owner notification.
	require.Len(t, notifier.sent, 3)
	signerMail := notifier.sent[1]
	assert.Equal(t, "signer@example.com", signerMail.To)
	require.Len(t, signerMail.Attachments, 1)
	assert.Equal(t, "signature-certificate.html", signerMail.Attachments[0].Filename)
	assert.Equal(t, "owner@example.com", notifier.sent[2].To)
}

func TestSignWrongCode(t *testing.T) {
	svc, repo, gw, _, budgetID := newTestService(t)
	target := signature.Target{BudgetID: budgetID}

	v, err := svc.Request(context.Background(), signature.RequestInput{Email: "signer@example.com", Target: target})
	require.NoError(t, err)

	wrong := "000000"
	if storedCode(t, repo, v.ID) == wrong {
		wrong = "000001"
	}
	_, err = svc.Sign(context.Background(), signature.SignInput{VerificationID: v.ID, Code: wrong, Target: target})
	require.ErrorIs(t, err, signature.ErrCodeMismatch)
	assert.Nil(t, gw.budgets[budgetID].VerificationID)

	// A wrong code is retryable: the right one still works.
	_, err = svc.Sign(context.Background(), signature.SignInput{
		VerificationID: v.ID,
		Code:           storedCode(t, repo, v.ID),
		Target:         target,
	})
	require.NoError(t, err)
}

func TestSignTwiceFailsDistinctly(t *testing.T) {
	svc, repo, _, _, budgetID := newTestService(t)
	target := signature.Target{BudgetID: budgetID}

	v, err := svc.Request(context.Background(), signature.RequestInput{Email: "signer@example.com", Target: target})
	require.NoError(t, err)
	code := storedCode(t, repo, v.ID)

	_, err = svc.Sign(context.Background(), signature.SignInput{VerificationID: v.ID, Code: code, Target: target})
	require.NoError(t, err)

	_, err = svc.Sign(context.Background(), signature.SignInput{VerificationID: v.ID, Code: code, Target: target})
	require.ErrorIs(t, err, signature.ErrAlreadyVerified)
	assert.NotErrorIs(t, err, signature.ErrCodeMismatch)
}

func TestSignExpiredCode(t *testing.T) {
	svc, repo, _, _, budgetID := newTestService(t)
	target := signature.Target{BudgetID: budgetID}

	v, err := svc.Request(context.Background(), signature.RequestInput{Email: "signer@example.com", Target: target})
	require.NoError(t, err)
	code := storedCode(t, repo, v.ID)

	stale := repo.verifications[v.ID]
	stale.MaxValidityTime = time.Now().Add(-time.Minute)
	repo.verifications[v.ID] = stale

	_, err = svc.Sign(context.Background(), signature.SignInput{VerificationID: v.ID, Code: code, Target: target})
	require.ErrorIs(t, err, signature.ErrVerificationExpired)
}

func TestSecondLinkLosesWithConflict(t *testing.T) {
	svc, repo, _, _, budgetID := newTestService(t)
	target := signature.Target{BudgetID: budgetID}

	first, err := svc.Request(context.Background(), signature.RequestInput{Email: "one@example.com", Target: target})
	require.NoError(t, err)
	second, err := svc.Request(context.Background(), signature.RequestInput{Email: "two@example.com", Target: target})
	require.NoError(t, err)

	_, err = svc.Sign(context.Background(), signature.SignInput{
		VerificationID: first.ID,
		Code:           storedCode(t, repo, first.ID),
		Target:         target,
	})
	require.NoError(t, err)

	_, err = svc.Sign(context.Background(), signature.SignInput{
		VerificationID: second.ID,
		Code:           storedCode(t, repo, second.ID),
		Target:         target,
	})
	require.ErrorIs(t, err, budget.ErrAlreadySigned)
	assert.NotErrorIs(t, err, signature.ErrCodeMismatch)
}

func TestNotificationFailureDoesNotBlockSignature(t *testing.T) {
	svc, repo, gw, notifier, budgetID := newTestService(t)
	target := signature.Target{BudgetID: budgetID}

	v, err := svc.Request(context.Background(), signature.RequestInput{Email: "signer@example.com", Target: target})
	require.NoError(t, err)
	code := storedCode(t, repo, v.ID)

	notifier.failAll = true
	_, err = svc.Sign(context.Background(), signature.SignInput{VerificationID: v.ID, Code: code, Target: target})
	require.NoError(t, err)
	require.NotNil(t, gw.budgets[budgetID].VerificationID)
}

func TestApprovalFlowLeavesBudgetUntouched(t *testing.T) {
	svc, repo, gw, _, budgetID := newTestService(t)

	a, err := svc.CreateApproval(context.Background(), budgetID, "counter@example.com")
	require.NoError(t, err)

	target := signature.Target{BudgetID: budgetID, ApprovalID: &a.ID}
	v, err := svc.Request(context.Background(), signature.RequestInput{Email: "counter@example.com", Target: target})
	require.NoError(t, err)

	_, err = svc.Sign(context.Background(), signature.SignInput{
		VerificationID: v.ID,
		Code:           storedCode(t, repo, v.ID),
		Target:         target,
	})
	require.NoError(t, err)

	linked, err := repo.GetApproval(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.VerificationID)
	assert.Nil(t, gw.budgets[budgetID].VerificationID)

	// The approval slot is single-use.
	fresh, err := svc.Request(context.Background(), signature.RequestInput{Email: "counter@example.com", Target: target})
	require.NoError(t, err)
	_, err = svc.Sign(context.Background(), signature.SignInput{
		VerificationID: fresh.ID,
		Code:           storedCode(t, repo, fresh.ID),
		Target:         target,
	})
	require.ErrorIs(t, err, signature.ErrAlreadyApproved)
}

func TestApprovalOnlyReachableThroughOwnBudget(t *testing.T) {
	svc, _, gw, _, budgetID := newTestService(t)
	otherID := uuid.New()
	gw.budgets[otherID] = &budget.Budget{ID: otherID, Name: "Unrelated quote"}

	a, err := svc.CreateApproval(context.Background(), budgetID, "counter@example.com")
	require.NoError(t, err)

	// The approval belongs to budgetID; addressing it through another
	// budget's public URL must look like a missing approval.
	_, err = svc.Request(context.Background(), signature.RequestInput{
		Email:  "counter@example.com",
		Target: signature.Target{BudgetID: otherID, ApprovalID: &a.ID},
	})
	require.ErrorIs(t, err, signature.ErrApprovalNotFound)
}

func TestSignVerifiesAndLinksInOneTransaction(t *testing.T) {
	svc, repo, gw, _, budgetID := newTestService(t)
	target := signature.Target{BudgetID: budgetID}

	v, err := svc.Request(context.Background(), signature.RequestInput{Email: "signer@example.com", Target: target})
	require.NoError(t, err)

	_, err = svc.Sign(context.Background(), signature.SignInput{
		VerificationID: v.ID,
		Code:           storedCode(t, repo, v.ID),
		Target:         target,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, repo.txCalls)
	assert.True(t, repo.markedInTx)
	assert.True(t, gw.linkedInTx)
}

func TestRequestValidatesEmail(t *testing.T) {
	svc, _, _, _, budgetID := newTestService(t)
	_, err := svc.Request(context.Background(), signature.RequestInput{
		Email:  "not-an-email",
		Target: signature.Target{BudgetID: budgetID},
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.True(t, strings.Contains(err.Error(), "Email"))
}
