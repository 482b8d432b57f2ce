// Package signature implements the email OTP signature workflow: issuing a
// one-time code, verifying it, and linking the verified record onto the
// signed entity. States per (entity, email) attempt:
//
//	REQUESTED -> CODE_SENT -> VERIFIED -> LINKED
//
// with EXPIRED reachable from CODE_SENT once max validity passes. The link
// step is a conditional write so a quote can be signed at most once.
package signature

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/preventa/preventa/internal/platform/httpx"
)

// CodeLength is the number of digits in an OTP code.
const CodeLength = 6

// Validity is how long an issued code can be verified.
const Validity = 30 * time.Minute

var (
	// ErrVerificationNotFound indicates an unknown verification record.
	ErrVerificationNotFound = fmt.Errorf("%w: verification", httpx.ErrNotFound)
	// ErrCodeMismatch indicates a wrong code; the caller may retry.
	ErrCodeMismatch = fmt.Errorf("%w: code mismatch", httpx.ErrValidation)
	// ErrAlreadyVerified indicates the record was already consumed. Distinct
	// from a wrong code: retrying cannot succeed.
	ErrAlreadyVerified = fmt.Errorf("%w: verification already used", httpx.ErrConflict)
	// ErrVerificationExpired indicates the code outlived its validity; the
	// caller must request a fresh one.
	ErrVerificationExpired = fmt.Errorf("%w: verification code", httpx.ErrExpired)
	// ErrApprovalNotFound indicates an unknown approval record.
	ErrApprovalNotFound = fmt.Errorf("%w: approval", httpx.ErrNotFound)
	// ErrAlreadyApproved indicates the approval already carries a
	// verification.
	ErrAlreadyApproved = fmt.Errorf("%w: approval already completed", httpx.ErrConflict)
	// ErrBudgetExpired indicates the quote's deadline passed before it was
	// signed; no further signature attempts are accepted.
	ErrBudgetExpired = fmt.Errorf("%w: budget deadline passed", httpx.ErrExpired)
)

// Verification is a single OTP issuance. VerifiedAt transitions from nil to
// a timestamp exactly once and is never updated afterwards.
type Verification struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	Name            *string    `json:"name,omitempty"`
	Code            string     `json:"-"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	MaxValidityTime time.Time  `json:"maxValidityTime"`
}

// Verified reports whether the code has been consumed.
func (v *Verification) Verified() bool {
	return v.VerifiedAt != nil
}

// Expired reports whether the code can no longer be verified.
func (v *Verification) Expired(now time.Time) bool {
	return now.After(v.MaxValidityTime)
}

// Target identifies the entity being signed: always the quote resolved from
// the public URL, plus an optional standalone approval slot. When ApprovalID
// is set the verification links onto the approval record and the quote
// itself stays untouched; the approval must belong to that quote.
type Target struct {
	BudgetID   uuid.UUID
	ApprovalID *uuid.UUID
}

// Approval is a standalone counter-signature record attached to a budget.
type Approval struct {
	ID             uuid.UUID  `json:"id"`
	BudgetID       uuid.UUID  `json:"budgetId"`
	Email          string     `json:"email"`
	VerificationID *uuid.UUID `json:"verificationId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Completed reports whether the approval has been signed.
func (a *Approval) Completed() bool {
	return a.VerificationID != nil
}
