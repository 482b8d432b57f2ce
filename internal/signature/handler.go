package signature

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/preventa/preventa/internal/budget"
	"github.com/preventa/preventa/internal/observability"
	"github.com/preventa/preventa/internal/platform/httpx"
	"github.com/preventa/preventa/internal/shared"
)

// Handler exposes the public signing endpoints and the owner-side approval
// management.
type Handler struct {
	logger  *slog.Logger
	service *Service
	budgets *budget.Service
	events  *shared.EventRecorder
	metrics *observability.Metrics
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, budgets *budget.Service, events *shared.EventRecorder, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, budgets: budgets, events: events, metrics: metrics}
}

// MountPublicRoutes attaches the unauthenticated signing endpoints under a
// public budget.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/sign/request", h.RequestCode)
	r.Post("/sign/verify", h.Verify)
}

// MountOwnerRoutes attaches approval management under /budgets/{id}.
func (h *Handler) MountOwnerRoutes(r chi.Router) {
	r.Post("/{id}/approvals", h.CreateApproval)
	r.Get("/{id}/events", h.ListEvents)
}

type requestCodeRequest struct {
	Email      string  `json:"email"`
	Name       *string `json:"name,omitempty"`
	ApprovalID *string `json:"approvalId,omitempty"`
}

func (h *Handler) RequestCode(w http.ResponseWriter, r *http.Request) {
	b, err := h.budgets.GetPublic(r.Context(), chi.URLParam(r, "publicID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var req requestCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}

	target, err := resolveTarget(b.ID, req.ApprovalID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	v, err := h.service.Request(r.Context(), RequestInput{
		Email:  req.Email,
		Name:   req.Name,
		Target: target,
	})
	if err != nil {
		h.logger.Error("request otp", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"verificationId":  v.ID,
		"maxValidityTime": v.MaxValidityTime,
	})
}

type verifyRequest struct {
	VerificationID string  `json:"verificationId"`
	Code           string  `json:"code"`
	ApprovalID     *string `json:"approvalId,omitempty"`
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	b, err := h.budgets.GetPublic(r.Context(), chi.URLParam(r, "publicID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	verificationID, err := uuid.Parse(req.VerificationID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid verification id")
		return
	}
	target, err := resolveTarget(b.ID, req.ApprovalID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	v, err := h.service.Sign(r.Context(), SignInput{
		VerificationID: verificationID,
		Code:           req.Code,
		Target:         target,
	})
	if err != nil {
		h.metrics.SignatureOutcome("failed")
		httpx.RespondError(w, err)
		return
	}
	h.metrics.SignatureOutcome("signed")
	httpx.JSON(w, http.StatusOK, map[string]any{
		"verificationId": v.ID,
		"verifiedAt":     v.VerifiedAt,
	})
}

func (h *Handler) CreateApproval(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid budget id")
		return
	}
	// Ownership check happens through the budget service.
	if _, err := h.budgets.Get(r.Context(), id, userID); err != nil {
		httpx.RespondError(w, err)
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Email == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email required")
		return
	}

	a, err := h.service.CreateApproval(r.Context(), id, req.Email)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid budget id")
		return
	}
	if _, err := h.budgets.Get(r.Context(), id, userID); err != nil {
		httpx.RespondError(w, err)
		return
	}

	events, err := h.events.List(r.Context(), EventModule, id)
	if err != nil {
		h.logger.Error("list signature events", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func resolveTarget(budgetID uuid.UUID, approvalID *string) (Target, error) {
	if approvalID == nil {
		return Target{BudgetID: budgetID}, nil
	}
	id, err := uuid.Parse(*approvalID)
	if err != nil {
		return Target{}, ErrApprovalNotFound
	}
	return Target{BudgetID: budgetID, ApprovalID: &id}, nil
}
