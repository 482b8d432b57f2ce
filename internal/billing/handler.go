package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/preventa/preventa/internal/platform/httpx"
	"github.com/preventa/preventa/internal/shared"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

const maxWebhookBody = 1 << 20

// Handler consumes payment processor webhooks and serves the owner's
// billing profile.
type Handler struct {
	logger *slog.Logger
	repo   Repository
	secret []byte
}

func NewHandler(logger *slog.Logger, repo Repository, secret string) *Handler {
	return &Handler{logger: logger, repo: repo, secret: []byte(secret)}
}

// MountWebhookRoutes attaches the unauthenticated webhook endpoint.
func (h *Handler) MountWebhookRoutes(r chi.Router) {
	r.Post("/webhook", h.Webhook)
}

// MountOwnerRoutes attaches the authenticated profile endpoint.
func (h *Handler) MountOwnerRoutes(r chi.Router) {
	r.Get("/profile", h.Profile)
}

func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "could not read body")
		return
	}
	if !h.verify(body, r.Header.Get(SignatureHeader)) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid webhook signature")
		return
	}

	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed event payload")
		return
	}
	if ev.Data.UserID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "event has no user reference")
		return
	}

	if err := h.apply(r, ev); err != nil {
		h.logger.Error("apply billing event",
			slog.String("type", ev.Type),
			slog.Int64("user_id", ev.Data.UserID),
			slog.Any("error", err),
		)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (h *Handler) apply(r *http.Request, ev WebhookEvent) error {
	ctx := r.Context()
	switch ev.Type {
	case EventCustomerUpdated:
		return h.repo.UpsertCustomer(ctx, ev.Data.UserID, ev.Data.CustomerID)
	case EventCustomerTaxIDUpdated:
		return h.repo.SetFiscalCode(ctx, ev.Data.UserID, ev.Data.FiscalCode)
	case EventPaymentMethodAttached, EventSetupIntentSucceeded:
		return h.repo.SetPaymentMethod(ctx, ev.Data.UserID, ev.Data.PaymentMethodID)
	case EventPaymentMethodDetached:
		return h.repo.SetPaymentMethod(ctx, ev.Data.UserID, nil)
	default:
		// Unknown events are acknowledged so the processor stops retrying.
		h.logger.Info("ignoring billing event", slog.String("type", ev.Type))
		return nil
	}
}

func (h *Handler) verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	p, err := h.repo.Get(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
