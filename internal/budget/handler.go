package budget

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/preventa/preventa/internal/money"
	"github.com/preventa/preventa/internal/platform/httpx"
	"github.com/preventa/preventa/internal/shared"
	"github.com/preventa/preventa/internal/view"
)

// Handler exposes owner CRUD plus the public quote view.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine) *Handler {
	return &Handler{logger: logger, service: service, templates: templates}
}

// budgetResponse decorates the aggregate with derived figures for clients.
type budgetResponse struct {
	Budget
	Status string      `json:"status,omitempty"`
	Totals interface{} `json:"totals"`
}

func toResponse(b *Budget, now time.Time) budgetResponse {
	resp := budgetResponse{Budget: *b, Totals: b.Totals()}
	if st, ok := b.DerivedStatus(now); ok {
		resp.Status = string(st)
	}
	return resp
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	req := ListBudgetsRequest{UserID: userID}
	if st := r.URL.Query().Get("status"); st != "" {
		s := Status(st)
		req.Status = &s
	}
	req.Templates = r.URL.Query().Get("templates") == "true"
	req.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	req.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	budgets, counts, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list budgets", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	now := time.Now()
	items := make([]budgetResponse, 0, len(budgets))
	for i := range budgets {
		items = append(items, toResponse(&budgets[i], now))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"budgets": items,
		"counts":  counts,
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var req CreateBudgetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}

	b, err := h.service.Create(r.Context(), req, &userID)
	if err != nil {
		h.logger.Error("create budget", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(b, time.Now()))
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
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

	b, err := h.service.Get(r.Context(), id, userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(b, time.Now()))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
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

	var req UpdateBudgetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}

	b, err := h.service.Update(r.Context(), id, userID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(b, time.Now()))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.Delete(r.Context(), id, userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
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

	publicID, err := h.service.Share(r.Context(), id, userID)
	if err != nil {
		h.logger.Error("share budget", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"publicId": publicID})
}

func (h *Handler) Clone(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		Name string `json:"name"`
	}
	_ = httpx.DecodeJSON(r, &req)

	b, err := h.service.Clone(r.Context(), id, userID, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(b, time.Now()))
}

// Preview recomputes totals for an unsaved composition, mirroring the live
// recompute-on-every-edit model of the editor.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req MetadataInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	m := req.toMetadata()
	if dropped := m.DropDanglingAssignments(); dropped > 0 {
		h.logger.Warn("preview dropped dangling assignments", slog.Int("dropped", dropped))
	}
	res := m.Totals()
	httpx.JSON(w, http.StatusOK, res)
}

// PublicShow renders the shared quote page.
func (h *Handler) PublicShow(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.GetPublic(r.Context(), chi.URLParam(r, "publicID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	totals := b.Totals()
	f := money.NewFormatter("en", b.Metadata.Currency)
	status, _ := b.DerivedStatus(time.Now())

	data := view.TemplateData{
		Title: b.Name,
		Data: map[string]any{
			"Budget":        b,
			"Totals":        totals,
			"Status":        string(status),
			"Subtotal":      f.Format(totals.Subtotal),
			"VATTotal":      f.Format(totals.VATTotal),
			"DiscountTotal": f.Format(totals.ActivityDiscounts + totals.GeneralDiscountAmount),
			"GrandTotal":    f.Format(totals.GrandTotal),
		},
	}
	if err := h.templates.Render(w, "budget_public.html", data); err != nil {
		h.logger.Error("render public budget", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// PublicJSON serves the shared quote as JSON for API consumers.
func (h *Handler) PublicJSON(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.GetPublic(r.Context(), chi.URLParam(r, "publicID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := toResponse(b, time.Now())
	// The owner id is not part of the public surface.
	resp.UserID = nil
	httpx.JSON(w, http.StatusOK, resp)
}
