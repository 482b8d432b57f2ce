package certificate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/preventa/preventa/internal/budget"
	"github.com/preventa/preventa/internal/platform/httpx"
	"github.com/preventa/preventa/internal/signature"
)

// PDFClient converts rendered HTML into a PDF document. *report.Client
// satisfies it.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Handler serves the public document endpoints of a shared quote.
type Handler struct {
	logger     *slog.Logger
	budgets    *budget.Service
	signatures *signature.Service
	renderer   *Renderer
	pdf        PDFClient
}

func NewHandler(logger *slog.Logger, budgets *budget.Service, signatures *signature.Service, renderer *Renderer, pdf PDFClient) *Handler {
	return &Handler{logger: logger, budgets: budgets, signatures: signatures, renderer: renderer, pdf: pdf}
}

// MountPublicRoutes attaches the document endpoints under a public budget.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/pdf", h.QuotePDF)
	r.Get("/certificate", h.Certificate)
}

func (h *Handler) QuotePDF(w http.ResponseWriter, r *http.Request) {
	b, err := h.budgets.GetPublic(r.Context(), chi.URLParam(r, "publicID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	html, err := h.renderer.Quote(b)
	if err != nil {
		h.logger.Error("render quote document", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Render Failed", "could not render quote document")
		return
	}
	pdf, err := h.pdf.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("convert quote to pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "PDF Conversion Failed", "document converter is unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", b.Name+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) Certificate(w http.ResponseWriter, r *http.Request) {
	b, err := h.budgets.GetPublic(r.Context(), chi.URLParam(r, "publicID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !b.Signed() {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "this quote has not been signed")
		return
	}
	v, err := h.signatures.GetVerification(r.Context(), *b.VerificationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if v.VerifiedAt == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "this quote has not been signed")
		return
	}
	html, err := h.renderer.Certificate(b, v.Email, *v.VerifiedAt)
	if err != nil {
		h.logger.Error("render certificate", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Render Failed", "could not render certificate")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}
