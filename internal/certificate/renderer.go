package certificate

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/preventa/preventa/internal/budget"
	"github.com/preventa/preventa/internal/money"
	"github.com/preventa/preventa/web"
)

// Renderer produces the printable documents of a quote: the signature
// certificate and the quote itself. Rendering is pure; for identical inputs
// the output (including the digest stamp) is identical.
type Renderer struct {
	templates *template.Template
	baseURL   string
}

// NewRenderer parses the embedded document templates. baseURL is the
// externally reachable origin used to build verification links.
func NewRenderer(baseURL string) (*Renderer, error) {
	t, err := template.ParseFS(web.Templates, "templates/documents/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse document templates: %w", err)
	}
	return &Renderer{templates: t, baseURL: baseURL}, nil
}

type certificateData struct {
	QuoteID     string
	QuoteName   string
	PublicURL   string
	SignerEmail string
	SignedAt    string
	Digest      string
	Subtotal    string
	VATTotal    string
	Discounts   string
	GrandTotal  string
}

// Certificate renders the signature certificate for a signed quote.
func (r *Renderer) Certificate(b *budget.Budget, signerEmail string, signedAt time.Time) (string, error) {
	totals := b.Totals()
	f := money.NewFormatter("en", b.Metadata.Currency)
	data := certificateData{
		QuoteID:     b.ID.String(),
		QuoteName:   b.Name,
		PublicURL:   r.publicURL(b),
		SignerEmail: signerEmail,
		SignedAt:    signedAt.UTC().Format("2006-01-02 15:04 MST"),
		Digest:      Digest(b, signerEmail, signedAt),
		Subtotal:    f.Format(totals.Subtotal),
		VATTotal:    f.Format(totals.VATTotal),
		Discounts:   f.Format(totals.ActivityDiscounts + totals.GeneralDiscountAmount),
		GrandTotal:  f.Format(totals.GrandTotal),
	}
	return r.render("certificate.html", data)
}

type quoteActivityRow struct {
	Name        string
	Description string
	Subtotal    string
	Discount    string
	VAT         string
	Total       string
}

type quoteData struct {
	QuoteName        string
	CreatedAt        string
	Deadline         string
	SenderName       string
	SenderDetails    string
	RecipientName    string
	RecipientDetails string
	ContractTerms    string
	Activities       []quoteActivityRow
	Subtotal         string
	VATTotal         string
	Discounts        string
	GrandTotal       string
	PublicURL        string
}

// Quote renders the quote document used for the public PDF export.
func (r *Renderer) Quote(b *budget.Budget) (string, error) {
	totals := b.Totals()
	f := money.NewFormatter("en", b.Metadata.Currency)

	type activityInfo struct {
		name, description string
	}
	names := make(map[string]activityInfo, len(b.Metadata.Activities))
	for _, a := range b.Metadata.Activities {
		names[a.ID] = activityInfo{name: a.Name, description: a.Description}
	}
	rows := make([]quoteActivityRow, 0, len(totals.Activities))
	for _, bd := range totals.Activities {
		info := names[bd.ActivityID]
		rows = append(rows, quoteActivityRow{
			Name:        info.name,
			Description: info.description,
			Subtotal:    f.Format(bd.Subtotal),
			Discount:    f.Format(bd.DiscountAmount),
			VAT:         f.Format(bd.VATAmount),
			Total:       f.Format(bd.TotalWithVAT),
		})
	}

	cfg := b.Metadata.PDFConfig
	data := quoteData{
		QuoteName:        b.Name,
		CreatedAt:        b.CreatedAt.Format("2006-01-02"),
		SenderName:       cfg.SenderName,
		SenderDetails:    cfg.SenderDetails,
		RecipientName:    cfg.RecipientName,
		RecipientDetails: cfg.RecipientDetails,
		ContractTerms:    cfg.ContractTerms,
		Activities:       rows,
		Subtotal:         f.Format(totals.Subtotal),
		VATTotal:         f.Format(totals.VATTotal),
		Discounts:        f.Format(totals.ActivityDiscounts + totals.GeneralDiscountAmount),
		GrandTotal:       f.Format(totals.GrandTotal),
		PublicURL:        r.publicURL(b),
	}
	if b.Deadline != nil {
		data.Deadline = b.Deadline.Format("2006-01-02")
	}
	return r.render("quote.html", data)
}

func (r *Renderer) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (r *Renderer) publicURL(b *budget.Budget) string {
	if b.PublicID == nil {
		return ""
	}
	return fmt.Sprintf("%s/p/%s", r.baseURL, *b.PublicID)
}
