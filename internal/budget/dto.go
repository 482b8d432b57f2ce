package budget

import (
	"time"

	"github.com/preventa/preventa/internal/budget/calc"
)

// ResourceInput mirrors calc.Resource for request payloads.
type ResourceInput struct {
	ID           string   `json:"id" validate:"required"`
	Name         string   `json:"name" validate:"required,max=200"`
	CostType     string   `json:"costType" validate:"required,oneof=hourly quantity fixed"`
	PricePerHour float64  `json:"pricePerHour" validate:"gte=0"`
	Margin       *float64 `json:"margin,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// AssignmentInput binds a resource to an activity in request payloads.
type AssignmentInput struct {
	ResourceID string  `json:"resourceId" validate:"required"`
	Hours      float64 `json:"hours" validate:"gte=0"`
	FixedPrice float64 `json:"fixedPrice" validate:"gte=0"`
}

// DiscountInput mirrors calc.Discount.
type DiscountInput struct {
	Enabled bool    `json:"enabled"`
	Type    string  `json:"type" validate:"required_if=Enabled true,omitempty,oneof=percentage fixed"`
	Value   float64 `json:"value"`
	ApplyOn string  `json:"applyOn" validate:"required_if=Enabled true,omitempty,oneof=taxable withVat"`
}

// MarginInput mirrors calc.Margin.
type MarginInput struct {
	Enabled bool    `json:"enabled"`
	Value   float64 `json:"value"`
}

// ActivityInput describes one activity. VAT is optional and defaults from
// the budget settings when omitted.
type ActivityInput struct {
	ID          string            `json:"id" validate:"required"`
	Name        string            `json:"name" validate:"required,max=200"`
	Description string            `json:"description,omitempty"`
	VAT         *float64          `json:"vat,omitempty" validate:"omitempty,gte=0,lte=100"`
	Margin      *float64          `json:"margin,omitempty" validate:"omitempty,gte=0,lte=100"`
	Discount    *DiscountInput    `json:"discount,omitempty"`
	Resources   []AssignmentInput `json:"resources" validate:"dive"`
	StartDate   string            `json:"startDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string            `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// MetadataInput is the full composition submitted by the editor.
type MetadataInput struct {
	Resources       []ResourceInput `json:"resources" validate:"dive"`
	Activities      []ActivityInput `json:"activities" validate:"dive"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	DefaultVAT      float64         `json:"defaultVat" validate:"gte=0,lte=100"`
	GeneralDiscount *DiscountInput  `json:"generalDiscount,omitempty"`
	GeneralMargin   *MarginInput    `json:"generalMargin,omitempty"`
	PDFConfig       PDFConfig       `json:"pdfConfig"`
	Tags            []string        `json:"budgetTags,omitempty" validate:"max=20,dive,max=50"`
	Description     string          `json:"budgetDescription,omitempty"`
}

// CreateBudgetRequest creates a draft or template budget.
type CreateBudgetRequest struct {
	Name       string        `json:"name" validate:"required,max=200"`
	IsTemplate bool          `json:"isTemplate"`
	Deadline   *time.Time    `json:"deadline,omitempty"`
	Metadata   MetadataInput `json:"metadata" validate:"required"`
}

// UpdateBudgetRequest overwrites the whole document. Partial-field merge is
// deliberately unsupported.
type UpdateBudgetRequest struct {
	Name     string        `json:"name" validate:"required,max=200"`
	Deadline *time.Time    `json:"deadline,omitempty"`
	Metadata MetadataInput `json:"metadata" validate:"required"`
}

// ListBudgetsRequest filters the owner listing.
type ListBudgetsRequest struct {
	UserID    int64
	Status    *Status
	Templates bool
	Limit     int `validate:"gte=0,lte=500"`
	Offset    int `validate:"gte=0"`
}

// toMetadata resolves input defaults into the persisted form. Activities
// without an explicit VAT inherit the budget default.
func (in MetadataInput) toMetadata() Metadata {
	m := Metadata{
		SchemaVersion: MetadataSchemaVersion,
		Currency:      in.Currency,
		DefaultVAT:    in.DefaultVAT,
		PDFConfig:     in.PDFConfig,
		Tags:          in.Tags,
		Description:   in.Description,
	}
	for _, r := range in.Resources {
		m.Resources = append(m.Resources, calc.Resource{
			ID:           r.ID,
			Name:         r.Name,
			CostType:     calc.CostType(r.CostType),
			PricePerHour: r.PricePerHour,
			Margin:       r.Margin,
		})
	}
	for _, a := range in.Activities {
		vat := in.DefaultVAT
		if a.VAT != nil {
			vat = *a.VAT
		}
		act := calc.Activity{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			VAT:         vat,
			Margin:      a.Margin,
			Discount:    a.Discount.toDiscount(),
			StartDate:   a.StartDate,
			EndDate:     a.EndDate,
		}
		for _, as := range a.Resources {
			act.Resources = append(act.Resources, calc.Assignment{
				ResourceID: as.ResourceID,
				Hours:      as.Hours,
				FixedPrice: as.FixedPrice,
			})
		}
		m.Activities = append(m.Activities, act)
	}
	m.GeneralDiscount = in.GeneralDiscount.toDiscount()
	if in.GeneralMargin != nil {
		m.GeneralMargin = &calc.Margin{Enabled: in.GeneralMargin.Enabled, Value: in.GeneralMargin.Value}
	}
	return m
}

func (in *DiscountInput) toDiscount() *calc.Discount {
	if in == nil {
		return nil
	}
	return &calc.Discount{
		Enabled: in.Enabled,
		Type:    calc.DiscountType(in.Type),
		Value:   in.Value,
		ApplyOn: calc.ApplyOn(in.ApplyOn),
	}
}
