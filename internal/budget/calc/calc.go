// Package calc implements the budget cost engine: pure functions deriving
// every monetary figure of a quote from its resources and activities. The
// engine performs no I/O, never mutates its inputs and never fails; a
// dangling resource reference contributes zero and is reported through the
// DanglingAssignments counter so callers can log it.
//
// All values are raw float64 with no intermediate rounding. Percentages are
// plain numbers (22 means 22%).
package calc

// CostType classifies how a resource is billed.
type CostType string

const (
	CostTypeHourly   CostType = "hourly"
	CostTypeQuantity CostType = "quantity"
	CostTypeFixed    CostType = "fixed"
)

// DiscountType selects between a percentage and a fixed amount.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// ApplyOn selects the base a discount is computed against.
type ApplyOn string

const (
	ApplyOnTaxable ApplyOn = "taxable"
	ApplyOnWithVAT ApplyOn = "withVat"
)

// Resource is a billable unit referenced by activity assignments.
type Resource struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	CostType     CostType `json:"costType"`
	PricePerHour float64  `json:"pricePerHour"`
	Margin       *float64 `json:"margin,omitempty"`
}

// Assignment binds a resource to an activity. Hours is an hour count for
// hourly resources and a raw quantity for quantity resources. FixedPrice is
// read only when the referenced resource is fixed-cost.
type Assignment struct {
	ResourceID string  `json:"resourceId"`
	Hours      float64 `json:"hours"`
	FixedPrice float64 `json:"fixedPrice"`
}

// Discount describes an activity-level or quote-level reduction.
type Discount struct {
	Enabled bool         `json:"enabled"`
	Type    DiscountType `json:"type"`
	Value   float64      `json:"value"`
	ApplyOn ApplyOn      `json:"applyOn"`
}

// Margin is a percentage markup stage.
type Margin struct {
	Enabled bool    `json:"enabled"`
	Value   float64 `json:"value"`
}

// Activity is a unit of work consuming resource assignments. StartDate and
// EndDate are ISO date strings used only by timeline rendering; the engine
// ignores them.
type Activity struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	VAT         float64      `json:"vat"`
	Margin      *float64     `json:"margin,omitempty"`
	Discount    *Discount    `json:"discount,omitempty"`
	Resources   []Assignment `json:"resources"`
	StartDate   string       `json:"startDate,omitempty"`
	EndDate     string       `json:"endDate,omitempty"`
}

// ResourceCost returns the cost contributed by a single assignment. A
// missing resource reference yields zero.
func ResourceCost(resources []Resource, a Assignment) float64 {
	res := findResource(resources, a.ResourceID)
	if res == nil {
		return 0
	}
	switch res.CostType {
	case CostTypeHourly, CostTypeQuantity:
		return a.Hours * res.PricePerHour
	case CostTypeFixed:
		return a.FixedPrice
	}
	return 0
}

// ActivitySubtotal is the taxable, pre-discount base of an activity.
func ActivitySubtotal(resources []Resource, act Activity) float64 {
	var sum float64
	for _, a := range act.Resources {
		sum += ResourceCost(resources, a)
	}
	return sum
}

// ActivityDiscountAmount computes the discount against the pre-discount
// base selected by ApplyOn. Disabled or non-positive discounts yield zero.
func ActivityDiscountAmount(resources []Resource, act Activity) float64 {
	if act.Discount == nil || !act.Discount.Enabled || act.Discount.Value <= 0 {
		return 0
	}
	subtotal := ActivitySubtotal(resources, act)
	return discountAmount(*act.Discount, subtotal, subtotal+subtotal*act.VAT/100)
}

// ActivityTotalWithVAT is subtotal plus VAT minus the activity discount.
// VAT is always computed on the undiscounted subtotal; VAT and discount are
// independent terms, not chained percentages.
func ActivityTotalWithVAT(resources []Resource, act Activity) float64 {
	subtotal := ActivitySubtotal(resources, act)
	return subtotal + subtotal*act.VAT/100 - ActivityDiscountAmount(resources, act)
}

// Input groups everything the grand aggregation needs.
type Input struct {
	Resources       []Resource
	Activities      []Activity
	GeneralDiscount *Discount
	GeneralMargin   *Margin
}

// ActivityBreakdown carries the per-activity figures for documents and the
// live editor. MarginAmount is informational: activity margins are shown on
// documents but do not alter the aggregate formula.
type ActivityBreakdown struct {
	ActivityID     string  `json:"activityId"`
	Subtotal       float64 `json:"subtotal"`
	VATAmount      float64 `json:"vatAmount"`
	DiscountAmount float64 `json:"discountAmount"`
	MarginAmount   float64 `json:"marginAmount"`
	TotalWithVAT   float64 `json:"totalWithVat"`
}

// Result holds the grand aggregates of a whole quote.
type Result struct {
	Subtotal                   float64             `json:"subtotal"`
	VATTotal                   float64             `json:"vatTotal"`
	ActivityDiscounts          float64             `json:"activityDiscounts"`
	TotalBeforeGeneralDiscount float64             `json:"totalBeforeGeneralDiscount"`
	GeneralMarginAmount        float64             `json:"generalMarginAmount"`
	GeneralDiscountAmount      float64             `json:"generalDiscountAmount"`
	GrandTotal                 float64             `json:"grandTotal"`
	Activities                 []ActivityBreakdown `json:"activities"`
	DanglingAssignments        int                 `json:"danglingAssignments"`
}

// Totals aggregates an entire quote. Stage order: per-activity totals, then
// the general margin, then the general discount. The margin stage sits
// before the discount stage; a withVat general discount is computed on the
// margin-adjusted running total, a taxable one on the grand subtotal.
func Totals(in Input) Result {
	res := Result{}
	for _, act := range in.Activities {
		subtotal := ActivitySubtotal(in.Resources, act)
		vat := subtotal * act.VAT / 100
		discount := ActivityDiscountAmount(in.Resources, act)

		b := ActivityBreakdown{
			ActivityID:     act.ID,
			Subtotal:       subtotal,
			VATAmount:      vat,
			DiscountAmount: discount,
			TotalWithVAT:   subtotal + vat - discount,
		}
		if act.Margin != nil {
			b.MarginAmount = subtotal * *act.Margin / 100
		}
		res.Activities = append(res.Activities, b)

		res.Subtotal += subtotal
		res.VATTotal += vat
		res.ActivityDiscounts += discount

		for _, a := range act.Resources {
			if findResource(in.Resources, a.ResourceID) == nil {
				res.DanglingAssignments++
			}
		}
	}

	res.TotalBeforeGeneralDiscount = res.Subtotal + res.VATTotal - res.ActivityDiscounts
	running := res.TotalBeforeGeneralDiscount

	if in.GeneralMargin != nil && in.GeneralMargin.Enabled && in.GeneralMargin.Value != 0 {
		res.GeneralMarginAmount = running * in.GeneralMargin.Value / 100
		running += res.GeneralMarginAmount
	}

	if in.GeneralDiscount != nil && in.GeneralDiscount.Enabled && in.GeneralDiscount.Value > 0 {
		res.GeneralDiscountAmount = discountAmount(*in.GeneralDiscount, res.Subtotal, running)
	}

	res.GrandTotal = running - res.GeneralDiscountAmount
	return res
}

func discountAmount(d Discount, taxableBase, withVATBase float64) float64 {
	base := taxableBase
	if d.ApplyOn == ApplyOnWithVAT {
		base = withVATBase
	}
	if d.Type == DiscountTypePercentage {
		return base * d.Value / 100
	}
	return d.Value
}

func findResource(resources []Resource, id string) *Resource {
	for i := range resources {
		if resources[i].ID == id {
			return &resources[i]
		}
	}
	return nil
}
