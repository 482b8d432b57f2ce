package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureResources() []Resource {
	return []Resource{
		{ID: "r1", Name: "Senior Dev", CostType: CostTypeHourly, PricePerHour: 50},
		{ID: "r2", Name: "Licenses", CostType: CostTypeQuantity, PricePerHour: 12},
		{ID: "r3", Name: "Setup Fee", CostType: CostTypeFixed, PricePerHour: 999},
	}
}

func TestResourceCostHourly(t *testing.T) {
	cost := ResourceCost(fixtureResources(), Assignment{ResourceID: "r1", Hours: 10})
	assert.Equal(t, 500.0, cost)
}

func TestResourceCostQuantity(t *testing.T) {
	cost := ResourceCost(fixtureResources(), Assignment{ResourceID: "r2", Hours: 3})
	assert.Equal(t, 36.0, cost)
}

func TestResourceCostFixedIgnoresRate(t *testing.T) {
	cost := ResourceCost(fixtureResources(), Assignment{ResourceID: "r3", Hours: 40, FixedPrice: 250})
	assert.Equal(t, 250.0, cost, "fixed cost resources use the assignment fixed price, never the rate")
}

func TestResourceCostDanglingReference(t *testing.T) {
	cost := ResourceCost(fixtureResources(), Assignment{ResourceID: "gone", Hours: 10, FixedPrice: 99})
	assert.Equal(t, 0.0, cost)
}

func TestActivitySubtotal(t *testing.T) {
	act := Activity{Resources: []Assignment{
		{ResourceID: "r1", Hours: 10},
		{ResourceID: "r3", FixedPrice: 100},
		{ResourceID: "missing", Hours: 5},
	}}
	assert.Equal(t, 600.0, ActivitySubtotal(fixtureResources(), act))
}

func TestActivityDiscountAmount(t *testing.T) {
	resources := []Resource{{ID: "r", CostType: CostTypeHourly, PricePerHour: 100}}
	base := Activity{VAT: 22, Resources: []Assignment{{ResourceID: "r", Hours: 10}}}

	tests := []struct {
		name     string
		discount *Discount
		want     float64
	}{
		{"nil discount", nil, 0},
		{"disabled", &Discount{Enabled: false, Type: DiscountTypePercentage, Value: 10, ApplyOn: ApplyOnTaxable}, 0},
		{"non-positive value", &Discount{Enabled: true, Type: DiscountTypePercentage, Value: 0, ApplyOn: ApplyOnTaxable}, 0},
		{"percentage on taxable", &Discount{Enabled: true, Type: DiscountTypePercentage, Value: 10, ApplyOn: ApplyOnTaxable}, 100},
		{"percentage on withVat", &Discount{Enabled: true, Type: DiscountTypePercentage, Value: 10, ApplyOn: ApplyOnWithVAT}, 122},
		{"fixed", &Discount{Enabled: true, Type: DiscountTypeFixed, Value: 75, ApplyOn: ApplyOnTaxable}, 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := base
			act.Discount = tt.discount
			assert.InDelta(t, tt.want, ActivityDiscountAmount(resources, act), 1e-9)
		})
	}
}

// Scenario B: subtotal 1000, vat 22, 10% discount on taxable.
func TestActivityTotalWithVATScenario(t *testing.T) {
	resources := []Resource{{ID: "r", CostType: CostTypeHourly, PricePerHour: 100}}
	act := Activity{
		VAT:       22,
		Discount:  &Discount{Enabled: true, Type: DiscountTypePercentage, Value: 10, ApplyOn: ApplyOnTaxable},
		Resources: []Assignment{{ResourceID: "r", Hours: 10}},
	}
	assert.InDelta(t, 100.0, ActivityDiscountAmount(resources, act), 1e-9)
	assert.InDelta(t, 1120.0, ActivityTotalWithVAT(resources, act), 1e-9)
}

// VAT is computed on the undiscounted subtotal for any discount setup.
func TestActivityTotalWithVATProperty(t *testing.T) {
	resources := fixtureResources()
	discounts := []*Discount{
		nil,
		{Enabled: true, Type: DiscountTypePercentage, Value: 15, ApplyOn: ApplyOnTaxable},
		{Enabled: true, Type: DiscountTypePercentage, Value: 15, ApplyOn: ApplyOnWithVAT},
		{Enabled: true, Type: DiscountTypeFixed, Value: 40, ApplyOn: ApplyOnWithVAT},
	}
	for _, d := range discounts {
		act := Activity{
			VAT:      22,
			Discount: d,
			Resources: []Assignment{
				{ResourceID: "r1", Hours: 8},
				{ResourceID: "r2", Hours: 5},
			},
		}
		subtotal := ActivitySubtotal(resources, act)
		want := subtotal*(1+act.VAT/100) - ActivityDiscountAmount(resources, act)
		assert.Equal(t, want, ActivityTotalWithVAT(resources, act))
	}
}

// Scenario C: activity totals 1120 and 500 with VAT, then a fixed general
// discount of 100 on the running total.
func TestTotalsScenario(t *testing.T) {
	resources := []Resource{
		{ID: "a", CostType: CostTypeHourly, PricePerHour: 100},
		{ID: "b", CostType: CostTypeFixed},
	}
	activities := []Activity{
		{
			ID: "act1", VAT: 22,
			Discount:  &Discount{Enabled: true, Type: DiscountTypePercentage, Value: 10, ApplyOn: ApplyOnTaxable},
			Resources: []Assignment{{ResourceID: "a", Hours: 10}},
		},
		{
			ID: "act2", VAT: 0,
			Resources: []Assignment{{ResourceID: "b", FixedPrice: 500}},
		},
	}

	res := Totals(Input{Resources: resources, Activities: activities})
	assert.InDelta(t, 1500.0, res.Subtotal, 1e-9)
	assert.InDelta(t, 220.0, res.VATTotal, 1e-9)
	assert.InDelta(t, 100.0, res.ActivityDiscounts, 1e-9)
	assert.InDelta(t, 1620.0, res.TotalBeforeGeneralDiscount, 1e-9)
	assert.InDelta(t, 1620.0, res.GrandTotal, 1e-9)

	withDiscount := Totals(Input{
		Resources:       resources,
		Activities:      activities,
		GeneralDiscount: &Discount{Enabled: true, Type: DiscountTypeFixed, Value: 100, ApplyOn: ApplyOnWithVAT},
	})
	assert.InDelta(t, 100.0, withDiscount.GeneralDiscountAmount, 1e-9)
	assert.InDelta(t, 1520.0, withDiscount.GrandTotal, 1e-9)
}

func TestTotalsGeneralMarginBeforeDiscount(t *testing.T) {
	resources := []Resource{{ID: "r", CostType: CostTypeFixed}}
	activities := []Activity{{ID: "a", Resources: []Assignment{{ResourceID: "r", FixedPrice: 1000}}}}

	res := Totals(Input{
		Resources:       resources,
		Activities:      activities,
		GeneralMargin:   &Margin{Enabled: true, Value: 10},
		GeneralDiscount: &Discount{Enabled: true, Type: DiscountTypePercentage, Value: 10, ApplyOn: ApplyOnWithVAT},
	})
	// 1000 +10% margin = 1100, then 10% discount on the margin-adjusted total.
	assert.InDelta(t, 100.0, res.GeneralMarginAmount, 1e-9)
	assert.InDelta(t, 110.0, res.GeneralDiscountAmount, 1e-9)
	assert.InDelta(t, 990.0, res.GrandTotal, 1e-9)
}

func TestTotalsGeneralDiscountTaxableBase(t *testing.T) {
	resources := []Resource{{ID: "r", CostType: CostTypeFixed}}
	activities := []Activity{{ID: "a", VAT: 22, Resources: []Assignment{{ResourceID: "r", FixedPrice: 1000}}}}

	res := Totals(Input{
		Resources:       resources,
		Activities:      activities,
		GeneralDiscount: &Discount{Enabled: true, Type: DiscountTypePercentage, Value: 10, ApplyOn: ApplyOnTaxable},
	})
	// Taxable base is the grand subtotal, not the running total.
	assert.InDelta(t, 100.0, res.GeneralDiscountAmount, 1e-9)
	assert.InDelta(t, 1120.0, res.GrandTotal, 1e-9)
}

func TestTotalsDanglingAssignmentsCountedNotSummed(t *testing.T) {
	activities := []Activity{{
		ID:  "a",
		VAT: 22,
		Resources: []Assignment{
			{ResourceID: "ghost", Hours: 10, FixedPrice: 500},
			{ResourceID: "ghost2", Hours: 3},
		},
	}}

	res := Totals(Input{Activities: activities})
	assert.Equal(t, 2, res.DanglingAssignments)
	assert.Equal(t, 0.0, res.Subtotal)
	assert.Equal(t, 0.0, res.GrandTotal)
}

// Pure function property: identical inputs yield identical outputs.
func TestTotalsDeterministic(t *testing.T) {
	in := Input{
		Resources: fixtureResources(),
		Activities: []Activity{
			{ID: "a1", VAT: 22, Resources: []Assignment{{ResourceID: "r1", Hours: 7.5}, {ResourceID: "r2", Hours: 3}}},
			{ID: "a2", VAT: 10, Discount: &Discount{Enabled: true, Type: DiscountTypePercentage, Value: 12.5, ApplyOn: ApplyOnWithVAT},
				Resources: []Assignment{{ResourceID: "r3", FixedPrice: 420.42}}},
		},
		GeneralMargin:   &Margin{Enabled: true, Value: 7},
		GeneralDiscount: &Discount{Enabled: true, Type: DiscountTypeFixed, Value: 33.33, ApplyOn: ApplyOnWithVAT},
	}

	first := Totals(in)
	second := Totals(in)
	require.Equal(t, first, second)
}

func TestTotalsEmptyQuote(t *testing.T) {
	res := Totals(Input{})
	assert.Zero(t, res.Subtotal)
	assert.Zero(t, res.GrandTotal)
	assert.Empty(t, res.Activities)
}
