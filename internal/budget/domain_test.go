package budget_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preventa/preventa/internal/budget"
	"github.com/preventa/preventa/internal/budget/calc"
)

func TestDecodeMetadata(t *testing.T) {
	raw := []byte(`{"schemaVersion":1,"currency":"EUR","defaultVat":22,"resources":[],"activities":[]}`)
	m, err := budget.DecodeMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, "EUR", m.Currency)
	assert.Equal(t, 22.0, m.DefaultVAT)
}

func TestDecodeMetadataRejectsUnknownSchema(t *testing.T) {
	raw := []byte(`{"schemaVersion":2,"currency":"EUR"}`)
	_, err := budget.DecodeMetadata(raw)
	require.ErrorIs(t, err, budget.ErrUnsupportedSchema)
}

func TestDecodeMetadataRejectsMalformedJSON(t *testing.T) {
	_, err := budget.DecodeMetadata([]byte(`{"schemaVersion":`))
	require.Error(t, err)
}

func TestRemoveResourceCascades(t *testing.T) {
	m := budget.Metadata{
		SchemaVersion: budget.MetadataSchemaVersion,
		Resources: []calc.Resource{
			{ID: "r1", Name: "Dev", CostType: calc.CostTypeHourly, PricePerHour: 50},
			{ID: "r2", Name: "Design", CostType: calc.CostTypeHourly, PricePerHour: 40},
		},
		Activities: []calc.Activity{
			{ID: "a1", VAT: 22, Resources: []calc.Assignment{
				{ResourceID: "r1", Hours: 10},
				{ResourceID: "r2", Hours: 5},
			}},
		},
	}

	dropped := m.RemoveResource("r1")
	assert.Equal(t, 1, dropped)
	require.Len(t, m.Resources, 1)
	assert.Equal(t, "r2", m.Resources[0].ID)
	require.Len(t, m.Activities[0].Resources, 1)
	assert.Equal(t, "r2", m.Activities[0].Resources[0].ResourceID)
}

func TestDropDanglingAssignments(t *testing.T) {
	m := budget.Metadata{
		Resources: []calc.Resource{
			{ID: "r1", CostType: calc.CostTypeHourly, PricePerHour: 50},
		},
		Activities: []calc.Activity{
			{ID: "a1", Resources: []calc.Assignment{
				{ResourceID: "r1", Hours: 2},
				{ResourceID: "ghost", Hours: 8},
			}},
		},
	}

	assert.Equal(t, 1, m.DropDanglingAssignments())
	assert.Equal(t, 0, m.DropDanglingAssignments())
	require.Len(t, m.Activities[0].Resources, 1)
}

func TestDerivedStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verification := uuid.New()

	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	tests := []struct {
		name       string
		budget     budget.Budget
		wantStatus budget.Status
		wantOK     bool
	}{
		{
			name:       "signed wins over deadline",
			budget:     budget.Budget{VerificationID: &verification, Deadline: &past},
			wantStatus: budget.StatusSigned,
			wantOK:     true,
		},
		{
			name:       "deadline one second ago",
			budget:     budget.Budget{Deadline: &past},
			wantStatus: budget.StatusExpired,
			wantOK:     true,
		},
		{
			name:       "deadline one second ahead",
			budget:     budget.Budget{Deadline: &future},
			wantStatus: budget.StatusNotExpired,
			wantOK:     true,
		},
		{
			name:   "no verification and no deadline",
			budget: budget.Budget{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok := tt.budget.DerivedStatus(now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}
