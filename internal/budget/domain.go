package budget

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/preventa/preventa/internal/budget/calc"
)

// Status is the derived lifecycle state of a budget. Budgets with neither a
// verification nor a deadline carry no derived status.
type Status string

const (
	StatusSigned     Status = "signed"
	StatusExpired    Status = "expired"
	StatusNotExpired Status = "notExpired"
)

// MetadataSchemaVersion is the current version of the metadata document.
// Decoding fails fast on any other version so malformed or legacy blobs
// never degrade into silent zeros downstream.
const MetadataSchemaVersion = 1

// PDFConfig carries the free-text blocks rendered on quote documents.
type PDFConfig struct {
	SenderName       string `json:"senderName,omitempty"`
	SenderDetails    string `json:"senderDetails,omitempty"`
	RecipientName    string `json:"recipientName,omitempty"`
	RecipientDetails string `json:"recipientDetails,omitempty"`
	ContractTerms    string `json:"contractTerms,omitempty"`
}

// Metadata is the structured content of a budget: the full composition the
// cost engine runs over, plus document settings. It is persisted as a single
// JSONB document and overwritten whole on save (no merge semantics).
type Metadata struct {
	SchemaVersion   int             `json:"schemaVersion"`
	Resources       []calc.Resource `json:"resources"`
	Activities      []calc.Activity `json:"activities"`
	Currency        string          `json:"currency"`
	DefaultVAT      float64         `json:"defaultVat"`
	GeneralDiscount *calc.Discount  `json:"generalDiscount,omitempty"`
	GeneralMargin   *calc.Margin    `json:"generalMargin,omitempty"`
	PDFConfig       PDFConfig       `json:"pdfConfig"`
	Tags            []string        `json:"budgetTags,omitempty"`
	Description     string          `json:"budgetDescription,omitempty"`
}

// ErrUnsupportedSchema is wrapped by DecodeMetadata on version mismatch.
var ErrUnsupportedSchema = fmt.Errorf("unsupported metadata schema version")

// DecodeMetadata parses a stored metadata document and rejects unknown
// schema versions.
func DecodeMetadata(raw []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	if m.SchemaVersion != MetadataSchemaVersion {
		return Metadata{}, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedSchema, m.SchemaVersion, MetadataSchemaVersion)
	}
	return m, nil
}

// CalcInput adapts the metadata for the cost engine.
func (m *Metadata) CalcInput() calc.Input {
	return calc.Input{
		Resources:       m.Resources,
		Activities:      m.Activities,
		GeneralDiscount: m.GeneralDiscount,
		GeneralMargin:   m.GeneralMargin,
	}
}

// RemoveResource deletes a resource and cascades the removal to every
// assignment referencing it. Referential integrity between resources and
// assignments is maintained here, not by the database. Returns the number
// of assignments dropped.
func (m *Metadata) RemoveResource(resourceID string) int {
	kept := m.Resources[:0]
	for _, r := range m.Resources {
		if r.ID != resourceID {
			kept = append(kept, r)
		}
	}
	m.Resources = kept
	return m.DropDanglingAssignments()
}

// DropDanglingAssignments removes assignments whose resource no longer
// exists and returns how many were dropped. Run on every save so a deleted
// resource never lingers inside an activity; callers log a non-zero count.
func (m *Metadata) DropDanglingAssignments() int {
	known := make(map[string]struct{}, len(m.Resources))
	for _, r := range m.Resources {
		known[r.ID] = struct{}{}
	}
	dropped := 0
	for i := range m.Activities {
		kept := m.Activities[i].Resources[:0]
		for _, a := range m.Activities[i].Resources {
			if _, ok := known[a.ResourceID]; ok {
				kept = append(kept, a)
			} else {
				dropped++
			}
		}
		m.Activities[i].Resources = kept
	}
	return dropped
}

// Totals runs the cost engine over the composition.
func (m *Metadata) Totals() calc.Result {
	return calc.Totals(m.CalcInput())
}

// Budget is the persisted quote aggregate.
type Budget struct {
	ID             uuid.UUID  `json:"id"`
	PublicID       *string    `json:"publicId,omitempty"`
	UserID         *int64     `json:"userId,omitempty"`
	IsTemplate     bool       `json:"isTemplate"`
	Name           string     `json:"name"`
	Metadata       Metadata   `json:"metadata"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	VerificationID *uuid.UUID `json:"verificationId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Signed reports whether the budget carries a linked verification.
func (b *Budget) Signed() bool {
	return b.VerificationID != nil
}

// DerivedStatus computes the status at the given instant. The second return
// is false for budgets with no verification and no deadline, which belong
// only to the unfiltered listing.
func (b *Budget) DerivedStatus(now time.Time) (Status, bool) {
	if b.VerificationID != nil {
		return StatusSigned, true
	}
	if b.Deadline == nil {
		return "", false
	}
	if b.Deadline.Before(now) {
		return StatusExpired, true
	}
	return StatusNotExpired, true
}

// Totals runs the cost engine over the current composition.
func (b *Budget) Totals() calc.Result {
	return b.Metadata.Totals()
}

// StatusCounts summarises a listing for the dashboard filter chips.
type StatusCounts struct {
	All        int `json:"all"`
	Signed     int `json:"signed"`
	Expired    int `json:"expired"`
	NotExpired int `json:"notExpired"`
}
