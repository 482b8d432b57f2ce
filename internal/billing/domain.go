package billing

import "time"

// Event types emitted by the payment processor that this projection consumes.
const (
	EventCustomerUpdated       = "customer.updated"
	EventCustomerTaxIDUpdated  = "customer.tax_id.updated"
	EventPaymentMethodAttached = "payment_method.attached"
	EventPaymentMethodDetached = "payment_method.detached"
	EventSetupIntentSucceeded  = "setup_intent.succeeded"
)

// Profile is the local projection of a user's state at the payment
// processor. It is written only by webhook events, never by user requests.
type Profile struct {
	UserID              int64     `json:"userId"`
	StripeCustomerID    string    `json:"stripeCustomerId"`
	IsPaymentSet        bool      `json:"isPaymentSet"`
	StripePaymentMethod *string   `json:"stripePaymentMethod,omitempty"`
	FiscalCode          *string   `json:"fiscalCode,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// WebhookEvent is the envelope posted by the payment processor.
type WebhookEvent struct {
	Type string      `json:"type"`
	Data WebhookData `json:"data"`
}

// WebhookData carries the event payload fields this projection cares about.
// Unknown fields are ignored.
type WebhookData struct {
	UserID          int64   `json:"userId"`
	CustomerID      string  `json:"customerId"`
	PaymentMethodID *string `json:"paymentMethodId,omitempty"`
	FiscalCode      *string `json:"fiscalCode,omitempty"`
}
