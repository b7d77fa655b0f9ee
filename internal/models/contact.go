package models

import "time"

// Contact categories form a closed set. The normalizer matches
// free-form oracle output against these case-insensitively.
const (
	CategoryCustomer = "Customer"
	CategorySupplier = "Supplier"
	CategoryPartner  = "Partner"
	CategoryProspect = "Prospect"
	CategoryOther    = "Other"
)

// ContactCategories lists every legal category value, in display order.
var ContactCategories = []string{
	CategoryCustomer,
	CategorySupplier,
	CategoryPartner,
	CategoryProspect,
	CategoryOther,
}

type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Category  string    `json:"category,omitempty"`
	City      string    `json:"city,omitempty"`
	State     string    `json:"state,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Interaction is a logged touch-point against a contact.
type Interaction struct {
	ID        string    `json:"id"`
	ContactID string    `json:"contactId"`
	Type      string    `json:"type"` // call, email, meeting, note
	Summary   string    `json:"summary"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// CustomerSummary aggregates a contact with recent activity.
type CustomerSummary struct {
	Contact          Contact       `json:"contact"`
	InteractionCount int           `json:"interactionCount"`
	Recent           []Interaction `json:"recentInteractions"`
}
