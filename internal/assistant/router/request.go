package router

import (
	"time"

	"crm-assistant/internal/assistant/intent"
)

// OperationRequest is the router's terminal output: exactly one intent,
// a payload variant shaped by that intent, and a human-readable
// response text that is never empty. It is built once per inbound
// command and discarded after dispatch.
type OperationRequest struct {
	Intent       intent.Tag
	Payload      Payload
	ResponseText string
}

// Payload is a closed variant; the dispatcher matches exhaustively.
type Payload interface {
	isPayload()
}

// GeneralPayload carries the oracle's free text for GENERAL_QUERY.
type GeneralPayload struct {
	Text string
}

// ContactPayload carries the fields of a new contact.
type ContactPayload struct {
	Name     string
	Email    string
	Phone    string
	Company  string
	Category string
	City     string
	State    string
	Notes    string
}

// LookupPayload serves find/count style intents. Identifier and
// Filters are mutually exclusive lookup modes; when the oracle supplies
// both, the router keeps only the identifier.
type LookupPayload struct {
	Identifier string
	Filters    map[string]interface{}
	Limit      int
}

// UpdatePayload carries an identifier plus field→new-value mapping.
type UpdatePayload struct {
	Identifier string
	Updates    map[string]interface{}
}

// InteractionPayload logs a touch-point against a contact.
type InteractionPayload struct {
	Identifier string
	Type       string
	Summary    string
}

// ExpensePayload carries a new expense report. HasDate distinguishes
// "no date given" from the zero time.
type ExpensePayload struct {
	Title       string
	Amount      float64
	Description string
	ReportDate  time.Time
	HasDate     bool
}

// CountPayload serves COUNT_DATA and METRICS_DATA: a target entity,
// an optional metric, optional filters and an optional limit.
type CountPayload struct {
	Entity  string
	Metric  string
	Filters map[string]interface{}
	Limit   int
}

// RolePayload carries a role-change or user-deletion target.
type RolePayload struct {
	Identifier string
	Role       string
}

func (GeneralPayload) isPayload()     {}
func (ContactPayload) isPayload()     {}
func (LookupPayload) isPayload()      {}
func (UpdatePayload) isPayload()      {}
func (InteractionPayload) isPayload() {}
func (ExpensePayload) isPayload()     {}
func (CountPayload) isPayload()       {}
func (RolePayload) isPayload()        {}
