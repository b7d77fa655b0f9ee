package models

import "time"

// Expense report statuses form a closed set.
const (
	StatusDraft     = "Draft"
	StatusSubmitted = "Submitted"
	StatusApproved  = "Approved"
	StatusRejected  = "Rejected"
	StatusPaid      = "Paid"
)

// ExpenseReportStatuses lists every legal status value.
var ExpenseReportStatuses = []string{
	StatusDraft,
	StatusSubmitted,
	StatusApproved,
	StatusRejected,
	StatusPaid,
}

type ExpenseReport struct {
	ID          string    `json:"id"`
	Number      int64     `json:"number"` // assigned from the atomic counter
	Title       string    `json:"title"`
	Submitter   string    `json:"submitter"`
	Status      string    `json:"status"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description,omitempty"`
	ReportDate  time.Time `json:"reportDate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
