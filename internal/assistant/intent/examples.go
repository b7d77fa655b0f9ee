package intent

// ExamplesVersion identifies the few-shot fixture set. Bump it when
// the pairs below change so prompt regressions are traceable.
const ExamplesVersion = "2025-08-01"

// Example pairs a sample command with the structured call the oracle
// is expected to produce. The set serves double duty: it primes the
// oracle prompt and it feeds the router's golden regression tests.
type Example struct {
	Command string
	Call    Tag
	Args    map[string]interface{}
}

var examples = []Example{
	{
		Command: "add John Smith from Acme Corp as a customer, email john@acme.com",
		Call:    AddContact,
		Args: map[string]interface{}{
			"name":     "John Smith",
			"company":  "Acme Corp",
			"category": "Customer",
			"email":    "john@acme.com",
		},
	},
	{
		Command: "find alice johnson",
		Call:    FindContact,
		Args: map[string]interface{}{
			"identifier": "alice johnson",
		},
	},
	{
		Command: "show me all suppliers in austin",
		Call:    FindContact,
		Args: map[string]interface{}{
			"filters": map[string]interface{}{
				"category": "Supplier",
				"city":     "austin",
			},
		},
	},
	{
		Command: "change Bob Lee's email to bob@newmail.com",
		Call:    UpdateContact,
		Args: map[string]interface{}{
			"identifier": "Bob Lee",
			"updates": map[string]interface{}{
				"email": "bob@newmail.com",
			},
		},
	},
	{
		Command: "delete Alice Johnson",
		Call:    DeleteContact,
		Args: map[string]interface{}{
			"identifier": "Alice Johnson",
		},
	},
	{
		Command: "log a call with Dana White about the Q3 renewal",
		Call:    LogInteraction,
		Args: map[string]interface{}{
			"identifier": "Dana White",
			"type":       "call",
			"summary":    "Discussed the Q3 renewal",
		},
	},
	{
		Command: "give me a summary of customer Acme Corp",
		Call:    GetCustomerSummary,
		Args: map[string]interface{}{
			"identifier": "Acme Corp",
		},
	},
	{
		Command: "create an expense report for $240.50 titled client dinner",
		Call:    AddExpenseReport,
		Args: map[string]interface{}{
			"title":  "client dinner",
			"amount": 240.50,
		},
	},
	{
		Command: "how many draft expense reports are there?",
		Call:    CountExpenseReports,
		Args: map[string]interface{}{
			"filters": map[string]interface{}{
				"status": "Draft",
			},
		},
	},
	{
		Command: "find expense report 1042",
		Call:    FindExpenseReport,
		Args: map[string]interface{}{
			"identifier": "1042",
		},
	},
	{
		Command: "how many books under $15 do we have?",
		Call:    CountBooks,
		Args: map[string]interface{}{
			"filters": map[string]interface{}{
				"priceFilter": "<15",
			},
		},
	},
	{
		Command: "count contacts in category prospect",
		Call:    CountData,
		Args: map[string]interface{}{
			"entity": "contacts",
			"filters": map[string]interface{}{
				"category": "prospect",
			},
		},
	},
	{
		Command: "what's the total of approved expense reports?",
		Call:    MetricsData,
		Args: map[string]interface{}{
			"entity": "expense_reports",
			"metric": "total",
			"filters": map[string]interface{}{
				"status": "Approved",
			},
		},
	},
	{
		Command: "list events in dallas between 2023-11-01 and 2023-11-30",
		Call:    FindEvents,
		Args: map[string]interface{}{
			"filters": map[string]interface{}{
				"city":      "dallas",
				"startDate": "2023-11-01",
				"endDate":   "2023-11-30",
			},
		},
	},
	{
		Command: "make carol@corp.com a viewer",
		Call:    SetUserRole,
		Args: map[string]interface{}{
			"identifier": "carol@corp.com",
			"role":       "viewer",
		},
	},
}

// Examples returns the fixture set in stable order.
func Examples() []Example {
	out := make([]Example, len(examples))
	copy(out, examples)
	return out
}
