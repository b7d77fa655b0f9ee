// Package intent declares the closed set of assistant operations and
// the argument shape each one extracts from a user command.
package intent

import "crm-assistant/internal/models"

// Tag names one supported CRM operation.
type Tag string

const (
	AddContact    Tag = "ADD_CONTACT"
	FindContact   Tag = "FIND_CONTACT"
	UpdateContact Tag = "UPDATE_CONTACT"
	DeleteContact Tag = "DELETE_CONTACT"

	LogInteraction     Tag = "LOG_INTERACTION"
	GetCustomerSummary Tag = "GET_CUSTOMER_SUMMARY"

	AddExpenseReport    Tag = "ADD_EXPENSE_REPORT"
	FindExpenseReport   Tag = "FIND_EXPENSE_REPORT"
	UpdateExpenseReport Tag = "UPDATE_EXPENSE_REPORT"
	DeleteExpenseReport Tag = "DELETE_EXPENSE_REPORT"
	CountExpenseReports Tag = "COUNT_EXPENSE_REPORTS"

	CountData   Tag = "COUNT_DATA"
	MetricsData Tag = "METRICS_DATA"
	FindBooks   Tag = "FIND_BOOKS"
	CountBooks  Tag = "COUNT_BOOKS"
	FindEvents  Tag = "FIND_EVENTS"
	CountEvents Tag = "COUNT_EVENTS"

	ListUsers   Tag = "LIST_USERS"
	SetUserRole Tag = "SET_USER_ROLE"
	DeleteUser  Tag = "DELETE_USER"

	GeneralQuery Tag = "GENERAL_QUERY"
)

// CountEntities lists the targets COUNT_DATA / METRICS_DATA accept.
var CountEntities = []string{
	"contacts", "expense_reports", "books", "events", "users", "interactions",
}

// Roles a SET_USER_ROLE command may name.
var AssignableRoles = []string{
	"applicant", "viewer", "bookkeeper", "staff", "admin", "master-admin",
}

// Declaration defines one intent's argument contract. Parameters is a
// JSON-schema object map, used both to build the oracle's function
// declarations and, independently, to validate what comes back.
type Declaration struct {
	Name        Tag
	Description string
	Parameters  map[string]interface{}
	Required    []string
}

func strProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func enumProp(desc string, values []string) map[string]interface{} {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return map[string]interface{}{"type": "string", "description": desc, "enum": enum}
}

func numProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": desc}
}

func objProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "object", "description": desc}
}

func params(props map[string]interface{}, required ...string) map[string]interface{} {
	p := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		req := make([]interface{}, len(required))
		for i, r := range required {
			req[i] = r
		}
		p["required"] = req
	}
	return p
}

// identifierDesc documents the fuzzy-lookup contract shared by every
// identifier-taking intent.
const identifierDesc = "Free-text identifier: a contact name, email, report number or title"

var catalog = []Declaration{
	{
		Name:        AddContact,
		Description: "Create a new contact record",
		Parameters: params(map[string]interface{}{
			"name":     strProp("Full name of the contact"),
			"email":    strProp("Email address"),
			"phone":    strProp("Phone number"),
			"company":  strProp("Company or organization"),
			"category": enumProp("Contact category", models.ContactCategories),
			"city":     strProp("City"),
			"state":    strProp("Two-letter state code"),
			"notes":    strProp("Free-form notes"),
		}, "name"),
		Required: []string{"name"},
	},
	{
		Name:        FindContact,
		Description: "Look up contacts by identifier or by filters",
		Parameters: params(map[string]interface{}{
			"identifier": strProp(identifierDesc),
			"filters":    objProp("Field constraints such as category, city or state"),
			"limit":      numProp("Maximum number of results"),
		}),
	},
	{
		Name:        UpdateContact,
		Description: "Update fields on an existing contact",
		Parameters: params(map[string]interface{}{
			"identifier": strProp(identifierDesc),
			"updates":    objProp("Mapping of field name to new value"),
		}, "identifier", "updates"),
		Required: []string{"identifier", "updates"},
	},
	{
		Name:        DeleteContact,
		Description: "Delete a contact",
		Parameters: params(map[string]interface{}{
			"identifier": strProp(identifierDesc),
		}, "identifier"),
		Required: []string{"identifier"},
	},
	{
		Name:        LogInteraction,
		Description: "Log a call, email, meeting or note against a contact",
		Parameters: params(map[string]interface{}{
			"identifier": strProp(identifierDesc),
			"type":       enumProp("Interaction type", []string{"call", "email", "meeting", "note"}),
			"summary":    strProp("What happened"),
		}, "identifier", "summary"),
		Required: []string{"identifier", "summary"},
	},
	{
		Name:        GetCustomerSummary,
		Description: "Summarize a contact with recent interactions",
		Parameters: params(map[string]interface{}{
			"identifier": strProp(identifierDesc),
		}, "identifier"),
		Required: []string{"identifier"},
	},
	{
		Name:        AddExpenseReport,
		Description: "Create a new expense report; its number is assigned automatically",
		Parameters: params(map[string]interface{}{
			"title":       strProp("Report title"),
			"amount":      numProp("Total amount in dollars"),
			"description": strProp("Details of the expense"),
			"reportDate":  strProp("Report date, YYYY-MM-DD"),
		}, "title", "amount"),
		Required: []string{"title", "amount"},
	},
	{
		Name:        FindExpenseReport,
		Description: "Look up expense reports by identifier or by filters",
		Parameters: params(map[string]interface{}{
			"identifier": strProp(identifierDesc),
			"filters":    objProp("Field constraints such as status, submitter, priceFilter, startDate or endDate"),
			"limit":      numProp("Maximum number of results"),
		}),
	},
	{
		Name:        UpdateExpenseReport,
		Description: "Update fields on an existing expense report",
		Parameters: params(map[string]interface{}{
			"identifier": strProp(identifierDesc),
			"updates":    objProp("Mapping of field name to new value"),
		}, "identifier", "updates"),
		Required: []string{"identifier", "updates"},
	},
	{
		Name:        DeleteExpenseReport,
		Description: "Delete an expense report",
		Parameters: params(map[string]interface{}{
			"identifier": strProp(identifierDesc),
		}, "identifier"),
		Required: []string{"identifier"},
	},
	{
		Name:        CountExpenseReports,
		Description: "Count expense reports, optionally filtered",
		Parameters: params(map[string]interface{}{
			"filters": objProp("Field constraints such as status or submitter"),
		}),
	},
	{
		Name:        CountData,
		Description: "Count records of a given entity, optionally filtered",
		Parameters: params(map[string]interface{}{
			"entity":  enumProp("Entity to count", CountEntities),
			"filters": objProp("Field constraints"),
			"limit":   numProp("Maximum number of results"),
		}, "entity"),
		Required: []string{"entity"},
	},
	{
		Name:        MetricsData,
		Description: "Compute a metric (total or average amount/price) over an entity",
		Parameters: params(map[string]interface{}{
			"entity":  enumProp("Entity to aggregate", CountEntities),
			"metric":  enumProp("Aggregate to compute", []string{"total", "average"}),
			"filters": objProp("Field constraints"),
		}, "entity"),
		Required: []string{"entity"},
	},
	{
		Name:        FindBooks,
		Description: "Look up legacy book records by filters",
		Parameters: params(map[string]interface{}{
			"filters": objProp("Field constraints such as author, publisher, priceFilter or signed"),
			"limit":   numProp("Maximum number of results"),
		}),
	},
	{
		Name:        CountBooks,
		Description: "Count legacy book records, optionally filtered",
		Parameters: params(map[string]interface{}{
			"filters": objProp("Field constraints such as author, publisher, priceFilter or signed"),
		}),
	},
	{
		Name:        FindEvents,
		Description: "Look up legacy event records by filters",
		Parameters: params(map[string]interface{}{
			"filters": objProp("Field constraints such as city, state, startDate or endDate"),
			"limit":   numProp("Maximum number of results"),
		}),
	},
	{
		Name:        CountEvents,
		Description: "Count legacy event records, optionally filtered",
		Parameters: params(map[string]interface{}{
			"filters": objProp("Field constraints such as city, state, startDate or endDate"),
		}),
	},
	{
		Name:        ListUsers,
		Description: "List user accounts and their roles",
		Parameters:  params(map[string]interface{}{}),
	},
	{
		Name:        SetUserRole,
		Description: "Change a user's role",
		Parameters: params(map[string]interface{}{
			"identifier": strProp("User email or display name"),
			"role":       enumProp("New role", AssignableRoles),
		}, "identifier", "role"),
		Required: []string{"identifier", "role"},
	},
	{
		Name:        DeleteUser,
		Description: "Delete a user account",
		Parameters: params(map[string]interface{}{
			"identifier": strProp("User email or display name"),
		}, "identifier"),
		Required: []string{"identifier"},
	},
}

var byName = func() map[Tag]Declaration {
	m := make(map[Tag]Declaration, len(catalog))
	for _, d := range catalog {
		m[d.Name] = d
	}
	return m
}()

// Catalog returns every declared intent in stable order. GENERAL_QUERY
// is deliberately absent: it is the fallback, not a callable function.
func Catalog() []Declaration {
	out := make([]Declaration, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup resolves an oracle call name to its declaration. Unknown
// names fail closed: the router treats them as GENERAL_QUERY.
func Lookup(name string) (Declaration, bool) {
	d, ok := byName[Tag(name)]
	return d, ok
}

// Known reports whether t names a declared intent or the fallback.
func Known(t Tag) bool {
	if t == GeneralQuery {
		return true
	}
	_, ok := byName[t]
	return ok
}
