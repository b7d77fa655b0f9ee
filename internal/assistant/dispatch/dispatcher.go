// Package dispatch executes a routed operation against the stores and
// wraps the outcome in a response envelope. Authorization runs first:
// a denied request never reaches a collaborator.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"crm-assistant/internal/assistant/authz"
	"crm-assistant/internal/assistant/intent"
	"crm-assistant/internal/assistant/router"
	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

// Store contracts, defined here so tests can substitute fakes.

type ContactStore interface {
	Create(ctx context.Context, c models.Contact) (*models.Contact, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.Contact, error)
	List(ctx context.Context, filters map[string]interface{}, limit int) ([]models.Contact, error)
	Count(ctx context.Context, filters map[string]interface{}) (int64, error)
	Update(ctx context.Context, identifier string, updates map[string]interface{}) (*models.Contact, error)
	Delete(ctx context.Context, identifier string) (*models.Contact, error)
}

type InteractionStore interface {
	Log(ctx context.Context, identifier, interactionType, summary, createdBy string) (*models.Interaction, error)
	Summary(ctx context.Context, identifier string) (*models.CustomerSummary, error)
	Count(ctx context.Context, filters map[string]interface{}) (int64, error)
}

type ExpenseStore interface {
	Create(ctx context.Context, r models.ExpenseReport) (*models.ExpenseReport, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.ExpenseReport, error)
	List(ctx context.Context, filters map[string]interface{}, limit int) ([]models.ExpenseReport, error)
	Count(ctx context.Context, filters map[string]interface{}) (int64, error)
	Aggregate(ctx context.Context, metric string, filters map[string]interface{}) (float64, error)
	Update(ctx context.Context, identifier string, updates map[string]interface{}) (*models.ExpenseReport, error)
	Delete(ctx context.Context, identifier string) (*models.ExpenseReport, error)
}

type BookStore interface {
	List(ctx context.Context, filters map[string]interface{}, limit int) ([]models.Book, error)
	Count(ctx context.Context, filters map[string]interface{}) (int64, error)
	Aggregate(ctx context.Context, metric string, filters map[string]interface{}) (float64, error)
}

type EventStore interface {
	List(ctx context.Context, filters map[string]interface{}, limit int) ([]models.Event, error)
	Count(ctx context.Context, filters map[string]interface{}) (int64, error)
}

type UserStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	List(ctx context.Context, filters map[string]interface{}, limit int) ([]models.User, error)
	Count(ctx context.Context, filters map[string]interface{}) (int64, error)
	SetRole(ctx context.Context, userID, role string) (*models.User, error)
	Delete(ctx context.Context, userID string) error
}

type Notifier interface {
	ExpenseReportCreated(ctx context.Context, report *models.ExpenseReport)
}

// Result is the envelope returned for every successfully dispatched
// command.
type Result struct {
	Intent       intent.Tag  `json:"intent"`
	Data         interface{} `json:"data,omitempty"`
	ResponseText string      `json:"responseText"`
}

type Stores struct {
	Contacts     ContactStore
	Interactions InteractionStore
	Expenses     ExpenseStore
	Books        BookStore
	Events       EventStore
	Users        UserStore
}

type Dispatcher struct {
	stores       Stores
	notifier     Notifier
	defaultLimit int
	logger       logger.Logger
}

func New(stores Stores, notifier Notifier, defaultLimit int, log logger.Logger) *Dispatcher {
	if defaultLimit <= 0 {
		defaultLimit = 25
	}
	return &Dispatcher{
		stores:       stores,
		notifier:     notifier,
		defaultLimit: defaultLimit,
		logger:       log.WithFields(map[string]interface{}{"component": "dispatcher"}),
	}
}

// Dispatch authorizes and executes one operation. An identifier that
// matches no record is a normal zero-result outcome for reads and
// mutations alike, never a fatal error.
func (d *Dispatcher) Dispatch(ctx context.Context, caller authz.Caller, req *router.OperationRequest) (*Result, error) {
	if decision := authz.Authorize(caller, req.Intent); !decision.Allowed {
		d.logger.Warn("operation denied", map[string]interface{}{
			"intent": string(req.Intent),
			"role":   string(caller.Role),
			"reason": string(decision.Reason),
		})
		return nil, stderrors.NewPermissionDeniedError(decision.Reason, decision.Detail)
	}

	result, err := d.execute(ctx, caller, req)
	if err != nil {
		return nil, err
	}
	result.Intent = req.Intent
	if result.ResponseText == "" {
		result.ResponseText = req.ResponseText
	}
	return result, nil
}

func (d *Dispatcher) execute(ctx context.Context, caller authz.Caller, req *router.OperationRequest) (*Result, error) {
	switch req.Intent {
	case intent.GeneralQuery:
		p, err := payloadAs[router.GeneralPayload](req)
		if err != nil {
			return nil, err
		}
		return &Result{ResponseText: p.Text}, nil

	case intent.AddContact:
		return d.addContact(ctx, req)
	case intent.FindContact:
		return d.findContacts(ctx, req)
	case intent.UpdateContact:
		return d.updateContact(ctx, req)
	case intent.DeleteContact:
		return d.deleteContact(ctx, req)
	case intent.LogInteraction:
		return d.logInteraction(ctx, caller, req)
	case intent.GetCustomerSummary:
		return d.customerSummary(ctx, req)

	case intent.AddExpenseReport:
		return d.addExpenseReport(ctx, caller, req)
	case intent.FindExpenseReport:
		return d.findExpenseReports(ctx, req)
	case intent.UpdateExpenseReport:
		return d.updateExpenseReport(ctx, req)
	case intent.DeleteExpenseReport:
		return d.deleteExpenseReport(ctx, req)
	case intent.CountExpenseReports:
		p, err := payloadAs[router.LookupPayload](req)
		if err != nil {
			return nil, err
		}
		return d.countEntity(ctx, "expense_reports", p.Filters)

	case intent.CountData:
		p, err := payloadAs[router.CountPayload](req)
		if err != nil {
			return nil, err
		}
		return d.countEntity(ctx, p.Entity, p.Filters)
	case intent.MetricsData:
		return d.metrics(ctx, req)

	case intent.FindBooks:
		return d.findBooks(ctx, req)
	case intent.CountBooks:
		p, err := payloadAs[router.LookupPayload](req)
		if err != nil {
			return nil, err
		}
		return d.countEntity(ctx, "books", p.Filters)
	case intent.FindEvents:
		return d.findEvents(ctx, req)
	case intent.CountEvents:
		p, err := payloadAs[router.LookupPayload](req)
		if err != nil {
			return nil, err
		}
		return d.countEntity(ctx, "events", p.Filters)

	case intent.ListUsers:
		return d.listUsers(ctx, req)
	case intent.SetUserRole:
		return d.setUserRole(ctx, caller, req)
	case intent.DeleteUser:
		return d.deleteUser(ctx, caller, req)
	}

	return nil, stderrors.NewInternalError(fmt.Errorf("unhandled intent %s", req.Intent))
}

// --- contacts ---

func (d *Dispatcher) addContact(ctx context.Context, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.ContactPayload](req)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, stderrors.NewInvalidArgumentError("name", "a contact name is required")
	}

	contact, err := d.stores.Contacts.Create(ctx, models.Contact{
		Name:     p.Name,
		Email:    p.Email,
		Phone:    p.Phone,
		Company:  p.Company,
		Category: p.Category,
		City:     p.City,
		State:    p.State,
		Notes:    p.Notes,
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:         contact,
		ResponseText: fmt.Sprintf("Added %s to your contacts.", contact.Name),
	}, nil
}

func (d *Dispatcher) findContacts(ctx context.Context, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.LookupPayload](req)
	if err != nil {
		return nil, err
	}

	if p.Identifier != "" {
		contact, err := d.stores.Contacts.FindByIdentifier(ctx, p.Identifier)
		if stderrors.IsNotFound(err) {
			return zeroResult("No contact matched %q.", p.Identifier), nil
		}
		if err != nil {
			return nil, err
		}
		return &Result{Data: []models.Contact{*contact}}, nil
	}

	contacts, err := d.stores.Contacts.List(ctx, p.Filters, d.limit(p.Limit))
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return zeroResult("No contacts matched those filters."), nil
	}
	return &Result{Data: contacts}, nil
}

func (d *Dispatcher) updateContact(ctx context.Context, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.UpdatePayload](req)
	if err != nil {
		return nil, err
	}
	if p.Identifier == "" {
		return nil, stderrors.NewInvalidArgumentError("identifier", "say which contact to update")
	}
	if len(p.Updates) == 0 {
		return nil, stderrors.NewInvalidArgumentError("updates", "no field changes were given")
	}

	contact, err := d.stores.Contacts.Update(ctx, p.Identifier, p.Updates)
	if stderrors.IsNotFound(err) {
		return zeroResult("No contact matched %q, so nothing was updated.", p.Identifier), nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:         contact,
		ResponseText: fmt.Sprintf("Updated %s.", contact.Name),
	}, nil
}

func (d *Dispatcher) deleteContact(ctx context.Context, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.LookupPayload](req)
	if err != nil {
		return nil, err
	}
	if p.Identifier == "" {
		return nil, stderrors.NewInvalidArgumentError("identifier", "say which contact to delete")
	}

	contact, err := d.stores.Contacts.Delete(ctx, p.Identifier)
	if stderrors.IsNotFound(err) {
		return zeroResult("No contact matched %q, so nothing was deleted.", p.Identifier), nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:         contact,
		ResponseText: fmt.Sprintf("Deleted %s from your contacts.", contact.Name),
	}, nil
}

func (d *Dispatcher) logInteraction(ctx context.Context, caller authz.Caller, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.InteractionPayload](req)
	if err != nil {
		return nil, err
	}
	if p.Identifier == "" {
		return nil, stderrors.NewInvalidArgumentError("identifier", "say which contact the interaction was with")
	}
	if p.Summary == "" {
		return nil, stderrors.NewInvalidArgumentError("summary", "describe what happened")
	}
	interactionType := p.Type
	if interactionType == "" {
		interactionType = "note"
	}

	record, err := d.stores.Interactions.Log(ctx, p.Identifier, interactionType, p.Summary, caller.UserID)
	if stderrors.IsNotFound(err) {
		return zeroResult("No contact matched %q, so the interaction was not logged.", p.Identifier), nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{Data: record}, nil
}

func (d *Dispatcher) customerSummary(ctx context.Context, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.LookupPayload](req)
	if err != nil {
		return nil, err
	}
	if p.Identifier == "" {
		return nil, stderrors.NewInvalidArgumentError("identifier", "say which customer to summarize")
	}

	summary, err := d.stores.Interactions.Summary(ctx, p.Identifier)
	if stderrors.IsNotFound(err) {
		return zeroResult("No customer matched %q.", p.Identifier), nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{Data: summary}, nil
}

// --- expense reports ---

func (d *Dispatcher) addExpenseReport(ctx context.Context, caller authz.Caller, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.ExpensePayload](req)
	if err != nil {
		return nil, err
	}
	if p.Title == "" {
		return nil, stderrors.NewInvalidArgumentError("title", "an expense report title is required")
	}
	if p.Amount <= 0 {
		return nil, stderrors.NewInvalidArgumentError("amount", "the amount must be positive")
	}

	report := models.ExpenseReport{
		Title:       p.Title,
		Submitter:   caller.UserID,
		Amount:      p.Amount,
		Description: p.Description,
	}
	if p.HasDate {
		report.ReportDate = p.ReportDate
	}

	created, err := d.stores.Expenses.Create(ctx, report)
	if err != nil {
		return nil, err
	}

	if d.notifier != nil {
		d.notifier.ExpenseReportCreated(ctx, created)
	}

	return &Result{
		Data:         created,
		ResponseText: fmt.Sprintf("Created expense report #%d for $%.2f.", created.Number, created.Amount),
	}, nil
}

func (d *Dispatcher) findExpenseReports(ctx context.Context, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.LookupPayload](req)
	if err != nil {
		return nil, err
	}

	if p.Identifier != "" {
		report, err := d.stores.Expenses.FindByIdentifier(ctx, p.Identifier)
		if stderrors.IsNotFound(err) {
			return zeroResult("No expense report matched %q.", p.Identifier), nil
		}
		if err != nil {
			return nil, err
		}
		return &Result{Data: []models.ExpenseReport{*report}}, nil
	}

	reports, err := d.stores.Expenses.List(ctx, p.Filters, d.limit(p.Limit))
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return zeroResult("No expense reports matched those filters."), nil
	}
	return &Result{Data: reports}, nil
}

func (d *Dispatcher) updateExpenseReport(ctx context.Context, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.UpdatePayload](req)
	if err != nil {
		return nil, err
	}
	if p.Identifier == "" {
		return nil, stderrors.NewInvalidArgumentError("identifier", "say which expense report to update")
	}
	if len(p.Updates) == 0 {
		return nil, stderrors.NewInvalidArgumentError("updates", "no field changes were given")
	}

	report, err := d.stores.Expenses.Update(ctx, p.Identifier, p.Updates)
	if stderrors.IsNotFound(err) {
		return zeroResult("No expense report matched %q, so nothing was updated.", p.Identifier), nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:         report,
		ResponseText: fmt.Sprintf("Updated expense report #%d.", report.Number),
	}, nil
}

func (d *Dispatcher) deleteExpenseReport(ctx context.Context, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.LookupPayload](req)
	if err != nil {
		return nil, err
	}
	if p.Identifier == "" {
		return nil, stderrors.NewInvalidArgumentError("identifier", "say which expense report to delete")
	}

	report, err := d.stores.Expenses.Delete(ctx, p.Identifier)
	if stderrors.IsNotFound(err) {
		return zeroResult("No expense report matched %q, so nothing was deleted.", p.Identifier), nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:         report,
		ResponseText: fmt.Sprintf("Deleted expense report #%d.", report.Number),
	}, nil
}

// --- counts and metrics ---

// countEntity tallies a named dataset. Aliases cover the entity names
// the oracle tends to produce.
func (d *Dispatcher) countEntity(ctx context.Context, entity string, filters map[string]interface{}) (*Result, error) {
	var (
		count int64
		err   error
	)

	canonical := canonicalEntity(entity)
	switch canonical {
	case "contacts":
		count, err = d.stores.Contacts.Count(ctx, filters)
	case "expense_reports":
		count, err = d.stores.Expenses.Count(ctx, filters)
	case "books":
		count, err = d.stores.Books.Count(ctx, filters)
	case "events":
		count, err = d.stores.Events.Count(ctx, filters)
	case "users":
		count, err = d.stores.Users.Count(ctx, filters)
	case "interactions":
		count, err = d.stores.Interactions.Count(ctx, filters)
	default:
		return nil, stderrors.NewInvalidArgumentError("entity",
			fmt.Sprintf("unknown entity %q", entity))
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		Data:         map[string]interface{}{"entity": canonical, "count": count},
		ResponseText: fmt.Sprintf("There are %d matching %s.", count, strings.ReplaceAll(canonical, "_", " ")),
	}, nil
}

func (d *Dispatcher) metrics(ctx context.Context, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.CountPayload](req)
	if err != nil {
		return nil, err
	}
	if p.Metric == "" {
		return d.countEntity(ctx, p.Entity, p.Filters)
	}

	var value float64
	canonical := canonicalEntity(p.Entity)
	switch canonical {
	case "books":
		value, err = d.stores.Books.Aggregate(ctx, p.Metric, p.Filters)
	case "expense_reports":
		value, err = d.stores.Expenses.Aggregate(ctx, p.Metric, p.Filters)
	default:
		return nil, stderrors.NewInvalidArgumentError("entity",
			fmt.Sprintf("metrics are not available for %q", p.Entity))
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		Data: map[string]interface{}{
			"entity": canonical,
			"metric": p.Metric,
			"value":  value,
		},
		ResponseText: fmt.Sprintf("The %s of %s is %.2f.", p.Metric, strings.ReplaceAll(canonical, "_", " "), value),
	}, nil
}

// --- legacy datasets ---

func (d *Dispatcher) findBooks(ctx context.Context, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.LookupPayload](req)
	if err != nil {
		return nil, err
	}
	filters := p.Filters
	if p.Identifier != "" {
		filters = map[string]interface{}{"title": p.Identifier}
	}

	books, err := d.stores.Books.List(ctx, filters, d.limit(p.Limit))
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return zeroResult("No books matched those filters."), nil
	}
	return &Result{Data: books}, nil
}

func (d *Dispatcher) findEvents(ctx context.Context, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.LookupPayload](req)
	if err != nil {
		return nil, err
	}
	filters := p.Filters
	if p.Identifier != "" {
		filters = map[string]interface{}{"name": p.Identifier}
	}

	events, err := d.stores.Events.List(ctx, filters, d.limit(p.Limit))
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return zeroResult("No events matched those filters."), nil
	}
	return &Result{Data: events}, nil
}

// --- users ---

func (d *Dispatcher) listUsers(ctx context.Context, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.LookupPayload](req)
	if err != nil {
		return nil, err
	}

	users, err := d.stores.Users.List(ctx, p.Filters, d.limit(p.Limit))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return zeroResult("No user accounts matched."), nil
	}
	return &Result{Data: users}, nil
}

func (d *Dispatcher) setUserRole(ctx context.Context, caller authz.Caller, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.RolePayload](req)
	if err != nil {
		return nil, err
	}
	if p.Identifier == "" {
		return nil, stderrors.NewInvalidArgumentError("identifier", "say which user to change")
	}
	newRole, ok := authz.ParseRole(p.Role)
	if !ok {
		return nil, stderrors.NewInvalidArgumentError("role",
			fmt.Sprintf("unknown role %q", p.Role))
	}

	target, err := d.stores.Users.FindByIdentifier(ctx, p.Identifier)
	if stderrors.IsNotFound(err) {
		return zeroResult("No user account matched %q.", p.Identifier), nil
	}
	if err != nil {
		return nil, err
	}

	targetRole, _ := authz.ParseRole(target.Role)
	if decision := authz.AuthorizeUserMutation(caller, targetRole, target.IsMasterAdmin, newRole); !decision.Allowed {
		return nil, stderrors.NewPermissionDeniedError(decision.Reason, decision.Detail)
	}

	updated, err := d.stores.Users.SetRole(ctx, target.ID, string(newRole))
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:         updated,
		ResponseText: fmt.Sprintf("%s is now a %s.", displayName(updated), updated.Role),
	}, nil
}

func (d *Dispatcher) deleteUser(ctx context.Context, caller authz.Caller, req *router.OperationRequest) (*Result, error) {
	p, err := payloadAs[router.RolePayload](req)
	if err != nil {
		return nil, err
	}
	if p.Identifier == "" {
		return nil, stderrors.NewInvalidArgumentError("identifier", "say which user to delete")
	}

	target, err := d.stores.Users.FindByIdentifier(ctx, p.Identifier)
	if stderrors.IsNotFound(err) {
		return zeroResult("No user account matched %q.", p.Identifier), nil
	}
	if err != nil {
		return nil, err
	}

	targetRole, _ := authz.ParseRole(target.Role)
	if decision := authz.AuthorizeUserMutation(caller, targetRole, target.IsMasterAdmin, ""); !decision.Allowed {
		return nil, stderrors.NewPermissionDeniedError(decision.Reason, decision.Detail)
	}

	if err := d.stores.Users.Delete(ctx, target.ID); err != nil {
		return nil, err
	}
	return &Result{
		Data:         target,
		ResponseText: fmt.Sprintf("Deleted the account for %s.", displayName(target)),
	}, nil
}

// --- helpers ---

func (d *Dispatcher) limit(requested int) int {
	if requested > 0 {
		return requested
	}
	return d.defaultLimit
}

// payloadAs asserts the payload variant the intent requires. A
// mismatch is a programming error in the router, reported as INTERNAL.
func payloadAs[T router.Payload](req *router.OperationRequest) (T, error) {
	p, ok := req.Payload.(T)
	if !ok {
		var zero T
		return zero, stderrors.NewInternalError(
			fmt.Errorf("intent %s carried payload %T", req.Intent, req.Payload))
	}
	return p, nil
}

func zeroResult(format string, args ...interface{}) *Result {
	return &Result{
		Data:         []interface{}{},
		ResponseText: fmt.Sprintf(format, args...),
	}
}

func canonicalEntity(entity string) string {
	switch strings.ToLower(strings.TrimSpace(entity)) {
	case "contact", "contacts", "customer", "customers":
		return "contacts"
	case "expense_report", "expense_reports", "expense report", "expense reports",
		"expense", "expenses", "expensereports":
		return "expense_reports"
	case "book", "books":
		return "books"
	case "event", "events":
		return "events"
	case "user", "users", "account", "accounts":
		return "users"
	case "interaction", "interactions":
		return "interactions"
	}
	return strings.ToLower(strings.TrimSpace(entity))
}

func displayName(u *models.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}
