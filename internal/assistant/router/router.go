// Package router turns a free-text command into exactly one
// OperationRequest. It moves through four states: awaiting the oracle,
// classified, normalized, terminal. The router is deliberately
// permissive: missing required fields are left for the dispatcher to
// report, and anything unclassifiable terminates as GENERAL_QUERY.
package router

import (
	"context"
	"strings"
	"time"

	"crm-assistant/internal/assistant/intent"
	"crm-assistant/internal/assistant/normalize"
	"crm-assistant/internal/assistant/oracle"
	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/validation"
)

const systemInstruction = `You are the command interpreter for a small-business CRM.
Classify the user's command into exactly one of the declared functions and extract its arguments.
Only extract values the user actually stated; never invent identifiers, amounts or dates.
Dates are YYYY-MM-DD. Price constraints use "<N", ">N" or "A-B".
If the command matches no function, answer conversationally in plain text instead of calling one.`

// Router is the command-classification state machine.
type Router struct {
	oracle oracle.Client
	logger logger.Logger
}

func New(oracleClient oracle.Client, log logger.Logger) *Router {
	return &Router{
		oracle: oracleClient,
		logger: log.WithFields(map[string]interface{}{"component": "router"}),
	}
}

// Route drives one command through the pipeline up to its terminal
// OperationRequest. The oracle call is the only suspension point; a
// transport failure there is fatal for this request and never retried
// here.
func (r *Router) Route(ctx context.Context, command string) (*OperationRequest, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, stderrors.NewInvalidArgumentError("command", "command text is required")
	}

	// State: AwaitingOracleResponse.
	reply, err := r.oracle.Interpret(ctx, &oracle.Request{
		SystemInstruction: systemInstruction,
		Declarations:      intent.Catalog(),
		Examples:          intent.Examples(),
		Command:           command,
	})
	if err != nil {
		return nil, stderrors.NewOracleUnavailableError(err)
	}

	// State: Classified.
	if reply.Call == nil {
		return r.generalQuery(reply.Text), nil
	}

	decl, ok := intent.Lookup(reply.Call.Name)
	if !ok {
		// Unknown call names fail closed into the fallback.
		r.logger.Warn("oracle called an undeclared function", map[string]interface{}{
			"name": reply.Call.Name,
		})
		return r.generalQuery(reply.Text), nil
	}

	if result := validation.ValidateArgs(decl.Parameters, reply.Call.Args); !result.Valid {
		// Advisory only; the dispatcher reports missing data.
		r.logger.Warn("extracted arguments failed schema validation", map[string]interface{}{
			"intent": string(decl.Name),
			"errors": result.Errors,
		})
	}

	// State: Normalized.
	args := normalize.Fields(reply.Call.Args)

	// State: Terminal.
	req := r.build(decl.Name, args)
	if req.ResponseText == "" {
		req.ResponseText = responseText(decl.Name)
	}
	if text := strings.TrimSpace(reply.Text); text != "" {
		req.ResponseText = text
	}

	r.logger.Info("command classified", map[string]interface{}{
		"intent": string(req.Intent),
	})

	return req, nil
}

// generalQuery is the terminal fallback state.
func (r *Router) generalQuery(text string) *OperationRequest {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "I could not map that to a CRM operation. Try rephrasing the command."
	}
	return &OperationRequest{
		Intent:       intent.GeneralQuery,
		Payload:      GeneralPayload{Text: text},
		ResponseText: text,
	}
}

// build shapes normalized arguments into the intent's payload variant.
func (r *Router) build(tag intent.Tag, args map[string]interface{}) *OperationRequest {
	req := &OperationRequest{Intent: tag}

	switch tag {
	case intent.AddContact:
		req.Payload = ContactPayload{
			Name:     getString(args, "name"),
			Email:    getString(args, "email"),
			Phone:    getString(args, "phone"),
			Company:  getString(args, "company"),
			Category: getString(args, "category"),
			City:     getString(args, "city"),
			State:    getString(args, "state"),
			Notes:    getString(args, "notes"),
		}

	case intent.FindContact, intent.FindExpenseReport, intent.FindBooks,
		intent.FindEvents, intent.CountExpenseReports, intent.CountBooks,
		intent.CountEvents, intent.ListUsers:
		req.Payload = lookupPayload(args)

	case intent.UpdateContact, intent.UpdateExpenseReport:
		req.Payload = UpdatePayload{
			Identifier: getString(args, "identifier"),
			Updates:    getMap(args, "updates"),
		}

	case intent.DeleteContact, intent.DeleteExpenseReport,
		intent.GetCustomerSummary:
		req.Payload = LookupPayload{Identifier: getString(args, "identifier")}

	case intent.LogInteraction:
		req.Payload = InteractionPayload{
			Identifier: getString(args, "identifier"),
			Type:       getString(args, "type"),
			Summary:    getString(args, "summary"),
		}

	case intent.AddExpenseReport:
		payload := ExpensePayload{
			Title:       getString(args, "title"),
			Amount:      getFloat(args, "amount"),
			Description: getString(args, "description"),
		}
		if t, ok := args["reportDate"].(time.Time); ok {
			payload.ReportDate = t
			payload.HasDate = true
		}
		req.Payload = payload

	case intent.CountData, intent.MetricsData:
		req.Payload = CountPayload{
			Entity:  getString(args, "entity"),
			Metric:  getString(args, "metric"),
			Filters: getMap(args, "filters"),
			Limit:   getInt(args, "limit"),
		}

	case intent.SetUserRole, intent.DeleteUser:
		req.Payload = RolePayload{
			Identifier: getString(args, "identifier"),
			Role:       getString(args, "role"),
		}

	default:
		req.Intent = intent.GeneralQuery
		req.Payload = GeneralPayload{Text: responseText(intent.GeneralQuery)}
	}

	return req
}

// lookupPayload applies the tie-break rule: a direct identifier lookup
// and a filtered list query are mutually exclusive, and the identifier
// wins.
func lookupPayload(args map[string]interface{}) LookupPayload {
	p := LookupPayload{
		Identifier: getString(args, "identifier"),
		Filters:    getMap(args, "filters"),
		Limit:      getInt(args, "limit"),
	}
	if p.Identifier != "" {
		p.Filters = nil
	}
	return p
}

func responseText(tag intent.Tag) string {
	switch tag {
	case intent.AddContact:
		return "Adding the contact now."
	case intent.FindContact:
		return "Here is what I found."
	case intent.UpdateContact:
		return "Updating the contact."
	case intent.DeleteContact:
		return "Deleting the contact."
	case intent.LogInteraction:
		return "Logging the interaction."
	case intent.GetCustomerSummary:
		return "Here is the customer summary."
	case intent.AddExpenseReport:
		return "Creating the expense report."
	case intent.FindExpenseReport:
		return "Here are the matching expense reports."
	case intent.UpdateExpenseReport:
		return "Updating the expense report."
	case intent.DeleteExpenseReport:
		return "Deleting the expense report."
	case intent.CountExpenseReports:
		return "Counting expense reports."
	case intent.CountData:
		return "Counting the records."
	case intent.MetricsData:
		return "Computing the metric."
	case intent.FindBooks:
		return "Here are the matching books."
	case intent.CountBooks:
		return "Counting books."
	case intent.FindEvents:
		return "Here are the matching events."
	case intent.CountEvents:
		return "Counting events."
	case intent.ListUsers:
		return "Here are the user accounts."
	case intent.SetUserRole:
		return "Changing the user's role."
	case intent.DeleteUser:
		return "Deleting the user."
	default:
		return "I could not map that to a CRM operation. Try rephrasing the command."
	}
}

// --- argument extraction helpers ---

func getString(args map[string]interface{}, key string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return ""
}

func getMap(args map[string]interface{}, key string) map[string]interface{} {
	if m, ok := args[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}

func getFloat(args map[string]interface{}, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func getInt(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}
