// Package validation checks oracle-extracted argument objects against
// an intent's declared JSON schema. Results are advisory: the router
// logs failures and carries on, leaving missing-data reporting to the
// dispatcher.
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateArgs validates an argument map against a parameter schema
// (a JSON-schema object map). A schema that fails to compile yields a
// single-error invalid result rather than a hard failure.
func ValidateArgs(schema map[string]interface{}, args map[string]interface{}) *Result {
	if len(schema) == 0 {
		return &Result{Valid: true}
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &Result{
			Valid:  false,
			Errors: []string{fmt.Sprintf("schema validation error: %v", err)},
		}
	}

	if result.Valid() {
		return &Result{Valid: true}
	}

	out := &Result{Valid: false}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, desc.String())
	}
	return out
}
