// Package oracle talks to the generative-AI collaborator. The model is
// a black box: given a system instruction, a function catalogue, a set
// of primer exchanges and the user's command, it returns either one
// structured function call or free text.
package oracle

import (
	"context"
	"errors"

	"crm-assistant/internal/assistant/intent"
)

var (
	// ErrUnavailable marks a timeout or transport failure talking to
	// the oracle. The caller may retry the whole command; the router
	// never retries internally.
	ErrUnavailable = errors.New("ORACLE_UNAVAILABLE")
)

// Request carries everything the oracle needs for one classification.
type Request struct {
	SystemInstruction string
	Declarations      []intent.Declaration
	Examples          []intent.Example
	Command           string
}

// FunctionCall is the structured half of the oracle's response contract.
type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Reply is what the oracle produced: a structured call, free text, or
// both. Call takes precedence when present.
type Reply struct {
	Call *FunctionCall `json:"call,omitempty"`
	Text string        `json:"text,omitempty"`
}

// Client is the oracle collaborator interface.
type Client interface {
	Interpret(ctx context.Context, req *Request) (*Reply, error)
}
