// Package nlu defines the natural-language-understanding collaborator: the
// service that interprets free-form user text when no flow claims it.
package nlu

import (
	"context"
	"encoding/json"
)

// Action names the NLU service returns. The router dispatches on these.
const (
	// ActionProductSearch asks for products in a category.
	ActionProductSearch = "product.search"
	// ActionMoreProducts asks for more results of the previous search.
	ActionMoreProducts = "product.more"
	// ActionUnknown means the input was not understood.
	ActionUnknown = "input.unknown"
	// ActionBadFeelings flags a frustrated or upset user.
	ActionBadFeelings = "feelings.bad"
	// ActionHumanHelp is an explicit request for a human agent.
	ActionHumanHelp = "help.human"
)

// Response is the structured reply of the NLU service for one request.
// Contexts is an opaque blob the caller stores and replays verbatim on the
// next request; its structure is never interpreted.
type Response struct {
	SessionID        string            `json:"session_id"`
	Action           string            `json:"action"`
	Fulfillment      string            `json:"fulfillment"`
	ActionIncomplete bool              `json:"action_incomplete"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	Contexts         json.RawMessage   `json:"contexts,omitempty"`
}

// Agent is the NLU request surface the dispatcher uses.
type Agent interface {
	// SendTextRequest interprets one user message within a session.
	SendTextRequest(ctx context.Context, sessionID, text string, contexts json.RawMessage) (*Response, error)
	// SendEventRequest triggers interpretation of a named event (e.g. a
	// first-contact greeting) rather than user text.
	SendEventRequest(ctx context.Context, sessionID, event string, contexts json.RawMessage) (*Response, error)
	// DeleteContexts discards any session state held on the NLU side.
	DeleteContexts(ctx context.Context, sessionID string) error
}
