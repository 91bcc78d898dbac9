// Package dialogue routes inbound user messages: an active flow always
// claims the message first; only flowless turns reach the NLU service.
package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Osangy/api-sub000/internal/models"
	"github.com/Osangy/api-sub000/internal/nlu"
)

// FlowStepper is the flow engine surface the dispatcher consumes.
type FlowStepper interface {
	Step(ctx context.Context, turn models.DialogueTurn) (models.StepOutcome, error)
}

// Conversations looks up the conversation a turn belongs to.
type Conversations interface {
	ConversationByUser(ctx context.Context, shopID, userID string) (*models.Conversation, error)
}

// Dispatcher is the single entry point for every inbound user message.
type Dispatcher struct {
	flows  FlowStepper
	agent  nlu.Agent
	convs  Conversations
	router *Router
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(flows FlowStepper, agent nlu.Agent, convs Conversations, router *Router) *Dispatcher {
	return &Dispatcher{flows: flows, agent: agent, convs: convs, router: router}
}

// HandleTurn processes one inbound message. The flow engine gets first
// claim: NLU has no visibility into flow state and would misread a color
// name as a fresh query, so an active flow always pre-empts it.
func (d *Dispatcher) HandleTurn(ctx context.Context, turn models.DialogueTurn) error {
	outcome, err := d.flows.Step(ctx, turn)
	if err != nil {
		// Any flow mutation already committed stays committed; the error
		// surfaces to the webhook handler.
		return fmt.Errorf("flow step for %s: %w", turn.UserID, err)
	}
	if outcome != models.StepNoActiveFlow {
		slog.Debug("Dispatcher turn handled by flow", "userID", turn.UserID, "outcome", outcome)
		return nil
	}

	conv, err := d.convs.ConversationByUser(ctx, turn.ShopID, turn.UserID)
	if err != nil {
		return fmt.Errorf("load conversation for %s: %w", turn.UserID, err)
	}
	if conv == nil {
		return fmt.Errorf("no conversation for user %s in shop %s", turn.UserID, turn.ShopID)
	}

	contexts := conv.NluContexts
	if len(contexts) == 0 {
		contexts = firstTurnContexts(conv)
	}

	slog.Debug("Dispatcher forwarding to NLU", "userID", turn.UserID, "sessionID", conv.SessionID)
	response, err := d.agent.SendTextRequest(ctx, conv.SessionID, turn.Text, contexts)
	if err != nil {
		return fmt.Errorf("nlu request for session %s: %w", conv.SessionID, err)
	}
	return d.router.Route(ctx, conv.SessionID, response)
}

// firstTurnContexts seeds the very first NLU request with the user's name
// attributes, the only context available before the NLU has returned any.
func firstTurnContexts(conv *models.Conversation) json.RawMessage {
	if conv.FirstName == "" && conv.LastName == "" {
		return nil
	}
	seed, err := json.Marshal([]map[string]any{{
		"name": "user",
		"parameters": map[string]string{
			"first_name": conv.FirstName,
			"last_name":  conv.LastName,
		},
	}})
	if err != nil {
		return nil
	}
	return seed
}
