package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Osangy/api-sub000/internal/messaging"
	"github.com/Osangy/api-sub000/internal/models"
	"github.com/Osangy/api-sub000/internal/nlu"
)

// EscalateOptionTitle is the quick-reply label offered when the NLU could
// not understand the user. The webhook recognizes it to hand the
// conversation to a human.
const EscalateOptionTitle = "Talk to a human"

const apologyText = "Sorry, I didn't quite get that."

// ProductPresenter turns a product query into outbound gallery messages.
type ProductPresenter interface {
	PresentProducts(ctx context.Context, conv *models.Conversation, category string) error
}

// RouterStore is the conversation persistence surface the router consumes.
type RouterStore interface {
	ConversationBySession(ctx context.Context, sessionID string) (*models.Conversation, error)
	SaveConversationContexts(ctx context.Context, sessionID string, contexts json.RawMessage) error
}

// Router dispatches NLU responses to outbound actions.
type Router struct {
	store     RouterStore
	messenger messaging.Service
	products  ProductPresenter
}

// NewRouter creates a router over the given collaborators.
func NewRouter(store RouterStore, messenger messaging.Service, products ProductPresenter) *Router {
	return &Router{store: store, messenger: messenger, products: products}
}

// Route resolves the conversation for an NLU response and dispatches on
// its action. The returned context blob is persisted onto the
// conversation regardless of which branch fired, so the next request
// carries the NLU's view of the dialogue.
func (r *Router) Route(ctx context.Context, sessionID string, response *nlu.Response) error {
	conv, err := r.store.ConversationBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load conversation for session %s: %w", sessionID, err)
	}
	if conv == nil {
		slog.Warn("Router discarding NLU response for unknown session", "sessionID", sessionID)
		return nil
	}
	if !conv.RobotAssisted {
		slog.Debug("Router discarding NLU response, human has the conversation", "sessionID", sessionID)
		return nil
	}
	if response.Fulfillment == "" {
		slog.Debug("Router discarding NLU response without fulfillment", "sessionID", sessionID, "action", response.Action)
		return nil
	}

	dispatchErr := r.dispatch(ctx, conv, response)

	if err := r.store.SaveConversationContexts(ctx, sessionID, response.Contexts); err != nil {
		dispatchErr = errors.Join(dispatchErr, fmt.Errorf("save contexts for session %s: %w", sessionID, err))
	}
	return dispatchErr
}

func (r *Router) dispatch(ctx context.Context, conv *models.Conversation, response *nlu.Response) error {
	if response.ActionIncomplete {
		// The NLU is still slot-filling; relay its follow-up question as is.
		return r.messenger.SendText(ctx, conv.UserID, response.Fulfillment)
	}

	switch response.Action {
	case nlu.ActionProductSearch, nlu.ActionMoreProducts:
		return r.products.PresentProducts(ctx, conv, response.Parameters["category"])
	case nlu.ActionUnknown:
		return r.messenger.SendQuickReplies(ctx, conv.UserID, apologyText, []string{EscalateOptionTitle})
	case nlu.ActionBadFeelings, nlu.ActionHumanHelp:
		return r.messenger.SendText(ctx, conv.UserID, response.Fulfillment)
	default:
		return r.messenger.SendText(ctx, conv.UserID, response.Fulfillment)
	}
}
