// Package flow implements the conversation flow engine: the state machine
// that walks a user through collecting the attributes a flow kind requires,
// one inbound message at a time, with state persisted in a flow repository.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Osangy/api-sub000/internal/flowstore"
	"github.com/Osangy/api-sub000/internal/models"
)

// CancelKeyword aborts any active flow, matched case-insensitively.
const CancelKeyword = "stop"

// Catalog resolves a flow's subject. Declared here to avoid an import
// cycle with the storage layer.
type Catalog interface {
	ProductByID(ctx context.Context, id string) (*models.Product, error)
}

// Messenger is the outbound messaging surface the engine needs.
type Messenger interface {
	SendText(ctx context.Context, userID, text string) error
	SendQuickReplies(ctx context.Context, userID, text string, options []string) error
}

// CartFinisher turns a completed flow into a cart mutation.
type CartFinisher interface {
	Finish(ctx context.Context, record *models.FlowRecord) (*models.Cart, error)
}

// Engine drives flow records: Start creates and prompts, Step advances on
// each inbound message.
type Engine struct {
	flows     flowstore.Repository
	catalog   Catalog
	messenger Messenger
	cart      CartFinisher
}

// NewEngine creates a flow engine over the given collaborators.
func NewEngine(flows flowstore.Repository, catalog Catalog, messenger Messenger, cart CartFinisher) *Engine {
	return &Engine{flows: flows, catalog: catalog, messenger: messenger, cart: cart}
}

// Start begins a flow of the given kind for a user, replacing any flow the
// user already had, and immediately prompts for the first missing
// attribute. A subject with no required attributes completes on the spot.
func (e *Engine) Start(ctx context.Context, shopID, userID string, kind models.FlowKind, subjectID string) error {
	slog.Debug("Engine Start", "userID", userID, "kind", kind, "subjectID", subjectID)

	schema, err := SchemaFor(kind)
	if err != nil {
		slog.Error("Engine Start unknown flow kind", "error", err, "userID", userID, "kind", kind)
		return err
	}

	subject, err := e.catalog.ProductByID(ctx, subjectID)
	if err != nil {
		slog.Error("Engine Start subject lookup failed", "error", err, "userID", userID, "subjectID", subjectID)
		return fmt.Errorf("resolve flow subject %s: %w", subjectID, err)
	}

	now := time.Now().UTC()
	record := &models.FlowRecord{
		UserID:    userID,
		ShopID:    shopID,
		Kind:      kind,
		SubjectID: subjectID,
		Required:  schema.Requirements(subject),
		Collected: make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Last writer wins: any prior flow for this user is discarded.
	if err := e.flows.Put(ctx, record); err != nil {
		slog.Error("Engine Start save failed", "error", err, "userID", userID)
		return fmt.Errorf("save flow for %s: %w", userID, err)
	}
	slog.Info("Engine flow started", "userID", userID, "kind", kind, "subjectID", subjectID, "required", len(record.Required))

	_, err = e.advance(ctx, record)
	return err
}

// Step routes one inbound message into the user's active flow.
// StepNoActiveFlow means the caller should fall through to NLU; it is a
// control signal, never an error.
func (e *Engine) Step(ctx context.Context, turn models.DialogueTurn) (models.StepOutcome, error) {
	record, err := e.flows.Get(ctx, turn.UserID)
	if err != nil {
		slog.Error("Engine Step load failed", "error", err, "userID", turn.UserID)
		return "", fmt.Errorf("load flow for %s: %w", turn.UserID, err)
	}
	if record == nil {
		slog.Debug("Engine Step no active flow", "userID", turn.UserID)
		return models.StepNoActiveFlow, nil
	}

	if strings.EqualFold(strings.TrimSpace(turn.Text), CancelKeyword) {
		if err := e.flows.Delete(ctx, turn.UserID); err != nil {
			slog.Error("Engine Step cancel delete failed", "error", err, "userID", turn.UserID)
			return "", fmt.Errorf("delete flow for %s: %w", turn.UserID, err)
		}
		slog.Info("Engine flow cancelled", "userID", turn.UserID, "kind", record.Kind)
		return models.StepCancelled, nil
	}

	req, missing := record.NextMissing()
	if !missing {
		// Degenerate case: a stored flow with nothing left to collect.
		return e.advance(ctx, record)
	}

	value, ok := req.Match(turn.Text)
	if !ok {
		// Unmatched input never mutates state; re-asking is how "I didn't
		// understand" is communicated.
		slog.Debug("Engine Step unmatched input", "userID", turn.UserID, "attribute", req.Name, "text", turn.Text)
		return e.advance(ctx, record)
	}

	if err := e.flows.SetCollected(ctx, turn.UserID, req.Name, value); err != nil {
		slog.Error("Engine Step record attribute failed", "error", err, "userID", turn.UserID, "attribute", req.Name)
		return "", fmt.Errorf("record %s for %s: %w", req.Name, turn.UserID, err)
	}
	record.Collected[req.Name] = value
	slog.Info("Engine attribute collected", "userID", turn.UserID, "attribute", req.Name, "value", value)

	return e.advance(ctx, record)
}

// advance prompts for the first missing attribute, or, when everything is
// collected, hands the flow to the cart mutator and deletes it.
func (e *Engine) advance(ctx context.Context, record *models.FlowRecord) (models.StepOutcome, error) {
	if req, missing := record.NextMissing(); missing {
		prompt := fmt.Sprintf("Which %s would you like?", req.Name)
		if err := e.messenger.SendQuickReplies(ctx, record.UserID, prompt, req.Domain); err != nil {
			slog.Error("Engine prompt send failed", "error", err, "userID", record.UserID, "attribute", req.Name)
			return "", fmt.Errorf("prompt %s for %s: %w", req.Name, record.UserID, err)
		}
		slog.Debug("Engine prompted", "userID", record.UserID, "attribute", req.Name, "options", len(req.Domain))
		return models.StepPrompted, nil
	}

	if _, err := e.cart.Finish(ctx, record); err != nil {
		return "", e.failCompletion(ctx, record, err)
	}

	if err := e.flows.Delete(ctx, record.UserID); err != nil {
		slog.Error("Engine completion delete failed", "error", err, "userID", record.UserID)
		return "", fmt.Errorf("delete completed flow for %s: %w", record.UserID, err)
	}
	slog.Info("Engine flow completed", "userID", record.UserID, "kind", record.Kind, "subjectID", record.SubjectID)
	return models.StepCompleted, nil
}

// failCompletion applies the unrecoverable-completion policy: the user is
// told what went wrong, the orphaned flow is deleted so the next message is
// not swallowed by it, and the original error still propagates.
func (e *Engine) failCompletion(ctx context.Context, record *models.FlowRecord, cause error) error {
	var notice string
	switch {
	case errors.Is(cause, models.ErrProductNotFound):
		notice = "Sorry, that product is no longer available."
	case errors.Is(cause, models.ErrVariantNotFound):
		notice = "Sorry, that combination is not available for this product."
	default:
		slog.Error("Engine completion failed", "error", cause, "userID", record.UserID, "subjectID", record.SubjectID)
		return fmt.Errorf("finish flow for %s: %w", record.UserID, cause)
	}

	if err := e.messenger.SendText(ctx, record.UserID, notice); err != nil {
		slog.Error("Engine completion notice send failed", "error", err, "userID", record.UserID)
	}
	if err := e.flows.Delete(ctx, record.UserID); err != nil {
		slog.Error("Engine completion cleanup failed", "error", err, "userID", record.UserID)
	}
	slog.Warn("Engine flow aborted", "error", cause, "userID", record.UserID, "subjectID", record.SubjectID)
	return fmt.Errorf("finish flow for %s: %w", record.UserID, cause)
}
