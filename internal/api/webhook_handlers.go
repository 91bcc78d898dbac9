package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Osangy/api-sub000/internal/dialogue"
	"github.com/Osangy/api-sub000/internal/messaging"
	"github.com/Osangy/api-sub000/internal/models"
)

const escalationAck = "Okay, a member of our team will take over from here."

// Facebook webhook payload structures. Only the fields the bot consumes
// are declared.

type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID        string           `json:"id"` // page id
	Time      int64            `json:"time"`
	Messaging []messagingEvent `json:"messaging"`
}

type messagingEvent struct {
	Sender    eventParty      `json:"sender"`
	Recipient eventParty      `json:"recipient"`
	Timestamp int64           `json:"timestamp"`
	Message   *inboundMessage `json:"message,omitempty"`
	Postback  *postbackEvent  `json:"postback,omitempty"`
}

type eventParty struct {
	ID string `json:"id"`
}

type inboundMessage struct {
	MID        string           `json:"mid"`
	Text       string           `json:"text"`
	IsEcho     bool             `json:"is_echo"`
	QuickReply *quickReplyEvent `json:"quick_reply,omitempty"`
}

type quickReplyEvent struct {
	Payload string `json:"payload"`
}

type postbackEvent struct {
	Payload string `json:"payload"`
}

// verifyWebhookHandler answers the Facebook subscription handshake: echo
// hub.challenge when hub.verify_token matches.
func (s *Server) verifyWebhookHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	slog.Warn("Server.verifyWebhookHandler: verify token mismatch")
	w.WriteHeader(http.StatusForbidden)
}

// webhookHandler receives batched Messenger events. It acknowledges the
// batch immediately and processes each event on its own goroutine;
// Facebook retries the whole batch on a slow or non-200 response.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("Server.webhookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if payload.Object != "page" {
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
		return
	}

	for _, entry := range payload.Entry {
		for _, event := range entry.Messaging {
			ev := event
			pageID := entry.ID
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
				defer cancel()
				if err := s.processEvent(ctx, pageID, ev); err != nil {
					slog.Error("Server.webhookHandler: event processing failed", "error", err, "pageID", pageID, "sender", ev.Sender.ID)
				}
			}()
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// processEvent handles one Messenger event end to end.
func (s *Server) processEvent(ctx context.Context, pageID string, event messagingEvent) error {
	shop, err := s.st.ShopByPageID(ctx, pageID)
	if err != nil {
		return err
	}
	userID := event.Sender.ID

	switch {
	case event.Message != nil && !event.Message.IsEcho:
		return s.processMessage(ctx, shop, userID, event.Message)
	case event.Postback != nil:
		return s.processPostback(ctx, shop, userID, event.Postback.Payload)
	default:
		slog.Debug("Server.processEvent: ignoring event", "pageID", pageID, "sender", userID)
		return nil
	}
}

func (s *Server) processMessage(ctx context.Context, shop *models.Shop, userID string, msg *inboundMessage) error {
	conv, err := s.ensureConversation(ctx, shop, userID)
	if err != nil {
		return err
	}

	if err := s.st.SaveMessage(ctx, &models.Message{
		ID:             msg.MID,
		ConversationID: conv.ID,
		UserID:         userID,
		Text:           msg.Text,
		Inbound:        true,
		Timestamp:      time.Now(),
	}); err != nil {
		slog.Error("Server.processMessage: failed to save message", "error", err, "userID", userID)
	}

	if msg.QuickReply != nil && msg.QuickReply.Payload == dialogue.EscalateOptionTitle {
		return s.escalate(ctx, shop, conv)
	}

	return s.dispatcher.HandleTurn(ctx, models.DialogueTurn{
		ShopID: shop.ID,
		UserID: userID,
		Text:   msg.Text,
		Time:   time.Now(),
	})
}

func (s *Server) processPostback(ctx context.Context, shop *models.Shop, userID, payload string) error {
	conv, err := s.ensureConversation(ctx, shop, userID)
	if err != nil {
		return err
	}

	switch {
	case strings.HasPrefix(payload, messaging.AddCartPayloadPrefix):
		productID := strings.TrimPrefix(payload, messaging.AddCartPayloadPrefix)
		slog.Debug("Server.processPostback: starting add-to-cart flow", "userID", userID, "productID", productID)
		return s.flows.Start(ctx, shop.ID, userID, models.FlowKindAddCart, productID)
	case payload == messaging.HumanHelpPayload:
		return s.escalate(ctx, shop, conv)
	default:
		slog.Warn("Server.processPostback: unknown payload", "payload", payload, "userID", userID)
		return nil
	}
}

// escalate hands the conversation to a human: the bot goes silent and the
// shop owner is alerted.
func (s *Server) escalate(ctx context.Context, shop *models.Shop, conv *models.Conversation) error {
	if err := s.st.SetRobotAssisted(ctx, conv.ID, false); err != nil {
		return err
	}
	if err := s.sender.SendText(ctx, conv.UserID, escalationAck); err != nil {
		slog.Error("Server.escalate: failed to acknowledge escalation", "error", err, "userID", conv.UserID)
	}
	alert := "A customer asked for a human in your shop " + shop.Name + "."
	if err := s.notifier.NotifyOwner(ctx, shop.OwnerPhone, alert); err != nil {
		slog.Error("Server.escalate: owner notification failed", "error", err, "shopID", shop.ID)
	}
	slog.Info("Server.escalate: conversation handed to human", "conversationID", conv.ID, "shopID", shop.ID)
	return nil
}

// ensureConversation loads the sender's conversation, creating it with a
// fresh session and the user's profile name on first contact.
func (s *Server) ensureConversation(ctx context.Context, shop *models.Shop, userID string) (*models.Conversation, error) {
	conv, err := s.st.ConversationByUser(ctx, shop.ID, userID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	firstName, lastName, err := s.profiles.GetUserProfile(ctx, userID)
	if err != nil {
		// The profile is cosmetic; a fetch failure must not drop the message.
		slog.Warn("Server.ensureConversation: profile fetch failed", "error", err, "userID", userID)
	}
	conv = &models.Conversation{
		ID:            uuid.NewString(),
		ShopID:        shop.ID,
		UserID:        userID,
		SessionID:     uuid.NewString(),
		FirstName:     firstName,
		LastName:      lastName,
		RobotAssisted: true,
		UpdatedAt:     time.Now(),
	}
	if err := s.st.UpsertConversation(ctx, conv); err != nil {
		return nil, err
	}
	slog.Info("Server.ensureConversation: new conversation", "conversationID", conv.ID, "shopID", shop.ID, "userID", userID)
	return conv, nil
}
