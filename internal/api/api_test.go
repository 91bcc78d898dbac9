package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Osangy/api-sub000/internal/dialogue"
	"github.com/Osangy/api-sub000/internal/messaging"
	"github.com/Osangy/api-sub000/internal/models"
	"github.com/Osangy/api-sub000/internal/store"
)

type fakeDispatcher struct {
	turns []models.DialogueTurn
	err   error
}

func (f *fakeDispatcher) HandleTurn(_ context.Context, turn models.DialogueTurn) error {
	f.turns = append(f.turns, turn)
	return f.err
}

type fakeStarter struct {
	shopID    string
	userID    string
	kind      models.FlowKind
	subjectID string
	calls     int
}

func (f *fakeStarter) Start(_ context.Context, shopID, userID string, kind models.FlowKind, subjectID string) error {
	f.calls++
	f.shopID = shopID
	f.userID = userID
	f.kind = kind
	f.subjectID = subjectID
	return nil
}

type fakeProfiles struct{}

func (fakeProfiles) GetUserProfile(context.Context, string) (string, string, error) {
	return "Ada", "Lovelace", nil
}

type fakeTextSender struct {
	texts []string
}

func (f *fakeTextSender) SendText(_ context.Context, _, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

type fakeNotifier struct {
	alerts []string
	phones []string
}

func (f *fakeNotifier) NotifyOwner(_ context.Context, ownerPhone, text string) error {
	f.phones = append(f.phones, ownerPhone)
	f.alerts = append(f.alerts, text)
	return nil
}

type serverFixture struct {
	server     *Server
	st         *store.InMemoryStore
	dispatcher *fakeDispatcher
	starter    *fakeStarter
	sender     *fakeTextSender
	notifier   *fakeNotifier
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	st := store.NewInMemoryStore()
	st.AddShop(&models.Shop{ID: "shop1", Name: "Test Shop", PageID: "page1", Currency: "EUR", OwnerPhone: "+33600000000"})

	f := &serverFixture{
		st:         st,
		dispatcher: &fakeDispatcher{},
		starter:    &fakeStarter{},
		sender:     &fakeTextSender{},
		notifier:   &fakeNotifier{},
	}
	server, err := NewServer(st, f.dispatcher, f.starter, fakeProfiles{}, f.sender, f.notifier, WithVerifyToken("secret"))
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	f.server = server
	return f
}

// postWebhook posts a payload and waits for async event processing.
func (f *serverFixture) postWebhook(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	return rec
}

func messageBody(text string) string {
	return `{"object":"page","entry":[{"id":"page1","messaging":[{"sender":{"id":"user1"},"recipient":{"id":"page1"},"message":{"mid":"m1","text":"` + text + `"}}]}]}`
}

func TestNewServerRequiresVerifyToken(t *testing.T) {
	if _, err := NewServer(store.NewInMemoryStore(), &fakeDispatcher{}, &fakeStarter{}, fakeProfiles{}, &fakeTextSender{}, &fakeNotifier{}); err == nil {
		t.Fatal("NewServer() = nil error, want missing verify token error")
	}
}

func TestVerifyWebhook(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=42", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "42" {
		t.Errorf("body = %q, want the challenge echoed", rec.Body.String())
	}
}

func TestVerifyWebhookWrongToken(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestWebhookTextMessageDispatchesTurn(t *testing.T) {
	f := newServerFixture(t)

	rec := f.postWebhook(t, messageBody("hello"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(f.dispatcher.turns) != 1 {
		t.Fatalf("dispatched turns = %d, want 1", len(f.dispatcher.turns))
	}
	turn := f.dispatcher.turns[0]
	if turn.ShopID != "shop1" || turn.UserID != "user1" || turn.Text != "hello" {
		t.Errorf("turn = %+v, want shop1/user1/hello", turn)
	}
	if turn.Time.IsZero() {
		t.Error("turn has no receive time")
	}
}

func TestWebhookCreatesConversationWithProfile(t *testing.T) {
	f := newServerFixture(t)

	f.postWebhook(t, messageBody("hello"))

	conv, err := f.st.ConversationByUser(context.Background(), "shop1", "user1")
	if err != nil {
		t.Fatalf("ConversationByUser() error: %v", err)
	}
	if conv == nil {
		t.Fatal("conversation was not created on first contact")
	}
	if conv.FirstName != "Ada" || conv.LastName != "Lovelace" {
		t.Errorf("conversation name = %q %q, want profile values", conv.FirstName, conv.LastName)
	}
	if !conv.RobotAssisted {
		t.Error("new conversation is not robot assisted")
	}
	if conv.SessionID == "" {
		t.Error("new conversation has no session id")
	}
}

func TestWebhookPersistsInboundMessage(t *testing.T) {
	f := newServerFixture(t)

	f.postWebhook(t, messageBody("hello"))

	msgs := f.st.Messages()
	if len(msgs) != 1 {
		t.Fatalf("saved messages = %d, want 1", len(msgs))
	}
	if msgs[0].Text != "hello" || !msgs[0].Inbound {
		t.Errorf("saved message = %+v, want inbound hello", msgs[0])
	}
}

func TestWebhookAddCartPostbackStartsFlow(t *testing.T) {
	f := newServerFixture(t)

	body := `{"object":"page","entry":[{"id":"page1","messaging":[{"sender":{"id":"user1"},"recipient":{"id":"page1"},"postback":{"payload":"` + messaging.AddCartPayloadPrefix + `p42"}}]}]}`
	f.postWebhook(t, body)

	if f.starter.calls != 1 {
		t.Fatalf("flow starts = %d, want 1", f.starter.calls)
	}
	if f.starter.subjectID != "p42" || f.starter.kind != models.FlowKindAddCart {
		t.Errorf("started %v for subject %q, want add_cart for p42", f.starter.kind, f.starter.subjectID)
	}
	if len(f.dispatcher.turns) != 0 {
		t.Error("postback also reached the dispatcher")
	}
}

func TestWebhookEscalationQuickReply(t *testing.T) {
	f := newServerFixture(t)

	body := `{"object":"page","entry":[{"id":"page1","messaging":[{"sender":{"id":"user1"},"recipient":{"id":"page1"},"message":{"mid":"m2","text":"` + dialogue.EscalateOptionTitle + `","quick_reply":{"payload":"` + dialogue.EscalateOptionTitle + `"}}}]}]}`
	f.postWebhook(t, body)

	conv, _ := f.st.ConversationByUser(context.Background(), "shop1", "user1")
	if conv == nil || conv.RobotAssisted {
		t.Fatal("conversation was not handed to a human")
	}
	if len(f.notifier.alerts) != 1 {
		t.Fatalf("owner alerts = %d, want 1", len(f.notifier.alerts))
	}
	if f.notifier.phones[0] != "+33600000000" {
		t.Errorf("alert phone = %q, want the shop owner", f.notifier.phones[0])
	}
	if len(f.dispatcher.turns) != 0 {
		t.Error("escalation quick reply also reached the dispatcher")
	}
}

func TestWebhookIgnoresEchoMessages(t *testing.T) {
	f := newServerFixture(t)

	body := `{"object":"page","entry":[{"id":"page1","messaging":[{"sender":{"id":"page1"},"recipient":{"id":"user1"},"message":{"mid":"m3","text":"echo","is_echo":true}}]}]}`
	f.postWebhook(t, body)

	if len(f.dispatcher.turns) != 0 {
		t.Error("echo message reached the dispatcher")
	}
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAdminTakeoverAndRelease(t *testing.T) {
	f := newServerFixture(t)
	f.postWebhook(t, messageBody("hello"))
	conv, _ := f.st.ConversationByUser(context.Background(), "shop1", "user1")
	if conv == nil {
		t.Fatal("conversation missing")
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/"+conv.ID+"/takeover", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("takeover status = %d, want 200", rec.Code)
	}
	conv, _ = f.st.ConversationByUser(context.Background(), "shop1", "user1")
	if conv.RobotAssisted {
		t.Error("conversation still robot assisted after takeover")
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/conversations/"+conv.ID+"/release", nil)
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("release status = %d, want 200", rec.Code)
	}
	conv, _ = f.st.ConversationByUser(context.Background(), "shop1", "user1")
	if !conv.RobotAssisted {
		t.Error("conversation not robot assisted after release")
	}
}

func TestAdminTakeoverUnknownConversation(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/ghost/takeover", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAdminListConversations(t *testing.T) {
	f := newServerFixture(t)
	f.postWebhook(t, messageBody("hello"))

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations?shop_id=shop1", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Status string                `json:"status"`
		Result []models.Conversation `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Result) != 1 {
		t.Errorf("conversations = %d, want 1", len(resp.Result))
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
