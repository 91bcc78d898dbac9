package flow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Osangy/api-sub000/internal/flowstore"
	"github.com/Osangy/api-sub000/internal/models"
)

type fakeCatalog struct {
	products map[string]*models.Product
}

func (c *fakeCatalog) ProductByID(ctx context.Context, id string) (*models.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, models.ErrProductNotFound
	}
	return p, nil
}

type sentMessage struct {
	userID  string
	text    string
	options []string
}

type fakeMessenger struct {
	texts        []sentMessage
	quickReplies []sentMessage
	sendErr      error
}

func (m *fakeMessenger) SendText(ctx context.Context, userID, text string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.texts = append(m.texts, sentMessage{userID: userID, text: text})
	return nil
}

func (m *fakeMessenger) SendQuickReplies(ctx context.Context, userID, text string, options []string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.quickReplies = append(m.quickReplies, sentMessage{userID: userID, text: text, options: options})
	return nil
}

type fakeCart struct {
	finished []*models.FlowRecord
	err      error
}

func (c *fakeCart) Finish(ctx context.Context, record *models.FlowRecord) (*models.Cart, error) {
	if c.err != nil {
		return nil, c.err
	}
	clone := *record
	c.finished = append(c.finished, &clone)
	return &models.Cart{ShopID: record.ShopID, UserID: record.UserID}, nil
}

func variantProduct() *models.Product {
	return &models.Product{
		ID:       "p1",
		ShopID:   "shop1",
		Name:     "T-Shirt",
		Price:    1999,
		Currency: "USD",
		Variants: []models.Variant{
			{ID: "v1", ProductID: "p1", Color: "Red", Size: "S"},
			{ID: "v2", ProductID: "p1", Color: "Red", Size: "M"},
			{ID: "v3", ProductID: "p1", Color: "Blue", Size: "S"},
			{ID: "v4", ProductID: "p1", Color: "Blue", Size: "M"},
		},
	}
}

func newTestEngine(products ...*models.Product) (*Engine, *flowstore.MemoryStore, *fakeMessenger, *fakeCart) {
	catalog := &fakeCatalog{products: make(map[string]*models.Product)}
	for _, p := range products {
		catalog.products[p.ID] = p
	}
	flows := flowstore.NewMemoryStore()
	messenger := &fakeMessenger{}
	cart := &fakeCart{}
	return NewEngine(flows, catalog, messenger, cart), flows, messenger, cart
}

func step(t *testing.T, e *Engine, userID, text string) models.StepOutcome {
	t.Helper()
	outcome, err := e.Step(context.Background(), models.DialogueTurn{ShopID: "shop1", UserID: userID, Text: text})
	if err != nil {
		t.Fatalf("step %q error: %v", text, err)
	}
	return outcome
}

func TestStartPromptsForColorFirst(t *testing.T) {
	e, _, messenger, _ := newTestEngine(variantProduct())

	if err := e.Start(context.Background(), "shop1", "u1", models.FlowKindAddCart, "p1"); err != nil {
		t.Fatalf("start error: %v", err)
	}

	if len(messenger.quickReplies) != 1 {
		t.Fatalf("expected one prompt, got %d", len(messenger.quickReplies))
	}
	prompt := messenger.quickReplies[0]
	if prompt.userID != "u1" {
		t.Errorf("prompt sent to %s", prompt.userID)
	}
	if len(prompt.options) != 2 || prompt.options[0] != "red" || prompt.options[1] != "blue" {
		t.Errorf("expected color domain [red blue], got %v", prompt.options)
	}
}

// After any sequence of starts, exactly one flow exists, matching the most
// recent start.
func TestStartReplacesExistingFlow(t *testing.T) {
	second := variantProduct()
	second.ID = "p2"
	e, flows, _, _ := newTestEngine(variantProduct(), second)
	ctx := context.Background()

	if err := e.Start(ctx, "shop1", "u1", models.FlowKindAddCart, "p1"); err != nil {
		t.Fatalf("first start error: %v", err)
	}
	step(t, e, "u1", "red")
	if err := e.Start(ctx, "shop1", "u1", models.FlowKindAddCart, "p2"); err != nil {
		t.Fatalf("second start error: %v", err)
	}

	record, err := flows.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if record == nil || record.SubjectID != "p2" {
		t.Fatalf("expected single flow for p2, got %+v", record)
	}
	if len(record.Collected) != 0 {
		t.Errorf("prior flow's collected attributes leaked: %v", record.Collected)
	}
}

func TestStartNoRequiredAttributesCompletesImmediately(t *testing.T) {
	single := &models.Product{
		ID:       "p1",
		ShopID:   "shop1",
		Name:     "Mug",
		Variants: []models.Variant{{ID: "v1", ProductID: "p1"}},
	}
	e, flows, messenger, cart := newTestEngine(single)
	ctx := context.Background()

	if err := e.Start(ctx, "shop1", "u1", models.FlowKindAddCart, "p1"); err != nil {
		t.Fatalf("start error: %v", err)
	}

	if len(cart.finished) != 1 {
		t.Fatalf("expected immediate cart mutation, got %d", len(cart.finished))
	}
	if len(messenger.quickReplies) != 0 {
		t.Errorf("expected no prompt, got %v", messenger.quickReplies)
	}
	if record, _ := flows.Get(ctx, "u1"); record != nil {
		t.Errorf("expected flow deleted after completion, got %+v", record)
	}
}

func TestStartUnknownSubject(t *testing.T) {
	e, flows, _, _ := newTestEngine()
	ctx := context.Background()

	err := e.Start(ctx, "shop1", "u1", models.FlowKindAddCart, "missing")
	if !errors.Is(err, models.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if record, _ := flows.Get(ctx, "u1"); record != nil {
		t.Errorf("no flow should be written when the subject is unknown")
	}
}

func TestStepNoActiveFlow(t *testing.T) {
	e, _, _, _ := newTestEngine(variantProduct())

	if outcome := step(t, e, "u1", "hello"); outcome != models.StepNoActiveFlow {
		t.Errorf("expected no-active-flow outcome, got %s", outcome)
	}
}

// Cancel is absorbing: the flow is gone and the cart untouched.
func TestStepCancelKeyword(t *testing.T) {
	e, flows, messenger, cart := newTestEngine(variantProduct())
	ctx := context.Background()

	if err := e.Start(ctx, "shop1", "u1", models.FlowKindAddCart, "p1"); err != nil {
		t.Fatalf("start error: %v", err)
	}
	prompts := len(messenger.quickReplies)

	for _, keyword := range []string{"STOP", "stop", "Stop", " stop "} {
		if err := e.Start(ctx, "shop1", "u1", models.FlowKindAddCart, "p1"); err != nil {
			t.Fatalf("start error: %v", err)
		}
		if outcome := step(t, e, "u1", keyword); outcome != models.StepCancelled {
			t.Fatalf("keyword %q: expected cancelled, got %s", keyword, outcome)
		}
		if record, _ := flows.Get(ctx, "u1"); record != nil {
			t.Errorf("keyword %q: flow still present", keyword)
		}
	}
	if len(cart.finished) != 0 {
		t.Errorf("cancel must not mutate the cart, got %d mutations", len(cart.finished))
	}
	// Cancellation itself issues no further prompt.
	if got := len(messenger.quickReplies); got != prompts+len([]string{"STOP", "stop", "Stop", " stop "}) {
		t.Errorf("unexpected prompt count after cancels: %d", got)
	}
}

// Unmatched input leaves collected attributes untouched and re-issues an
// equivalent prompt.
func TestStepUnmatchedInputReprompts(t *testing.T) {
	e, flows, messenger, _ := newTestEngine(variantProduct())
	ctx := context.Background()

	if err := e.Start(ctx, "shop1", "u1", models.FlowKindAddCart, "p1"); err != nil {
		t.Fatalf("start error: %v", err)
	}
	first := messenger.quickReplies[0]

	if outcome := step(t, e, "u1", "green"); outcome != models.StepPrompted {
		t.Fatalf("expected prompted, got %s", outcome)
	}

	record, _ := flows.Get(ctx, "u1")
	if len(record.Collected) != 0 {
		t.Errorf("unmatched input mutated state: %v", record.Collected)
	}
	if len(messenger.quickReplies) != 2 {
		t.Fatalf("expected re-prompt, got %d prompts", len(messenger.quickReplies))
	}
	again := messenger.quickReplies[1]
	if again.text != first.text || fmt.Sprint(again.options) != fmt.Sprint(first.options) {
		t.Errorf("re-prompt differs: %+v vs %+v", again, first)
	}
}

// Full walk: color then size, one cart mutation, flow deleted.
func TestFullFlowCompletion(t *testing.T) {
	e, flows, messenger, cart := newTestEngine(variantProduct())
	ctx := context.Background()

	if err := e.Start(ctx, "shop1", "u1", models.FlowKindAddCart, "p1"); err != nil {
		t.Fatalf("start error: %v", err)
	}

	if outcome := step(t, e, "u1", "red"); outcome != models.StepPrompted {
		t.Fatalf("expected size prompt after color, got %s", outcome)
	}
	sizePrompt := messenger.quickReplies[1]
	if len(sizePrompt.options) != 2 || sizePrompt.options[0] != "s" || sizePrompt.options[1] != "m" {
		t.Errorf("expected size domain [s m], got %v", sizePrompt.options)
	}

	if outcome := step(t, e, "u1", "M"); outcome != models.StepCompleted {
		t.Fatalf("expected completion, got %s", outcome)
	}

	if len(cart.finished) != 1 {
		t.Fatalf("expected exactly one cart mutation, got %d", len(cart.finished))
	}
	finished := cart.finished[0]
	if finished.Collected[models.AttributeColor] != "red" || finished.Collected[models.AttributeSize] != "m" {
		t.Errorf("expected normalized collected attributes, got %v", finished.Collected)
	}
	if record, _ := flows.Get(ctx, "u1"); record != nil {
		t.Errorf("expected flow deleted after completion, got %+v", record)
	}
}

// Matching is case-insensitive and values are stored normalized.
func TestStepCaseInsensitiveMatching(t *testing.T) {
	for _, input := range []string{"red", "RED", "ReD"} {
		e, flows, _, _ := newTestEngine(variantProduct())
		ctx := context.Background()
		if err := e.Start(ctx, "shop1", "u1", models.FlowKindAddCart, "p1"); err != nil {
			t.Fatalf("start error: %v", err)
		}

		step(t, e, "u1", input)

		record, _ := flows.Get(ctx, "u1")
		if record.Collected[models.AttributeColor] != "red" {
			t.Errorf("input %q: expected stored value red, got %v", input, record.Collected)
		}
	}
}

func TestSizeOnlyProductSkipsColor(t *testing.T) {
	sized := &models.Product{
		ID:     "p1",
		ShopID: "shop1",
		Name:   "Socks",
		Variants: []models.Variant{
			{ID: "v1", ProductID: "p1", Size: "S"},
			{ID: "v2", ProductID: "p1", Size: "M"},
		},
	}
	e, _, messenger, cart := newTestEngine(sized)
	ctx := context.Background()

	if err := e.Start(ctx, "shop1", "u1", models.FlowKindAddCart, "p1"); err != nil {
		t.Fatalf("start error: %v", err)
	}
	if prompt := messenger.quickReplies[0]; prompt.options[0] != "s" {
		t.Fatalf("expected size prompt first, got %v", prompt.options)
	}

	if outcome := step(t, e, "u1", "m"); outcome != models.StepCompleted {
		t.Fatalf("expected completion, got %s", outcome)
	}
	if len(cart.finished) != 1 {
		t.Errorf("expected one cart mutation, got %d", len(cart.finished))
	}
}

func TestVariantNotFoundNotifiesAndDeletesFlow(t *testing.T) {
	e, flows, messenger, cart := newTestEngine(variantProduct())
	cart.err = models.ErrVariantNotFound
	ctx := context.Background()

	if err := e.Start(ctx, "shop1", "u1", models.FlowKindAddCart, "p1"); err != nil {
		t.Fatalf("start error: %v", err)
	}
	step(t, e, "u1", "red")

	_, err := e.Step(ctx, models.DialogueTurn{ShopID: "shop1", UserID: "u1", Text: "m"})
	if !errors.Is(err, models.ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound to propagate, got %v", err)
	}
	if len(messenger.texts) != 1 {
		t.Fatalf("expected user-facing explanation, got %v", messenger.texts)
	}
	if record, _ := flows.Get(ctx, "u1"); record != nil {
		t.Errorf("expected orphaned flow deleted, got %+v", record)
	}
}

func TestSubjectVanishedMidFlow(t *testing.T) {
	e, flows, messenger, cart := newTestEngine(variantProduct())
	cart.err = models.ErrProductNotFound
	ctx := context.Background()

	if err := e.Start(ctx, "shop1", "u1", models.FlowKindAddCart, "p1"); err != nil {
		t.Fatalf("start error: %v", err)
	}
	step(t, e, "u1", "blue")

	_, err := e.Step(ctx, models.DialogueTurn{ShopID: "shop1", UserID: "u1", Text: "s"})
	if !errors.Is(err, models.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound to propagate, got %v", err)
	}
	if len(messenger.texts) != 1 {
		t.Fatalf("expected user notice, got %v", messenger.texts)
	}
	if record, _ := flows.Get(ctx, "u1"); record != nil {
		t.Errorf("expected flow deleted under delete-and-notify policy")
	}
}
