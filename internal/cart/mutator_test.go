package cart

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Osangy/api-sub000/internal/models"
	"github.com/Osangy/api-sub000/internal/store"
)

type fakeMessenger struct {
	sent    []string
	sendErr error
}

func (m *fakeMessenger) SendText(ctx context.Context, userID, text string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, text)
	return nil
}

func testSetup() (*Mutator, *store.InMemoryStore, *fakeMessenger) {
	st := store.NewInMemoryStore()
	st.AddShop(&models.Shop{ID: "shop1", PageID: "page1", Currency: "USD"})
	st.AddProduct(&models.Product{
		ID: "p1", ShopID: "shop1", Name: "T-Shirt", Price: 1999, Currency: "USD",
		Variants: []models.Variant{
			{ID: "v1", ProductID: "p1", Color: "red", Size: "s"},
			{ID: "v2", ProductID: "p1", Color: "red", Size: "m"},
			{ID: "v3", ProductID: "p1", Color: "blue", Size: "m"},
		},
	})
	messenger := &fakeMessenger{}
	return NewMutator(st, st, messenger), st, messenger
}

func addCartRecord(collected map[string]string) *models.FlowRecord {
	return &models.FlowRecord{
		UserID:    "u1",
		ShopID:    "shop1",
		Kind:      models.FlowKindAddCart,
		SubjectID: "p1",
		Collected: collected,
	}
}

func TestFinishAddsResolvedVariant(t *testing.T) {
	m, st, messenger := testSetup()
	ctx := context.Background()

	cart, err := m.Finish(ctx, addCartRecord(map[string]string{
		models.AttributeColor: "blue",
		models.AttributeSize:  "m",
	}))
	if err != nil {
		t.Fatalf("finish error: %v", err)
	}
	if len(cart.Selections) != 1 || cart.Selections[0].VariantID != "v3" {
		t.Errorf("expected v3 in cart, got %+v", cart.Selections)
	}
	if cart.TotalPrice != 1999 || cart.NbProducts != 1 {
		t.Errorf("unexpected totals: %+v", cart)
	}

	if len(messenger.sent) != 1 {
		t.Fatalf("expected one confirmation, got %d", len(messenger.sent))
	}
	confirmation := messenger.sent[0]
	if !strings.Contains(confirmation, "T-Shirt") || !strings.Contains(confirmation, "19.99 USD") {
		t.Errorf("confirmation missing item or total: %q", confirmation)
	}

	stored, _ := st.CartByUser(ctx, "shop1", "u1")
	if stored == nil || stored.NbProducts != 1 {
		t.Errorf("cart not persisted: %+v", stored)
	}
}

func TestFinishSameVariantTwiceIncrements(t *testing.T) {
	m, st, _ := testSetup()
	ctx := context.Background()
	record := addCartRecord(map[string]string{models.AttributeColor: "red", models.AttributeSize: "m"})

	if _, err := m.Finish(ctx, record); err != nil {
		t.Fatalf("first finish error: %v", err)
	}
	cart, err := m.Finish(ctx, record)
	if err != nil {
		t.Fatalf("second finish error: %v", err)
	}
	if len(cart.Selections) != 1 || cart.Selections[0].Quantity != 2 {
		t.Errorf("expected quantity increment, got %+v", cart.Selections)
	}

	stored, _ := st.CartByUser(ctx, "shop1", "u1")
	if stored.TotalPrice != 3998 {
		t.Errorf("expected total 3998, got %d", stored.TotalPrice)
	}
}

func TestFinishVariantNotFound(t *testing.T) {
	m, _, messenger := testSetup()

	_, err := m.Finish(context.Background(), addCartRecord(map[string]string{
		models.AttributeColor: "green",
		models.AttributeSize:  "m",
	}))
	if !errors.Is(err, models.ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}
	if len(messenger.sent) != 0 {
		t.Errorf("no confirmation should be sent on failure, got %v", messenger.sent)
	}
}

func TestFinishSubjectGone(t *testing.T) {
	m, st, _ := testSetup()
	st.RemoveProduct("p1")

	_, err := m.Finish(context.Background(), addCartRecord(map[string]string{models.AttributeColor: "red"}))
	if !errors.Is(err, models.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestFinishConfirmationFailureDoesNotFailMutation(t *testing.T) {
	m, st, messenger := testSetup()
	messenger.sendErr = errors.New("transport down")
	ctx := context.Background()

	_, err := m.Finish(ctx, addCartRecord(map[string]string{models.AttributeColor: "red", models.AttributeSize: "s"}))
	if err != nil {
		t.Fatalf("mutation should succeed despite delivery failure, got %v", err)
	}
	cart, _ := st.CartByUser(ctx, "shop1", "u1")
	if cart == nil || cart.NbProducts != 1 {
		t.Errorf("cart mutation lost: %+v", cart)
	}
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		amount int64
		want   string
	}{
		{1999, "19.99 USD"},
		{100, "1.00 USD"},
		{5, "0.05 USD"},
		{0, "0.00 USD"},
	}
	for _, c := range cases {
		if got := FormatPrice(c.amount, "USD"); got != c.want {
			t.Errorf("FormatPrice(%d): expected %q, got %q", c.amount, c.want, got)
		}
	}
}
