// Package cart turns a completed flow into a cart mutation: it resolves
// the concrete variant from the collected attributes and applies an atomic
// add-or-increment to the user's cart.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Osangy/api-sub000/internal/models"
)

// Catalog resolves products for variant lookup.
type Catalog interface {
	ProductByID(ctx context.Context, id string) (*models.Product, error)
}

// Carts is the cart persistence surface the mutator needs.
type Carts interface {
	AddOrIncrementSelection(ctx context.Context, product *models.Product, variant *models.Variant, userID string) (*models.Cart, error)
}

// Messenger sends the post-mutation confirmation.
type Messenger interface {
	SendText(ctx context.Context, userID, text string) error
}

// Mutator applies completed flows to carts.
type Mutator struct {
	catalog   Catalog
	carts     Carts
	messenger Messenger
}

// NewMutator creates a cart mutator over the given collaborators.
func NewMutator(catalog Catalog, carts Carts, messenger Messenger) *Mutator {
	return &Mutator{catalog: catalog, carts: carts, messenger: messenger}
}

// Finish resolves the flow's subject and variant and adds it to the user's
// cart. ErrProductNotFound and ErrVariantNotFound propagate to the caller,
// which must surface them rather than report a false success.
func (m *Mutator) Finish(ctx context.Context, record *models.FlowRecord) (*models.Cart, error) {
	slog.Debug("Mutator Finish", "userID", record.UserID, "subjectID", record.SubjectID, "collected", record.Collected)

	product, err := m.catalog.ProductByID(ctx, record.SubjectID)
	if err != nil {
		slog.Error("Mutator subject lookup failed", "error", err, "subjectID", record.SubjectID)
		return nil, fmt.Errorf("resolve subject %s: %w", record.SubjectID, err)
	}

	variant, err := product.ResolveVariant(record.Collected)
	if err != nil {
		slog.Error("Mutator variant resolution failed", "error", err, "subjectID", record.SubjectID, "collected", record.Collected)
		return nil, fmt.Errorf("resolve variant of %s: %w", record.SubjectID, err)
	}

	cart, err := m.carts.AddOrIncrementSelection(ctx, product, variant, record.UserID)
	if err != nil {
		slog.Error("Mutator cart update failed", "error", err, "userID", record.UserID, "variantID", variant.ID)
		return nil, fmt.Errorf("add variant %s to cart: %w", variant.ID, err)
	}
	slog.Info("Mutator added to cart", "userID", record.UserID, "productID", product.ID, "variantID", variant.ID, "cartTotal", cart.TotalPrice)

	// The mutation is committed; confirmation delivery is best-effort and a
	// failure here must not resurrect the flow.
	confirmation := confirmationText(product, variant, cart)
	if err := m.messenger.SendText(ctx, record.UserID, confirmation); err != nil {
		slog.Error("Mutator confirmation send failed", "error", err, "userID", record.UserID)
	}

	return cart, nil
}

func confirmationText(product *models.Product, variant *models.Variant, cart *models.Cart) string {
	var attrs []string
	if variant.Color != "" {
		attrs = append(attrs, variant.Color)
	}
	if variant.Size != "" {
		attrs = append(attrs, variant.Size)
	}
	item := product.Name
	if len(attrs) > 0 {
		item = fmt.Sprintf("%s (%s)", product.Name, strings.Join(attrs, ", "))
	}
	return fmt.Sprintf("Added %s to your cart. You now have %d item(s) for a total of %s.",
		item, cart.NbProducts, FormatPrice(cart.TotalPrice, cart.Currency))
}

// FormatPrice renders a minor-unit amount as a human readable price.
func FormatPrice(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, currency)
}
