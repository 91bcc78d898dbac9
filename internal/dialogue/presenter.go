package dialogue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Osangy/api-sub000/internal/messaging"
	"github.com/Osangy/api-sub000/internal/models"
)

// ProductIndex is the catalog search surface the presenter consumes.
type ProductIndex interface {
	SearchProducts(ctx context.Context, shopID, category string, limit int) ([]models.Product, error)
}

// Presenter answers product queries with a horizontal product gallery.
type Presenter struct {
	products  ProductIndex
	messenger messaging.Service
}

// NewPresenter creates a presenter over the given catalog and transport.
func NewPresenter(products ProductIndex, messenger messaging.Service) *Presenter {
	return &Presenter{products: products, messenger: messenger}
}

// PresentProducts searches the shop's catalog and sends the results as a
// gallery. An empty category searches the whole catalog.
func (p *Presenter) PresentProducts(ctx context.Context, conv *models.Conversation, category string) error {
	results, err := p.products.SearchProducts(ctx, conv.ShopID, category, messaging.MaxGalleryElements)
	if err != nil {
		return fmt.Errorf("search products in shop %s: %w", conv.ShopID, err)
	}
	if len(results) == 0 {
		text := "I couldn't find anything matching that, sorry."
		if category != "" {
			text = fmt.Sprintf("I couldn't find anything in %s, sorry.", category)
		}
		return p.messenger.SendText(ctx, conv.UserID, text)
	}
	slog.Debug("Presenter sending product gallery", "userID", conv.UserID, "count", len(results))
	return p.messenger.SendProductGallery(ctx, conv.UserID, results)
}
