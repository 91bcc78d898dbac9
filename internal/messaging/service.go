// Package messaging provides outbound message delivery to users.
package messaging

import (
	"context"

	"github.com/Osangy/api-sub000/internal/models"
)

// Service defines a pluggable message delivery abstraction for one chat
// channel. Recipients are channel-scoped user ids (PSIDs for Messenger).
type Service interface {
	// SendText sends a plain text message.
	SendText(ctx context.Context, to, text string) error

	// SendQuickReplies sends a text message with tappable reply options.
	SendQuickReplies(ctx context.Context, to, text string, options []string) error

	// SendProductGallery sends a browsable product carousel with
	// add-to-cart actions.
	SendProductGallery(ctx context.Context, to string, products []models.Product) error
}
