// Package store provides storage backends for the shop catalog, carts,
// and conversations.
//
// It ships a PostgreSQL store for production, an SQLite store for
// single-node deployments, and an in-memory store used by tests.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Osangy/api-sub000/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Postgres DSNs
// use the URL or key=value forms; anything else is treated as an SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore opens the backend matching the DSN type.
func NewStore(opts ...Option) (Store, error) {
	cfg := Opts{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}

// Store is the persistence contract for catalog, cart, and conversation
// data. Lookup methods return the package sentinel errors from models when
// the entity does not exist.
type Store interface {
	// Catalog
	GetShop(ctx context.Context, id string) (*models.Shop, error)
	ShopByPageID(ctx context.Context, pageID string) (*models.Shop, error)
	ProductByID(ctx context.Context, id string) (*models.Product, error)
	SearchProducts(ctx context.Context, shopID, category string, limit int) ([]models.Product, error)

	// Cart
	AddOrIncrementSelection(ctx context.Context, product *models.Product, variant *models.Variant, userID string) (*models.Cart, error)
	CartByUser(ctx context.Context, shopID, userID string) (*models.Cart, error)

	// Conversations
	ConversationByUser(ctx context.Context, shopID, userID string) (*models.Conversation, error)
	ConversationBySession(ctx context.Context, sessionID string) (*models.Conversation, error)
	UpsertConversation(ctx context.Context, conv *models.Conversation) error
	SetRobotAssisted(ctx context.Context, conversationID string, enabled bool) error
	SaveConversationContexts(ctx context.Context, sessionID string, contexts json.RawMessage) error
	ListConversations(ctx context.Context, shopID string) ([]models.Conversation, error)
	SaveMessage(ctx context.Context, msg *models.Message) error

	Close() error
}
