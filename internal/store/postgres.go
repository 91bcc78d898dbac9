// Package store provides storage backends for the bot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/Osangy/api-sub000/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// Close releases the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// GetShop retrieves a shop by id.
func (s *PostgresStore) GetShop(ctx context.Context, id string) (*models.Shop, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, page_id, currency, owner_phone, created_at FROM shops WHERE id = $1`, id)
	shop, err := scanShopRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrShopNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetShop failed", "error", err, "id", id)
		return nil, fmt.Errorf("get shop %s: %w", id, err)
	}
	return shop, nil
}

// ShopByPageID retrieves the shop owning a Facebook page.
func (s *PostgresStore) ShopByPageID(ctx context.Context, pageID string) (*models.Shop, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, page_id, currency, owner_phone, created_at FROM shops WHERE page_id = $1`, pageID)
	shop, err := scanShopRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrShopNotFound
	}
	if err != nil {
		slog.Error("PostgresStore ShopByPageID failed", "error", err, "pageID", pageID)
		return nil, fmt.Errorf("get shop for page %s: %w", pageID, err)
	}
	return shop, nil
}

// ProductByID retrieves a product with its variants.
func (s *PostgresStore) ProductByID(ctx context.Context, id string) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, shop_id, name, description, category, price, currency, image_url FROM products WHERE id = $1`, id)
	product, err := scanProductRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		slog.Error("PostgresStore ProductByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, product_id, color, size, stock FROM variants WHERE product_id = $1 ORDER BY id`, id)
	if err != nil {
		slog.Error("PostgresStore ProductByID variants query failed", "error", err, "id", id)
		return nil, fmt.Errorf("get variants for %s: %w", id, err)
	}
	defer rows.Close()
	product.Variants, err = scanVariants(rows)
	if err != nil {
		return nil, fmt.Errorf("get variants for %s: %w", id, err)
	}
	return product, nil
}

// SearchProducts returns products of a shop, optionally filtered by
// category. Variants are not loaded; use ProductByID for a full record.
func (s *PostgresStore) SearchProducts(ctx context.Context, shopID, category string, limit int) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shop_id, name, description, category, price, currency, image_url FROM products
		 WHERE shop_id = $1 AND ($2 = '' OR lower(category) = lower($2)) ORDER BY name LIMIT $3`,
		shopID, category, limit)
	if err != nil {
		slog.Error("PostgresStore SearchProducts failed", "error", err, "shopID", shopID, "category", category)
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// AddOrIncrementSelection adds the variant to the user's cart, creating
// the cart and line item as needed, and recomputes the cart aggregates.
// The whole mutation runs in one transaction.
func (s *PostgresStore) AddOrIncrementSelection(ctx context.Context, product *models.Product, variant *models.Variant, userID string) (*models.Cart, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cart transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var cartID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM carts WHERE shop_id = $1 AND user_id = $2`, product.ShopID, userID).Scan(&cartID)
	if errors.Is(err, sql.ErrNoRows) {
		cartID = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO carts (id, shop_id, user_id, currency, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			cartID, product.ShopID, userID, product.Currency, now)
	}
	if err != nil {
		slog.Error("PostgresStore cart upsert failed", "error", err, "shopID", product.ShopID, "userID", userID)
		return nil, fmt.Errorf("upsert cart: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE cart_selections SET quantity = quantity + 1 WHERE cart_id = $1 AND variant_id = $2`,
		cartID, variant.ID)
	if err != nil {
		return nil, fmt.Errorf("increment selection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("increment selection: %w", err)
	}
	if affected == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cart_selections (id, cart_id, variant_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4, 1, $5)`,
			uuid.NewString(), cartID, variant.ID, product.ID, product.Price)
		if err != nil {
			return nil, fmt.Errorf("insert selection: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE carts SET
			total_price = (SELECT COALESCE(SUM(quantity * unit_price), 0) FROM cart_selections WHERE cart_id = $1),
			nb_products = (SELECT COALESCE(SUM(quantity), 0) FROM cart_selections WHERE cart_id = $1),
			updated_at = $2
		 WHERE id = $1`, cartID, now)
	if err != nil {
		return nil, fmt.Errorf("recompute cart totals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore cart commit failed", "error", err, "cartID", cartID)
		return nil, fmt.Errorf("commit cart mutation: %w", err)
	}
	slog.Debug("PostgresStore selection added", "cartID", cartID, "variantID", variant.ID, "userID", userID)

	return s.CartByUser(ctx, product.ShopID, userID)
}

// CartByUser loads a user's cart with its selections, or (nil, nil) when
// the user has no cart yet.
func (s *PostgresStore) CartByUser(ctx context.Context, shopID, userID string) (*models.Cart, error) {
	var c models.Cart
	err := s.db.QueryRowContext(ctx,
		`SELECT id, shop_id, user_id, total_price, nb_products, currency, updated_at FROM carts WHERE shop_id = $1 AND user_id = $2`,
		shopID, userID).Scan(&c.ID, &c.ShopID, &c.UserID, &c.TotalPrice, &c.NbProducts, &c.Currency, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore CartByUser failed", "error", err, "shopID", shopID, "userID", userID)
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cart_id, variant_id, product_id, quantity, unit_price FROM cart_selections WHERE cart_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart selections: %w", err)
	}
	defer rows.Close()
	c.Selections, err = scanSelections(rows)
	if err != nil {
		return nil, fmt.Errorf("get cart selections: %w", err)
	}
	return &c, nil
}

const pgConversationColumns = `id, shop_id, user_id, session_id, first_name, last_name, robot_assisted, nlu_contexts, updated_at`

// ConversationByUser loads a user's conversation with a shop, or (nil, nil).
func (s *PostgresStore) ConversationByUser(ctx context.Context, shopID, userID string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgConversationColumns+` FROM conversations WHERE shop_id = $1 AND user_id = $2`, shopID, userID)
	conv, err := scanConversationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore ConversationByUser failed", "error", err, "shopID", shopID, "userID", userID)
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// ConversationBySession loads a conversation by NLU session id, or (nil, nil).
func (s *PostgresStore) ConversationBySession(ctx context.Context, sessionID string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgConversationColumns+` FROM conversations WHERE session_id = $1`, sessionID)
	conv, err := scanConversationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore ConversationBySession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("get conversation by session: %w", err)
	}
	return conv, nil
}

// UpsertConversation inserts the conversation or refreshes its profile
// fields when one already exists for the (shop, user) pair.
func (s *PostgresStore) UpsertConversation(ctx context.Context, conv *models.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, shop_id, user_id, session_id, first_name, last_name, robot_assisted, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (shop_id, user_id) DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, updated_at = EXCLUDED.updated_at`,
		conv.ID, conv.ShopID, conv.UserID, conv.SessionID, nilIfEmpty(conv.FirstName), nilIfEmpty(conv.LastName), conv.RobotAssisted, time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore UpsertConversation failed", "error", err, "shopID", conv.ShopID, "userID", conv.UserID)
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// SetRobotAssisted toggles whether the bot owns replies for a conversation.
func (s *PostgresStore) SetRobotAssisted(ctx context.Context, conversationID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET robot_assisted = $1, updated_at = $2 WHERE id = $3`,
		enabled, time.Now().UTC(), conversationID)
	if err != nil {
		slog.Error("PostgresStore SetRobotAssisted failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("set robot assisted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set robot assisted: %w", err)
	}
	if affected == 0 {
		return models.ErrConversationNotFound
	}
	return nil
}

// SaveConversationContexts stores the opaque NLU context blob for replay on
// the next turn.
func (s *PostgresStore) SaveConversationContexts(ctx context.Context, sessionID string, contexts json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET nlu_contexts = $1, updated_at = $2 WHERE session_id = $3`,
		nilIfEmpty(string(contexts)), time.Now().UTC(), sessionID)
	if err != nil {
		slog.Error("PostgresStore SaveConversationContexts failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("save conversation contexts: %w", err)
	}
	return nil
}

// ListConversations returns a shop's conversations, most recent first.
func (s *PostgresStore) ListConversations(ctx context.Context, shopID string) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pgConversationColumns+` FROM conversations WHERE shop_id = $1 ORDER BY updated_at DESC`, shopID)
	if err != nil {
		slog.Error("PostgresStore ListConversations failed", "error", err, "shopID", shopID)
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

// SaveMessage persists one inbound or outbound message.
func (s *PostgresStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, user_id, text, inbound, ts) VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.UserID, msg.Text, msg.Inbound, msg.Timestamp)
	if err != nil {
		slog.Error("PostgresStore SaveMessage failed", "error", err, "conversationID", msg.ConversationID)
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}
