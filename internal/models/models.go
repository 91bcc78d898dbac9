// Package models defines the core data structures shared across the bot:
// shops, products and their variants, carts, and conversations.
package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Sentinel errors shared across components.
var (
	ErrShopNotFound         = errors.New("shop not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrVariantNotFound      = errors.New("no variant matches the selected attributes")
	ErrConversationNotFound = errors.New("conversation not found")
)

// Shop represents a merchant whose page the bot serves.
type Shop struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PageID     string    `json:"page_id"`
	Currency   string    `json:"currency"`
	OwnerPhone string    `json:"owner_phone,omitempty"` // E.164, used for escalation alerts
	CreatedAt  time.Time `json:"created_at"`
}

// Variant is a concrete purchasable SKU: a product plus a full set of
// attribute values. Color and Size are stored lower-cased.
type Variant struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
	Stock     int    `json:"stock"`
}

// Product is a catalog entry. Price is in minor currency units (cents).
type Product struct {
	ID          string    `json:"id"`
	ShopID      string    `json:"shop_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Price       int64     `json:"price"`
	Currency    string    `json:"currency"`
	ImageURL    string    `json:"image_url,omitempty"`
	Variants    []Variant `json:"variants,omitempty"`
}

// Colors returns the distinct variant colors in first-seen order, lower-cased.
func (p *Product) Colors() []string {
	return distinctAttr(p.Variants, func(v Variant) string { return v.Color })
}

// Sizes returns the distinct variant sizes in first-seen order, lower-cased.
func (p *Product) Sizes() []string {
	return distinctAttr(p.Variants, func(v Variant) string { return v.Size })
}

func distinctAttr(variants []Variant, get func(Variant) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range variants {
		val := strings.ToLower(strings.TrimSpace(get(v)))
		if val == "" || seen[val] {
			continue
		}
		seen[val] = true
		out = append(out, val)
	}
	return out
}

// ResolveVariant finds the single variant matching the given attribute
// values. Matching is case-insensitive; attribute values are expected
// normalized (lower-cased) by the caller, but input is re-normalized
// anyway. Returns ErrVariantNotFound when no variant matches.
func (p *Product) ResolveVariant(attrs map[string]string) (*Variant, error) {
	want := make(map[string]string, len(attrs))
	for k, v := range attrs {
		want[k] = strings.ToLower(strings.TrimSpace(v))
	}
	for i := range p.Variants {
		v := &p.Variants[i]
		if color, ok := want[AttributeColor]; ok && strings.ToLower(v.Color) != color {
			continue
		}
		if size, ok := want[AttributeSize]; ok && strings.ToLower(v.Size) != size {
			continue
		}
		return v, nil
	}
	return nil, ErrVariantNotFound
}

// Selection is one line item of a cart.
type Selection struct {
	ID        string `json:"id"`
	CartID    string `json:"cart_id"`
	VariantID string `json:"variant_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Cart holds a user's in-progress order for one shop. TotalPrice and
// NbProducts are aggregates recomputed on every mutation.
type Cart struct {
	ID         string      `json:"id"`
	ShopID     string      `json:"shop_id"`
	UserID     string      `json:"user_id"`
	Selections []Selection `json:"selections,omitempty"`
	TotalPrice int64       `json:"total_price"`
	NbProducts int         `json:"nb_products"`
	Currency   string      `json:"currency"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Conversation tracks one user's thread with a shop. SessionID keys NLU
// requests; NluContexts is the opaque context blob the NLU service returns
// and expects replayed verbatim on the next turn.
type Conversation struct {
	ID            string          `json:"id"`
	ShopID        string          `json:"shop_id"`
	UserID        string          `json:"user_id"`
	SessionID     string          `json:"session_id"`
	FirstName     string          `json:"first_name,omitempty"`
	LastName      string          `json:"last_name,omitempty"`
	RobotAssisted bool            `json:"robot_assisted"`
	NluContexts   json.RawMessage `json:"nlu_contexts,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Message is one persisted inbound or outbound message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Text           string    `json:"text"`
	Inbound        bool      `json:"inbound"`
	Timestamp      time.Time `json:"timestamp"`
}

// DialogueTurn is one inbound message plus the sender's identity. It is
// ephemeral; the dispatcher consumes it and never persists it as-is.
type DialogueTurn struct {
	ShopID string    `json:"shop_id"`
	UserID string    `json:"user_id"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope for HTTP responses.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
