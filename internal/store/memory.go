package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Osangy/api-sub000/internal/models"
	"github.com/google/uuid"
)

// InMemoryStore implements Store in memory for tests and local development.
type InMemoryStore struct {
	mu            sync.RWMutex
	shops         map[string]*models.Shop
	products      map[string]*models.Product
	carts         map[string]*models.Cart // keyed by shopID + "/" + userID
	conversations map[string]*models.Conversation
	messages      []models.Message
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		shops:         make(map[string]*models.Shop),
		products:      make(map[string]*models.Product),
		carts:         make(map[string]*models.Cart),
		conversations: make(map[string]*models.Conversation),
	}
}

// AddShop seeds a shop. Test helper.
func (s *InMemoryStore) AddShop(shop *models.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shops[shop.ID] = shop
}

// AddProduct seeds a product with its variants. Test helper.
func (s *InMemoryStore) AddProduct(product *models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

// RemoveProduct deletes a seeded product. Test helper.
func (s *InMemoryStore) RemoveProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

func cartKey(shopID, userID string) string {
	return shopID + "/" + userID
}

func (s *InMemoryStore) GetShop(ctx context.Context, id string) (*models.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shop, ok := s.shops[id]
	if !ok {
		return nil, models.ErrShopNotFound
	}
	return shop, nil
}

func (s *InMemoryStore) ShopByPageID(ctx context.Context, pageID string) (*models.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, shop := range s.shops {
		if shop.PageID == pageID {
			return shop, nil
		}
	}
	return nil, models.ErrShopNotFound
}

func (s *InMemoryStore) ProductByID(ctx context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.products[id]
	if !ok {
		return nil, models.ErrProductNotFound
	}
	return product, nil
}

func (s *InMemoryStore) SearchProducts(ctx context.Context, shopID, category string, limit int) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Product
	for _, p := range s.products {
		if p.ShopID != shopID {
			continue
		}
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) AddOrIncrementSelection(ctx context.Context, product *models.Product, variant *models.Variant, userID string) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cartKey(product.ShopID, userID)
	cart, ok := s.carts[key]
	if !ok {
		cart = &models.Cart{
			ID:       uuid.NewString(),
			ShopID:   product.ShopID,
			UserID:   userID,
			Currency: product.Currency,
		}
		s.carts[key] = cart
	}

	found := false
	for i := range cart.Selections {
		if cart.Selections[i].VariantID == variant.ID {
			cart.Selections[i].Quantity++
			found = true
			break
		}
	}
	if !found {
		cart.Selections = append(cart.Selections, models.Selection{
			ID:        uuid.NewString(),
			CartID:    cart.ID,
			VariantID: variant.ID,
			ProductID: product.ID,
			Quantity:  1,
			UnitPrice: product.Price,
		})
	}

	cart.TotalPrice = 0
	cart.NbProducts = 0
	for _, sel := range cart.Selections {
		cart.TotalPrice += int64(sel.Quantity) * sel.UnitPrice
		cart.NbProducts += sel.Quantity
	}
	cart.UpdatedAt = time.Now().UTC()

	clone := *cart
	clone.Selections = append([]models.Selection(nil), cart.Selections...)
	return &clone, nil
}

func (s *InMemoryStore) CartByUser(ctx context.Context, shopID, userID string) (*models.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cart, ok := s.carts[cartKey(shopID, userID)]
	if !ok {
		return nil, nil
	}
	clone := *cart
	clone.Selections = append([]models.Selection(nil), cart.Selections...)
	return &clone, nil
}

func (s *InMemoryStore) ConversationByUser(ctx context.Context, shopID, userID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conv := range s.conversations {
		if conv.ShopID == shopID && conv.UserID == userID {
			clone := *conv
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ConversationBySession(ctx context.Context, sessionID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conv := range s.conversations {
		if conv.SessionID == sessionID {
			clone := *conv
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) UpsertConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.conversations {
		if existing.ShopID == conv.ShopID && existing.UserID == conv.UserID {
			existing.FirstName = conv.FirstName
			existing.LastName = conv.LastName
			existing.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	clone := *conv
	clone.UpdatedAt = time.Now().UTC()
	s.conversations[conv.ID] = &clone
	return nil
}

func (s *InMemoryStore) SetRobotAssisted(ctx context.Context, conversationID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.ErrConversationNotFound
	}
	conv.RobotAssisted = enabled
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) SaveConversationContexts(ctx context.Context, sessionID string, contexts json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.conversations {
		if conv.SessionID == sessionID {
			conv.NluContexts = append(json.RawMessage(nil), contexts...)
			conv.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) ListConversations(ctx context.Context, shopID string) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Conversation
	for _, conv := range s.conversations {
		if conv.ShopID == shopID {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *InMemoryStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *msg)
	return nil
}

// Messages returns all persisted messages. Test helper.
func (s *InMemoryStore) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message(nil), s.messages...)
}

func (s *InMemoryStore) Close() error { return nil }
