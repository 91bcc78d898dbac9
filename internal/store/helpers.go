package store

import (
	"database/sql"
	"fmt"

	"github.com/Osangy/api-sub000/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanShopRow scans a Shop from a single sql.Row.
func scanShopRow(row *sql.Row) (*models.Shop, error) {
	var s models.Shop
	var ownerPhone sql.NullString
	err := row.Scan(&s.ID, &s.Name, &s.PageID, &s.Currency, &ownerPhone, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.OwnerPhone = ownerPhone.String
	return &s, nil
}

// scanProductRow scans a Product (without variants) from a single sql.Row.
func scanProductRow(row *sql.Row) (*models.Product, error) {
	var p models.Product
	var description, category, imageURL sql.NullString
	err := row.Scan(&p.ID, &p.ShopID, &p.Name, &description, &category, &p.Price, &p.Currency, &imageURL)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.Category = category.String
	p.ImageURL = imageURL.String
	return &p, nil
}

// scanProducts scans a product result set (without variants).
func scanProducts(rows *sql.Rows) ([]models.Product, error) {
	var products []models.Product
	for rows.Next() {
		var p models.Product
		var description, category, imageURL sql.NullString
		if err := rows.Scan(&p.ID, &p.ShopID, &p.Name, &description, &category, &p.Price, &p.Currency, &imageURL); err != nil {
			return nil, fmt.Errorf("scan product failed: %w", err)
		}
		p.Description = description.String
		p.Category = category.String
		p.ImageURL = imageURL.String
		products = append(products, p)
	}
	return products, rows.Err()
}

// scanVariants scans a variant result set.
func scanVariants(rows *sql.Rows) ([]models.Variant, error) {
	var variants []models.Variant
	for rows.Next() {
		var v models.Variant
		var color, size sql.NullString
		if err := rows.Scan(&v.ID, &v.ProductID, &color, &size, &v.Stock); err != nil {
			return nil, fmt.Errorf("scan variant failed: %w", err)
		}
		v.Color = color.String
		v.Size = size.String
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// scanConversationRow scans a Conversation from a single sql.Row.
func scanConversationRow(row *sql.Row) (*models.Conversation, error) {
	var c models.Conversation
	var firstName, lastName, contexts sql.NullString
	err := row.Scan(&c.ID, &c.ShopID, &c.UserID, &c.SessionID, &firstName, &lastName, &c.RobotAssisted, &contexts, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.FirstName = firstName.String
	c.LastName = lastName.String
	if contexts.Valid && contexts.String != "" {
		c.NluContexts = []byte(contexts.String)
	}
	return &c, nil
}

// scanConversations scans a conversation result set.
func scanConversations(rows *sql.Rows) ([]models.Conversation, error) {
	var conversations []models.Conversation
	for rows.Next() {
		var c models.Conversation
		var firstName, lastName, contexts sql.NullString
		if err := rows.Scan(&c.ID, &c.ShopID, &c.UserID, &c.SessionID, &firstName, &lastName, &c.RobotAssisted, &contexts, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation failed: %w", err)
		}
		c.FirstName = firstName.String
		c.LastName = lastName.String
		if contexts.Valid && contexts.String != "" {
			c.NluContexts = []byte(contexts.String)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// scanSelections scans a cart selection result set.
func scanSelections(rows *sql.Rows) ([]models.Selection, error) {
	var selections []models.Selection
	for rows.Next() {
		var s models.Selection
		if err := rows.Scan(&s.ID, &s.CartID, &s.VariantID, &s.ProductID, &s.Quantity, &s.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan selection failed: %w", err)
		}
		selections = append(selections, s)
	}
	return selections, rows.Err()
}
