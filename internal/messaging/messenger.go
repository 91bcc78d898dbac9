// Package messaging implements the Facebook Messenger Send API client.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Osangy/api-sub000/internal/cart"
	"github.com/Osangy/api-sub000/internal/models"
)

const (
	// DefaultGraphBaseURL is the Facebook Graph API endpoint.
	DefaultGraphBaseURL = "https://graph.facebook.com/v12.0"
	// DefaultRequestTimeout bounds a single Send API call.
	DefaultRequestTimeout = 10 * time.Second
	// MaxGalleryElements is the Messenger generic template element limit.
	MaxGalleryElements = 10

	// AddCartPayloadPrefix prefixes the postback payload of a gallery
	// add-to-cart button; the product id follows.
	AddCartPayloadPrefix = "ADD_CART:"
	// HumanHelpPayload is the postback payload of the escalation option.
	HumanHelpPayload = "HUMAN_HELP"
)

// Opts holds configuration options for the Messenger client.
type Opts struct {
	AccessToken string
	BaseURL     string
	HTTPClient  *http.Client
}

// Option defines a configuration option for the Messenger client.
type Option func(*Opts)

// WithAccessToken sets the page access token.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithBaseURL overrides the Graph API endpoint, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(o *Opts) { o.BaseURL = baseURL }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = client }
}

// MessengerClient implements Service over the Facebook Messenger Send API.
type MessengerClient struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

// NewMessengerClient creates a Send API client for one page token.
func NewMessengerClient(opts ...Option) (*MessengerClient, error) {
	cfg := Opts{BaseURL: DefaultGraphBaseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("page access token must be provided")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	slog.Debug("MessengerClient created", "base_url", cfg.BaseURL)
	return &MessengerClient{accessToken: cfg.AccessToken, baseURL: cfg.BaseURL, httpClient: cfg.HTTPClient}, nil
}

// Send API payload structures.

type recipient struct {
	ID string `json:"id"`
}

type quickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

type button struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

type galleryElement struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Buttons  []button `json:"buttons,omitempty"`
}

type attachmentPayload struct {
	TemplateType string           `json:"template_type"`
	Elements     []galleryElement `json:"elements"`
}

type attachment struct {
	Type    string            `json:"type"`
	Payload attachmentPayload `json:"payload"`
}

type message struct {
	Text         string       `json:"text,omitempty"`
	QuickReplies []quickReply `json:"quick_replies,omitempty"`
	Attachment   *attachment  `json:"attachment,omitempty"`
}

type sendRequest struct {
	Recipient recipient `json:"recipient"`
	Message   message   `json:"message"`
}

// SendText sends a plain text message.
func (c *MessengerClient) SendText(ctx context.Context, to, text string) error {
	return c.send(ctx, sendRequest{Recipient: recipient{ID: to}, Message: message{Text: text}})
}

// SendQuickReplies sends a text message with tappable reply options. Each
// option's payload echoes its title so a tap arrives as a normal text turn.
func (c *MessengerClient) SendQuickReplies(ctx context.Context, to, text string, options []string) error {
	replies := make([]quickReply, 0, len(options))
	for _, opt := range options {
		replies = append(replies, quickReply{ContentType: "text", Title: opt, Payload: opt})
	}
	return c.send(ctx, sendRequest{Recipient: recipient{ID: to}, Message: message{Text: text, QuickReplies: replies}})
}

// SendProductGallery sends a generic-template carousel with an add-to-cart
// postback per product.
func (c *MessengerClient) SendProductGallery(ctx context.Context, to string, products []models.Product) error {
	if len(products) > MaxGalleryElements {
		products = products[:MaxGalleryElements]
	}
	elements := make([]galleryElement, 0, len(products))
	for _, p := range products {
		elements = append(elements, galleryElement{
			Title:    p.Name,
			Subtitle: cart.FormatPrice(p.Price, p.Currency),
			ImageURL: p.ImageURL,
			Buttons: []button{
				{Type: "postback", Title: "Add to cart", Payload: AddCartPayloadPrefix + p.ID},
			},
		})
	}
	return c.send(ctx, sendRequest{
		Recipient: recipient{ID: to},
		Message: message{Attachment: &attachment{
			Type:    "template",
			Payload: attachmentPayload{TemplateType: "generic", Elements: elements},
		}},
	})
}

// GetUserProfile fetches the user's first and last name from the Graph API.
func (c *MessengerClient) GetUserProfile(ctx context.Context, userID string) (firstName, lastName string, err error) {
	endpoint := fmt.Sprintf("%s/%s?fields=first_name,last_name&access_token=%s", c.baseURL, userID, url.QueryEscape(c.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("build profile request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("MessengerClient profile fetch failed", "error", err, "userID", userID)
		return "", "", fmt.Errorf("fetch profile for %s: %w", userID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", "", fmt.Errorf("profile request for %s returned %d: %s", userID, resp.StatusCode, body)
	}

	var profile struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", "", fmt.Errorf("decode profile for %s: %w", userID, err)
	}
	return profile.FirstName, profile.LastName, nil
}

func (c *MessengerClient) send(ctx context.Context, payload sendRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", c.baseURL, url.QueryEscape(c.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("MessengerClient send failed", "error", err, "to", payload.Recipient.ID)
		return fmt.Errorf("send to %s: %w", payload.Recipient.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("MessengerClient send rejected", "status", resp.StatusCode, "to", payload.Recipient.ID, "body", string(respBody))
		return fmt.Errorf("send to %s returned %d: %s", payload.Recipient.ID, resp.StatusCode, respBody)
	}
	slog.Debug("MessengerClient send succeeded", "to", payload.Recipient.ID)
	return nil
}
