// Package payment talks to the external hosted-checkout provider. Card data
// never touches this system; we create a session, hand the customer the
// provider's redirect URL, and hear back through the signed webhook.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type SessionRequest struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	AmountCents   int    `json:"amount_cents"`
	CustomerEmail string `json:"customer_email"`
	SuccessURL    string `json:"success_url,omitempty"`
	CancelURL     string `json:"cancel_url,omitempty"`
}

// Session is the provider's handle on a hosted checkout page. Reference is
// what the webhook will later carry as reference_id.
type Session struct {
	Reference   string `json:"id"`
	RedirectURL string `json:"url"`
}

type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

type Client struct {
	BaseURL    string
	APIKey     string
	SuccessURL string
	CancelURL  string
	HTTP       *http.Client
}

func NewClient(baseURL, apiKey, successURL, cancelURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if req.SuccessURL == "" {
		req.SuccessURL = c.SuccessURL
	}
	if req.CancelURL == "" {
		req.CancelURL = c.CancelURL
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("create session: provider returned %d: %s", resp.StatusCode, b)
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("create session: decode response: %w", err)
	}
	if sess.Reference == "" || sess.RedirectURL == "" {
		return nil, fmt.Errorf("create session: provider response missing id or url")
	}
	return &sess, nil
}
