// Package stripe provides a minimal HTTP client for Stripe Checkout Sessions.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/studiolegale/sld_backend/config"
)

var (
	ErrSessionFailed      = errors.New("stripe: checkout session creation failed")
	ErrSessionNotFound    = errors.New("stripe: checkout session not found")
	ErrInvalidSignature   = errors.New("stripe: invalid webhook signature")
	ErrUnexpectedResponse = errors.New("stripe: unexpected response from gateway")
)

const apiBase = "https://api.stripe.com/v1"

// Client is a lightweight Stripe HTTP client.
type Client struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

// New creates a Client from config. The same client serves sandbox and live;
// the key prefix ("sk_test_" vs "sk_live_") selects the environment.
func New(cfg config.StripeConfig) *Client {
	return &Client{
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       apiBase,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CheckoutSession is the subset of the session object the booking flow needs.
type CheckoutSession struct {
	ID       string            `json:"id"`
	URL      string            `json:"url"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// CreateCheckoutSession creates a hosted checkout page for a single line item
// and returns the session with its redirect URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, amountCents int64, currency, description, successURL, cancelURL string, metadata map[string]string) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(amountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", description)
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionFailed, err)
	}
	if session.URL == "" {
		return nil, ErrUnexpectedResponse
	}
	return &session, nil
}

// GetCheckoutSession retrieves a session by id, used by the success page to
// resolve which reservation was paid.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.do(ctx, http.MethodGet, "/checkout/sessions/"+url.PathEscape(id), nil, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	return &session, nil
}

// WebhookEvent is a verified Stripe event envelope.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object CheckoutSession `json:"object"`
	} `json:"data"`
}

// VerifyWebhook checks the Stripe-Signature header against the payload and
// decodes the event. Signature scheme: t=<unix>,v1=<hmac-sha256>.
func (c *Client) VerifyWebhook(payload []byte, sigHeader string) (*WebhookEvent, error) {
	if c.webhookSecret == "" {
		return nil, ErrInvalidSignature
	}

	var timestamp, signature string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signature = kv[1]
		}
	}
	if timestamp == "" || signature == "" {
		return nil, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return &event, nil
}

// do sends a form-encoded request to baseURL+path and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&apiErr)
		return fmt.Errorf("status %d: %s", res.StatusCode, apiErr.Error.Message)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
