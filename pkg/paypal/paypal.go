// Package paypal provides a minimal HTTP client for the PayPal Payments API.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/studiolegale/sld_backend/config"
)

var (
	ErrAuthFailed         = errors.New("paypal: authentication failed")
	ErrPaymentFailed      = errors.New("paypal: payment creation failed")
	ErrExecuteFailed      = errors.New("paypal: payment execution failed")
	ErrUnexpectedResponse = errors.New("paypal: unexpected response from gateway")
)

const (
	sandboxBase = "https://api-m.sandbox.paypal.com"
	liveBase    = "https://api-m.paypal.com"
)

// Client is a lightweight PayPal REST client with cached OAuth tokens.
type Client struct {
	clientID   string
	secret     string
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New creates a Client. sandbox selects the sandbox API host.
func New(cfg config.PayPalConfig, sandbox bool) *Client {
	base := liveBase
	if sandbox {
		base = sandboxBase
	}
	return &Client{
		clientID:   cfg.ClientID,
		secret:     cfg.Secret,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Payment is the subset of the payment object the booking flow needs.
type Payment struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	ApprovalURL string `json:"-"`
}

type paymentResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Links []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// CreatePayment creates a payment the payer must approve, returning the
// approval redirect URL alongside the payment id.
func (c *Client) CreatePayment(ctx context.Context, amountCents int64, currency, description, returnURL, cancelURL string) (*Payment, error) {
	body := map[string]any{
		"intent": "sale",
		"payer":  map[string]string{"payment_method": "paypal"},
		"transactions": []map[string]any{{
			"amount": map[string]string{
				"total":    fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100),
				"currency": strings.ToUpper(currency),
			},
			"description": description,
		}},
		"redirect_urls": map[string]string{
			"return_url": returnURL,
			"cancel_url": cancelURL,
		},
	}

	var res paymentResponse
	if err := c.post(ctx, "/v1/payments/payment", body, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	payment := &Payment{ID: res.ID, State: res.State}
	for _, link := range res.Links {
		if link.Rel == "approval_url" {
			payment.ApprovalURL = link.Href
		}
	}
	if payment.ApprovalURL == "" {
		return nil, ErrUnexpectedResponse
	}
	return payment, nil
}

// ExecutePayment completes an approved payment. The payer id comes from the
// PayerID query parameter on the return redirect.
func (c *Client) ExecutePayment(ctx context.Context, paymentID, payerID string) (*Payment, error) {
	body := map[string]string{"payer_id": payerID}

	var res paymentResponse
	if err := c.post(ctx, "/v1/payments/payment/"+url.PathEscape(paymentID)+"/execute", body, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecuteFailed, err)
	}
	if res.State != "approved" {
		return nil, fmt.Errorf("%w: state %q", ErrExecuteFailed, res.State)
	}
	return &Payment{ID: res.ID, State: res.State}, nil
}

// token returns a valid OAuth access token, fetching a fresh one when the
// cached token is missing or near expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrAuthFailed, res.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// post sends a JSON request to baseURL+path with bearer auth and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		var apiErr struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(res.Body).Decode(&apiErr)
		return fmt.Errorf("status %d: %s %s", res.StatusCode, apiErr.Name, apiErr.Message)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
