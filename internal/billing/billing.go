package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrProviderRejected is returned when the payment provider answers with a
// non-2xx status.
var ErrProviderRejected = errors.New("payment provider rejected request")

// Client talks to the payment provider's checkout API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type checkoutRequest struct {
	Plan       string `json:"plan"`
	Interval   string `json:"interval"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// CreateCheckoutSession returns the redirect URL the user completes payment
// at.
func (c *Client) CreateCheckoutSession(ctx context.Context, plan, interval, successURL, cancelURL string) (CheckoutSession, error) {
	body, err := json.Marshal(checkoutRequest{Plan: plan, Interval: interval, SuccessURL: successURL, CancelURL: cancelURL})
	if err != nil {
		return CheckoutSession{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return CheckoutSession{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return CheckoutSession{}, fmt.Errorf("create checkout session: %w (status %d)", ErrProviderRejected, resp.StatusCode)
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return CheckoutSession{}, fmt.Errorf("decode checkout session: %w", err)
	}
	return session, nil
}

type verifyResponse struct {
	SessionID string `json:"session_id"`
	Paid      bool   `json:"paid"`
}

// VerifySession reports whether the checkout session was paid.
func (c *Client) VerifySession(ctx context.Context, sessionID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/checkout/sessions/"+sessionID, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("verify checkout session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("verify checkout session: %w (status %d)", ErrProviderRejected, resp.StatusCode)
	}

	var verified verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verified); err != nil {
		return false, fmt.Errorf("decode verify response: %w", err)
	}
	return verified.Paid, nil
}
