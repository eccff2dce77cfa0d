// Package payment checks payment gateway signatures and creates orders on
// the gateway's API.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/craftconnect/pkg/cryptox"
)

const (
	DefaultAPIBase  = "https://api.razorpay.com"
	DefaultCurrency = "INR"
)

var (
	ErrNotConfigured = errors.New("payment: credentials not configured")
	ErrBadSignature  = errors.New("payment: signature mismatch")
)

// Verifier checks the signature the checkout widget returns after payment.
type Verifier struct {
	secret string
}

func NewVerifier(keySecret string) *Verifier {
	return &Verifier{secret: keySecret}
}

// Verify expects signature to be the hex HMAC-SHA256 of "orderID|paymentID"
// under the key secret.
func (v *Verifier) Verify(orderID, paymentID, signature string) error {
	if v == nil || v.secret == "" {
		return ErrNotConfigured
	}
	if !cryptox.VerifyHex(v.secret, orderID+"|"+paymentID, signature) {
		return ErrBadSignature
	}
	return nil
}

// OrderRequest is in major units; the client converts to the smallest unit.
// Notes are forwarded as given.
type OrderRequest struct {
	Amount   float64         `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	Receipt  string          `json:"receipt"`
	Notes    json.RawMessage `json:"notes,omitempty"`
}

type upstreamOrder struct {
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  string          `json:"receipt"`
	Notes    json.RawMessage `json:"notes,omitempty"`
}

// UpstreamError is a non-2xx answer from the payment API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("payment: upstream %d: %s", e.StatusCode, e.Body)
}

// OrderClient creates orders through the payment API with basic auth.
type OrderClient struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	HTTPClient *http.Client
}

func NewOrderClient(baseURL, keyID, keySecret string) *OrderClient {
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	return &OrderClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		KeyID:      keyID,
		KeySecret:  keySecret,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether both credentials are set.
func (c *OrderClient) Configured() bool {
	return c != nil && c.KeyID != "" && c.KeySecret != ""
}

// CreateOrder returns the API's order object as-is.
func (c *OrderClient) CreateOrder(ctx context.Context, o OrderRequest) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	currency := o.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	body, err := json.Marshal(upstreamOrder{
		Amount:   int64(math.Round(o.Amount * 100)),
		Currency: currency,
		Receipt:  o.Receipt,
		Notes:    o.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("payment: encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payment: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.KeyID, c.KeySecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment: send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("payment: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("payment: upstream returned invalid json")
	}
	return json.RawMessage(data), nil
}
