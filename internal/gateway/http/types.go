package http

import (
	"encoding/json"

	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
)

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Tokens   string `json:"tokens"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type LoginRequest struct {
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type EstablishSessionRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ProtectedResponse struct {
	Message   string        `json:"message"`
	User      jwtx.Identity `json:"user"`
	Timestamp string        `json:"timestamp"`
}

// MeResponse carries Tokens only when the call spent the refresh cookie. The
// caller must replace its stored pair with them.
type MeResponse struct {
	Authenticated bool            `json:"authenticated"`
	User          *jwtx.Identity  `json:"user,omitempty"`
	Tokens        *jwtx.TokenPair `json:"tokens,omitempty"`
}

type VerifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

type CreateOrderRequest struct {
	Amount   float64         `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	Receipt  string          `json:"receipt"`
	Notes    json.RawMessage `json:"notes,omitempty" swaggertype:"object"`
}

type CreateOrderResponse struct {
	Success bool `json:"success"`
	Order   any  `json:"order"`
}
