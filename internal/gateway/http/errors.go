package http

import (
	"net/http"

	"github.com/aussiebroadwan/craftconnect/pkg/httpx"
)

var (
	errInvalidAssertion = httpx.NewError(http.StatusUnauthorized, "Invalid identity assertion")
	errMissingIdentity  = httpx.NewError(http.StatusBadRequest, "Missing identity")

	errMissingPaymentParams  = httpx.NewError(http.StatusBadRequest, "Missing required payment verification parameters")
	errPaymentNotConfigured  = httpx.NewError(http.StatusInternalServerError, "Payment verification not configured")
	errPaymentFailed         = httpx.NewError(http.StatusBadRequest, "Payment verification failed")
	errPaymentVerifyInternal = httpx.NewError(http.StatusInternalServerError, "Failed to verify payment")

	errOrderFields        = httpx.NewError(http.StatusBadRequest, "Amount and receipt are required")
	errOrderNotConfigured = httpx.NewError(http.StatusInternalServerError, "Payment gateway credentials not configured")
	errOrderUpstream      = httpx.NewError(http.StatusBadGateway, "Failed to create order")
)
