package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/metrics"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/payment"
	"github.com/aussiebroadwan/craftconnect/pkg/httpx"
	"github.com/aussiebroadwan/craftconnect/pkg/slogx"
)

// PaymentHandler serves checkout verification and order creation.
type PaymentHandler struct {
	Verifier *payment.Verifier
	Orders   *payment.OrderClient
	Metrics  *metrics.Metrics
}

// HandleVerify godoc
//
//	@Summary		Verify a checkout signature
//	@Description	Checks the signature returned by the payment widget against the order and payment ids.
//	@Tags			Payments
//	@Accept			json
//	@Produce		json
//	@Param			body	body		VerifyPaymentRequest	true	"checkout result"
//	@Success		200		{object}	SuccessResponse
//	@Failure		400		{object}	map[string]string	"error"
//	@Failure		500		{object}	map[string]string	"error"
//	@Router			/payments/verify [post].
func (h *PaymentHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req VerifyPaymentRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.ErrMalformedBody.WriteError(w)
		return
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		h.count("missing")
		errMissingPaymentParams.WriteError(w)
		return
	}

	err := h.Verifier.Verify(req.OrderID, req.PaymentID, req.Signature)
	switch {
	case errors.Is(err, payment.ErrNotConfigured):
		h.count("unconfigured")
		log.Error("payment verification without key secret")
		errPaymentNotConfigured.WriteError(w)
		return
	case errors.Is(err, payment.ErrBadSignature):
		h.count("mismatch")
		log.Warn("payment signature mismatch", "order_id", req.OrderID, "payment_id", req.PaymentID)
		errPaymentFailed.WriteError(w)
		return
	case err != nil:
		h.count("error")
		errPaymentVerifyInternal.WriteError(w)
		return
	}

	h.count("ok")
	log.Info("payment verified", "order_id", req.OrderID, "payment_id", req.PaymentID)
	httpx.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Payment verified successfully"})
}

// HandleCreateOrder godoc
//
//	@Summary		Create a payment order
//	@Description	Creates an order on the payment gateway. Amount is in major units.
//	@Tags			Payments
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		CreateOrderRequest	true	"order"
//	@Success		200		{object}	CreateOrderResponse
//	@Failure		400		{object}	map[string]string	"error"
//	@Failure		401		{object}	map[string]string	"error"
//	@Failure		500		{object}	map[string]string	"error"
//	@Failure		502		{object}	map[string]string	"error"
//	@Router			/payments/orders [post].
func (h *PaymentHandler) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req CreateOrderRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.ErrMalformedBody.WriteError(w)
		return
	}
	if req.Amount <= 0 || req.Receipt == "" {
		errOrderFields.WriteError(w)
		return
	}
	if !h.Orders.Configured() {
		errOrderNotConfigured.WriteError(w)
		return
	}

	order, err := h.Orders.CreateOrder(ctx, payment.OrderRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		log.Error("create order failed", "receipt", req.Receipt, "err", err)
		errOrderUpstream.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, CreateOrderResponse{Success: true, Order: order})
}

func (h *PaymentHandler) count(result string) {
	if h.Metrics != nil {
		h.Metrics.PaymentChecks.WithLabelValues(result).Inc()
	}
}
