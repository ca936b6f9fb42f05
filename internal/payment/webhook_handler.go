package payment

import (
	"io"
	"log/slog"
	"net/http"

	errors "github.com/pulseawards/vote-payments/internal"
	paymentmodel "github.com/pulseawards/vote-payments/internal/core/datamodel/payment"
	"github.com/pulseawards/vote-payments/internal/gateway"
	"github.com/pulseawards/vote-payments/internal/transport"
	"github.com/pulseawards/vote-payments/pkg/logger"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives gateway callbacks. Responses follow the contract
// gateways retry on: 2xx acknowledges (including idempotent no-ops), 404
// signals an unknown reference so the gateway re-delivers, 5xx signals a
// transient store failure.
type WebhookHandler struct {
	*transport.BaseHandler
	Service  ServiceAPI
	Gateways *gateway.Registry
}

func NewWebhookHandler(service ServiceAPI, gateways *gateway.Registry) *WebhookHandler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &WebhookHandler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
		Gateways:    gateways,
	}
}

// HandleMpesaCallback processes push-gateway result callbacks. The gateway
// does not sign deliveries; the URL path is the only shared secret.
func (h *WebhookHandler) HandleMpesaCallback(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error("HandleMpesaCallback: failed to read body", "error", err)
		h.HandleError(w, errors.NewValidationError("unreadable request body", errors.ErrCodeValidationFailed))
		return
	}

	if err := h.Service.HandleCallback(r.Context(), paymentmodel.GatewayPush, payload); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}

// HandlePaystackWebhook processes redirect-gateway webhook events. The
// signature covers the raw body, so it is verified before any parsing.
func (h *WebhookHandler) HandlePaystackWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error("HandlePaystackWebhook: failed to read body", "error", err)
		h.HandleError(w, errors.NewValidationError("unreadable request body", errors.ErrCodeValidationFailed))
		return
	}

	adapter, err := h.Gateways.ForKind(paymentmodel.GatewayRedirect)
	if err != nil {
		h.Logger.Error("HandlePaystackWebhook: no redirect adapter", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "gateway not configured")
		return
	}

	if verifier, ok := adapter.(gateway.SignatureVerifier); ok {
		signature := r.Header.Get("X-Paystack-Signature")
		if err := verifier.VerifySignature(payload, signature); err != nil {
			h.Logger.Warn("HandlePaystackWebhook: signature rejected",
				"error", err, "remote_addr", r.RemoteAddr)
			h.HandleServiceError(w, err)
			return
		}
	}

	if err := h.Service.HandleCallback(r.Context(), paymentmodel.GatewayRedirect, payload); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
