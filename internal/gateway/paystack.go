package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	internal "github.com/pulseawards/vote-payments/internal"
	paymentmodel "github.com/pulseawards/vote-payments/internal/core/datamodel/payment"
)

type PaystackConfig struct {
	BaseURL        string
	SecretKey      string
	CallbackURL    string
	RequestTimeout time.Duration
}

// PaystackAdapter drives the redirect gateway: it opens a hosted checkout
// session and resolves either through a signed webhook or through the
// pull-based Verify call the client polls after redirect-back.
type PaystackAdapter struct {
	cfg    PaystackConfig
	client *resty.Client
	logger *slog.Logger
}

func NewPaystackAdapter(cfg PaystackConfig, logger *slog.Logger) *PaystackAdapter {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.SecretKey)

	return &PaystackAdapter{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

func (a *PaystackAdapter) Name() string {
	return "paystack"
}

func (a *PaystackAdapter) Kind() string {
	return paymentmodel.GatewayRedirect
}

type paystackInitRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	CallbackURL string `json:"callback_url,omitempty"`
	Metadata    struct {
		AttemptID string `json:"attempt_id"`
	} `json:"metadata"`
}

type paystackInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type paystackErrorResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// Submit opens a hosted checkout session. The session reference becomes the
// attempt's canonical correlation id and the authorization URL is handed to
// the client for redirect.
func (a *PaystackAdapter) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	initReq := paystackInitRequest{
		Email:       req.PayerContact,
		Amount:      req.AmountCents,
		Currency:    req.Currency,
		CallbackURL: a.cfg.CallbackURL,
	}
	initReq.Metadata.AttemptID = req.AttemptID

	var initResp paystackInitResponse
	var errResp paystackErrorResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(initReq).
		SetResult(&initResp).
		SetError(&errResp).
		Post("/transaction/initialize")
	if err != nil {
		a.logger.Error("paystack initialize request failed", "error", err, "attempt_id", req.AttemptID)
		return nil, internal.NewGatewayError("payment could not be started", internal.ErrCodeGatewayUnavailable, err)
	}

	if resp.IsError() {
		a.logger.Error("paystack initialize rejected",
			"status", resp.Status(),
			"message", errResp.Message,
			"attempt_id", req.AttemptID)
		return nil, internal.NewGatewayError(
			fmt.Sprintf("gateway rejected the request: %s", errResp.Message),
			internal.ErrCodeGatewayRejected, nil)
	}

	if !initResp.Status || initResp.Data.Reference == "" || initResp.Data.AuthorizationURL == "" {
		a.logger.Error("paystack initialize not successful",
			"message", initResp.Message,
			"attempt_id", req.AttemptID)
		return nil, internal.NewGatewayError(
			fmt.Sprintf("gateway did not accept the request: %s", initResp.Message),
			internal.ErrCodeGatewayRejected, nil)
	}

	a.logger.Info("paystack checkout session opened",
		"attempt_id", req.AttemptID,
		"reference", initResp.Data.Reference)

	raw, _ := json.Marshal(initResp)
	return &SubmitResult{
		Reference:   initResp.Data.Reference,
		CheckoutURL: initResp.Data.AuthorizationURL,
		Raw:         raw,
	}, nil
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID              int64  `json:"id"`
		Status          string `json:"status"`
		Reference       string `json:"reference"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// Verify pulls the charge status for a checkout session. "ongoing" and
// "pending" sessions stay pending; only the gateway's terminal statuses
// produce a terminal outcome.
func (a *PaystackAdapter) Verify(ctx context.Context, reference string) (*CallbackResult, error) {
	var verifyResp paystackVerifyResponse
	var errResp paystackErrorResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&verifyResp).
		SetError(&errResp).
		Get("/transaction/verify/" + reference)
	if err != nil {
		return nil, internal.NewGatewayError("verification unavailable", internal.ErrCodeGatewayUnavailable, err)
	}
	if resp.IsError() {
		return nil, internal.NewGatewayError(
			fmt.Sprintf("gateway verification error: %s", errResp.Message),
			internal.ErrCodeGatewayRejected, nil)
	}

	raw, _ := json.Marshal(verifyResp)
	result := &CallbackResult{
		Reference: reference,
		Raw:       raw,
	}
	if verifyResp.Data.ID != 0 {
		result.GatewayTransactionID = fmt.Sprintf("%d", verifyResp.Data.ID)
	}

	switch verifyResp.Data.Status {
	case "success":
		result.Outcome = OutcomeSuccess
	case "failed", "abandoned", "reversed":
		result.Outcome = OutcomeFailed
		result.FailureReason = verifyResp.Data.GatewayResponse
	default:
		result.Outcome = OutcomePending
	}

	return result, nil
}

type paystackWebhookEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		ID              int64  `json:"id"`
		Status          string `json:"status"`
		Reference       string `json:"reference"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// NormalizeCallback maps a webhook event to the engine's shape. The reference
// has appeared as data.reference, a top-level reference, and trxref across
// event types.
func (a *PaystackAdapter) NormalizeCallback(payload []byte) (*CallbackResult, error) {
	var envelope paystackWebhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("malformed paystack webhook: %w", err)
	}

	reference := envelope.Data.Reference
	if reference == "" {
		reference = scanForReference(payload, "reference", "trxref", "trx_ref")
	}
	if reference == "" {
		return nil, fmt.Errorf("paystack webhook missing reference")
	}

	result := &CallbackResult{
		Reference: reference,
		Raw:       json.RawMessage(payload),
	}
	if envelope.Data.ID != 0 {
		result.GatewayTransactionID = fmt.Sprintf("%d", envelope.Data.ID)
	}

	switch envelope.Event {
	case "charge.success":
		result.Outcome = OutcomeSuccess
	case "charge.failed":
		result.Outcome = OutcomeFailed
		result.FailureReason = envelope.Data.GatewayResponse
	default:
		// Status carried in the payload decides for event types we do not
		// special-case.
		switch envelope.Data.Status {
		case "success":
			result.Outcome = OutcomeSuccess
		case "failed", "abandoned", "reversed":
			result.Outcome = OutcomeFailed
			result.FailureReason = envelope.Data.GatewayResponse
		default:
			result.Outcome = OutcomePending
		}
	}

	return result, nil
}

// VerifySignature checks the HMAC-SHA512 the gateway computes over the raw
// webhook body with the account secret.
func (a *PaystackAdapter) VerifySignature(payload []byte, signature string) error {
	if signature == "" {
		return internal.NewUnauthorizedError("missing webhook signature", internal.ErrCodeBadSignature)
	}

	mac := hmac.New(sha512.New, []byte(a.cfg.SecretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return internal.NewUnauthorizedError("invalid webhook signature", internal.ErrCodeBadSignature)
	}
	return nil
}
