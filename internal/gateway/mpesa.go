package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	internal "github.com/pulseawards/vote-payments/internal"
	paymentmodel "github.com/pulseawards/vote-payments/internal/core/datamodel/payment"
)

// STK result codes that matter to reconciliation. Zero is success; 1032 is
// the payer dismissing the PIN prompt.
const (
	mpesaResultSuccess   = 0
	mpesaResultCancelled = 1032
)

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	RequestTimeout time.Duration
}

// MpesaAdapter drives the push gateway: it asks the gateway to prompt the
// payer's device for a PIN and resolves asynchronously via webhook. There is
// no pull-based verify; unresolved attempts expire by the staleness rule.
type MpesaAdapter struct {
	cfg    MpesaConfig
	client *resty.Client
	logger *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewMpesaAdapter(cfg MpesaConfig, logger *slog.Logger) *MpesaAdapter {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout)

	return &MpesaAdapter{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

func (a *MpesaAdapter) Name() string {
	return "mpesa"
}

func (a *MpesaAdapter) Kind() string {
	return paymentmodel.GatewayPush
}

type mpesaTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// token returns a cached OAuth token, refreshing it when within a minute of
// expiry.
func (a *MpesaAdapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry.Add(-time.Minute)) {
		return a.accessToken, nil
	}

	var tokenResp mpesaTokenResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBasicAuth(a.cfg.ConsumerKey, a.cfg.ConsumerSecret).
		SetQueryParam("grant_type", "client_credentials").
		SetResult(&tokenResp).
		Get("/oauth/v1/generate")
	if err != nil {
		return "", fmt.Errorf("mpesa token request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("mpesa token request returned status %s", resp.Status())
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("mpesa token response missing access_token")
	}

	ttl := 3600 * time.Second
	if secs, convErr := time.ParseDuration(tokenResp.ExpiresIn + "s"); convErr == nil && secs > 0 {
		ttl = secs
	}
	a.accessToken = tokenResp.AccessToken
	a.tokenExpiry = time.Now().Add(ttl)

	return a.accessToken, nil
}

type mpesaStkRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type mpesaStkResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type mpesaErrorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Submit triggers the STK prompt. On acceptance the gateway's
// CheckoutRequestID becomes the attempt's canonical reference.
func (a *MpesaAdapter) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	accessToken, err := a.token(ctx)
	if err != nil {
		return nil, internal.NewGatewayError("payment could not be started", internal.ErrCodeGatewayUnavailable, err)
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(a.cfg.ShortCode + a.cfg.Passkey + timestamp))

	// STK amounts are whole currency units, not subunits.
	stkReq := mpesaStkRequest{
		BusinessShortCode: a.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.AmountCents / 100,
		PartyA:            req.PayerContact,
		PartyB:            a.cfg.ShortCode,
		PhoneNumber:       req.PayerContact,
		CallBackURL:       a.cfg.CallbackURL,
		AccountReference:  req.AttemptID,
		TransactionDesc:   req.Description,
	}

	var stkResp mpesaStkResponse
	var errResp mpesaErrorResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json").
		SetBody(stkReq).
		SetResult(&stkResp).
		SetError(&errResp).
		Post("/mpesa/stkpush/v1/processrequest")
	if err != nil {
		a.logger.Error("mpesa stk push request failed", "error", err, "attempt_id", req.AttemptID)
		return nil, internal.NewGatewayError("payment could not be started", internal.ErrCodeGatewayUnavailable, err)
	}

	if resp.IsError() {
		a.logger.Error("mpesa stk push rejected",
			"status", resp.Status(),
			"error_code", errResp.ErrorCode,
			"error_message", errResp.ErrorMessage,
			"attempt_id", req.AttemptID)
		return nil, internal.NewGatewayError(
			fmt.Sprintf("gateway rejected the request: %s", errResp.ErrorMessage),
			internal.ErrCodeGatewayRejected, nil)
	}

	if stkResp.ResponseCode != "0" || stkResp.CheckoutRequestID == "" {
		a.logger.Error("mpesa stk push not accepted",
			"response_code", stkResp.ResponseCode,
			"response_description", stkResp.ResponseDescription,
			"attempt_id", req.AttemptID)
		return nil, internal.NewGatewayError(
			fmt.Sprintf("gateway did not accept the request: %s", stkResp.ResponseDescription),
			internal.ErrCodeGatewayRejected, nil)
	}

	a.logger.Info("mpesa stk push accepted",
		"attempt_id", req.AttemptID,
		"checkout_request_id", stkResp.CheckoutRequestID,
		"merchant_request_id", stkResp.MerchantRequestID)

	raw, _ := json.Marshal(stkResp)
	return &SubmitResult{
		Reference:       stkResp.CheckoutRequestID,
		CustomerMessage: stkResp.CustomerMessage,
		Raw:             raw,
	}, nil
}

type mpesaCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// NormalizeCallback maps an STK result callback to the engine's shape. The
// gateway has shipped the correlation id under more than one casing over
// time, so a generic scan backs up the canonical envelope.
func (a *MpesaAdapter) NormalizeCallback(payload []byte) (*CallbackResult, error) {
	var envelope mpesaCallbackEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("malformed mpesa callback: %w", err)
	}

	cb := envelope.Body.StkCallback
	reference := cb.CheckoutRequestID
	if reference == "" {
		reference = scanForReference(payload,
			"CheckoutRequestID", "checkoutRequestID", "checkout_request_id")
	}
	if reference == "" {
		return nil, fmt.Errorf("mpesa callback missing checkout request id")
	}

	result := &CallbackResult{
		Reference: reference,
		Raw:       json.RawMessage(payload),
	}

	switch cb.ResultCode {
	case mpesaResultSuccess:
		result.Outcome = OutcomeSuccess
		for _, item := range cb.CallbackMetadata.Item {
			if item.Name == "MpesaReceiptNumber" {
				if receipt, ok := item.Value.(string); ok {
					result.GatewayTransactionID = receipt
				}
			}
		}
	case mpesaResultCancelled:
		result.Outcome = OutcomeFailed
		result.FailureReason = "payer cancelled the prompt"
	default:
		result.Outcome = OutcomeFailed
		result.FailureReason = cb.ResultDesc
	}

	return result, nil
}

// scanForReference walks an arbitrary JSON document looking for the first
// non-empty string under any of the candidate keys.
func scanForReference(payload []byte, keys ...string) string {
	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return ""
	}
	return scanValue(doc, keys)
}

func scanValue(v interface{}, keys []string) string {
	switch node := v.(type) {
	case map[string]interface{}:
		for _, key := range keys {
			if raw, ok := node[key]; ok {
				if s, ok := raw.(string); ok && s != "" {
					return s
				}
			}
		}
		for _, child := range node {
			if found := scanValue(child, keys); found != "" {
				return found
			}
		}
	case []interface{}:
		for _, child := range node {
			if found := scanValue(child, keys); found != "" {
				return found
			}
		}
	}
	return ""
}
