package payment

import (
	errors "github.com/pulseawards/vote-payments/internal"
	"github.com/pulseawards/vote-payments/internal/core/common/validation"
	paymentmodel "github.com/pulseawards/vote-payments/internal/core/datamodel/payment"
)

// InitiateVoteRequest is the body of POST /votes. PayerPhone is required for
// the push gateway, PayerEmail for the redirect gateway.
type InitiateVoteRequest struct {
	CreatorID  int64  `json:"creator_id"`
	Gateway    string `json:"gateway"`
	PayerPhone string `json:"payer_phone,omitempty"`
	PayerEmail string `json:"payer_email,omitempty"`
	Amount     int64  `json:"amount"`
	Votes      int    `json:"votes"`
}

// Validate enforces structure and the pricing rule. Gateway selection decides
// which contact field is checked.
func (r *InitiateVoteRequest) Validate(pricePerVote int64) error {
	validator := validation.NewValidator()
	validator.Field("creator_id", r.CreatorID).Required().PositiveInt(errors.ErrCodeValidationFailed)
	validator.Field("gateway", r.Gateway).Required().
		OneOf(paymentmodel.GatewayPush, paymentmodel.GatewayRedirect)

	switch r.Gateway {
	case paymentmodel.GatewayPush:
		validator.Field("payer_phone", r.PayerPhone).Required().Msisdn()
	case paymentmodel.GatewayRedirect:
		validator.Field("payer_email", r.PayerEmail).Required().Email()
	}

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	if appErr := validation.ValidateVotePricing(r.Amount, pricePerVote, r.Votes); appErr != nil {
		return appErr
	}
	return nil
}

// PayerContact returns the contact the owning gateway adapter submits.
func (r *InitiateVoteRequest) PayerContact() string {
	if r.Gateway == paymentmodel.GatewayPush {
		return validation.NormalizeMsisdn(r.PayerPhone)
	}
	return r.PayerEmail
}

// InitiateVoteResponse is the tracking handle plus gateway-specific handoff.
type InitiateVoteResponse struct {
	TrackingID      string `json:"tracking_id"`
	Gateway         string `json:"gateway"`
	Status          string `json:"status"`
	CheckoutURL     string `json:"checkout_url,omitempty"`
	CustomerMessage string `json:"customer_message,omitempty"`
}

// StatusResponse is the polling projection for one attempt.
type StatusResponse struct {
	TrackingID string `json:"tracking_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Votes      int    `json:"votes,omitempty"`
}

// StatsResponse is the admin per-status attempt count.
type StatsResponse struct {
	Pending int64 `json:"pending"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}
