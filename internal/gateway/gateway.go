package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// Outcome is the normalized result a gateway reported for a charge.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// SubmitRequest is the gateway-neutral shape of a charge submission.
type SubmitRequest struct {
	AttemptID    string
	PayerContact string
	AmountCents  int64
	Currency     string
	Description  string
}

// SubmitResult is what a gateway returns when it accepts a submission.
// Reference is the canonical correlation id used to match later callbacks.
type SubmitResult struct {
	Reference       string
	CheckoutURL     string
	CustomerMessage string
	Raw             json.RawMessage
}

// CallbackResult is a webhook or verify response normalized to the shape the
// reconciliation engine consumes.
type CallbackResult struct {
	Reference            string
	Outcome              Outcome
	GatewayTransactionID string
	FailureReason        string
	Raw                  json.RawMessage
}

// Adapter isolates one gateway's request/response shapes. Implementations
// are stateless and safe for concurrent use.
type Adapter interface {
	Name() string
	// Kind returns the gateway discriminant this adapter serves,
	// payment.GatewayPush or payment.GatewayRedirect.
	Kind() string
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error)
	// NormalizeCallback maps a raw webhook payload to a CallbackResult,
	// tolerating the correlation id under the field names the gateway is
	// known to use.
	NormalizeCallback(payload []byte) (*CallbackResult, error)
}

// Verifier is implemented by adapters whose gateway supports pull-based
// status verification (redirect gateways). Push gateways are callback-only.
type Verifier interface {
	Verify(ctx context.Context, reference string) (*CallbackResult, error)
}

// SignatureVerifier is implemented by adapters whose gateway signs webhook
// deliveries. Adapters without it accept callbacks unauthenticated.
type SignatureVerifier interface {
	VerifySignature(payload []byte, signature string) error
}

// Registry selects the adapter owning a payment attempt by its gateway
// discriminant.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

func (r *Registry) ForKind(kind string) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no gateway adapter registered for kind %q", kind)
	}
	return a, nil
}

// Kinds returns the registered gateway discriminants.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	return kinds
}
