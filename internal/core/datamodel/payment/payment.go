package payment

import (
	"encoding/json"
	"time"
)

// Attempt lifecycle states. Terminal states are never left.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Gateway discriminants. Push prompts the payer's device and resolves via
// webhook or timeout; redirect opens a hosted checkout and additionally
// supports pull-based verification.
const (
	GatewayPush     = "push"
	GatewayRedirect = "redirect"
)

// Failure reasons recorded on the attempt.
const (
	FailureReasonTimeout = "timeout"
	FailureReasonGateway = "gateway_error"
)

// PaymentAttempt is the ledger entry for one vote purchase. Rows are created
// pending, transitioned exactly once to success or failed, and never deleted.
type PaymentAttempt struct {
	ID               string          `json:"id" gorm:"primaryKey;type:uuid"`
	CreatorID        int64           `json:"creator_id" gorm:"column:creator_id;not null;index"`
	PayerContact     string          `json:"payer_contact" gorm:"column:payer_contact;not null"`
	AmountCents      int64           `json:"amount_cents" gorm:"column:amount_cents;not null"`
	Currency         string          `json:"currency" gorm:"column:currency;not null"`
	VotesExpected    int             `json:"votes_expected" gorm:"column:votes_expected;not null"`
	Gateway          string          `json:"gateway" gorm:"column:gateway;not null"`
	GatewayReference *string         `json:"gateway_reference,omitempty" gorm:"column:gateway_reference;uniqueIndex"`
	Status           string          `json:"status" gorm:"column:status;default:pending"`
	GatewayResponse  json.RawMessage `json:"gateway_response,omitempty" gorm:"column:gateway_response;type:jsonb"`
	FailureReason    *string         `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty" gorm:"column:processed_at"`
	CreatedAt        time.Time       `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (PaymentAttempt) TableName() string {
	return "payment_attempts"
}

// Terminal reports whether the attempt has reached a final state.
func (p *PaymentAttempt) Terminal() bool {
	return p.Status == StatusSuccess || p.Status == StatusFailed
}

// StalePending reports whether the attempt has been pending for longer than
// ttl as of now.
func (p *PaymentAttempt) StalePending(ttl time.Duration, now time.Time) bool {
	return p.Status == StatusPending && now.Sub(p.CreatedAt) > ttl
}
