package payment

import (
	"context"
	"encoding/json"
	"time"

	creatormodel "github.com/pulseawards/vote-payments/internal/core/datamodel/creator"
	paymentmodel "github.com/pulseawards/vote-payments/internal/core/datamodel/payment"
)

// RepositoryAPI is the ledger store contract. Transition methods return
// whether this caller won the pending->terminal CAS; false is the idempotent
// no-op for signals arriving after the attempt went terminal.
type RepositoryAPI interface {
	Create(p *paymentmodel.PaymentAttempt) error
	GetByID(id string) (*paymentmodel.PaymentAttempt, error)
	GetByGatewayReference(reference string) (*paymentmodel.PaymentAttempt, error)
	SetGatewayReference(id, reference string, gatewayResponse json.RawMessage) error
	MarkSucceeded(id string, creatorID int64, votes int, gatewayResponse json.RawMessage) (bool, error)
	MarkFailed(id, reason string, gatewayResponse json.RawMessage) (bool, error)
	ListStalePending(olderThan time.Time, limit int) ([]*paymentmodel.PaymentAttempt, error)
	ListByStatus(status string, offset, limit int) ([]*paymentmodel.PaymentAttempt, error)
	CountByStatus() (map[string]int64, error)
}

// CreatorAPI is the slice of the creator service the initiator needs.
type CreatorAPI interface {
	GetVotable(id int64) (*creatormodel.Creator, error)
}

// ServiceAPI is what the HTTP layer consumes.
type ServiceAPI interface {
	Initiate(ctx context.Context, req *InitiateVoteRequest) (*InitiateVoteResponse, error)
	HandleCallback(ctx context.Context, gatewayKind string, payload []byte) error
	VerifyByReference(ctx context.Context, reference string) (*StatusResponse, error)
	GetStatus(ctx context.Context, trackingID string) (*StatusResponse, error)
	ExpireStale(ctx context.Context, limit int) (int, error)
	ListAttempts(status string, offset, limit int) ([]*paymentmodel.PaymentAttempt, error)
	Stats() (map[string]int64, error)
}
