package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeVotePaymentSucceeded = "vote_payment.succeeded"
	EventTypeVotePaymentFailed    = "vote_payment.failed"
)

type VotePaymentSucceededEvent struct {
	BaseEvent
	AttemptID        string `json:"attempt_id"`
	CreatorID        int64  `json:"creator_id"`
	GatewayReference string `json:"gateway_reference"`
	AmountCents      int64  `json:"amount_cents"`
	VotesCredited    int    `json:"votes_credited"`
}

func NewVotePaymentSucceededEvent(attemptID string, creatorID int64, gatewayReference string, amountCents int64, votesCredited int) *VotePaymentSucceededEvent {
	return &VotePaymentSucceededEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeVotePaymentSucceeded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"attempt_id":        attemptID,
				"creator_id":        creatorID,
				"gateway_reference": gatewayReference,
				"amount_cents":      amountCents,
				"votes_credited":    votesCredited,
			},
		},
		AttemptID:        attemptID,
		CreatorID:        creatorID,
		GatewayReference: gatewayReference,
		AmountCents:      amountCents,
		VotesCredited:    votesCredited,
	}
}

type VotePaymentFailedEvent struct {
	BaseEvent
	AttemptID        string `json:"attempt_id"`
	CreatorID        int64  `json:"creator_id"`
	GatewayReference string `json:"gateway_reference"`
	AmountCents      int64  `json:"amount_cents"`
	FailureReason    string `json:"failure_reason"`
}

func NewVotePaymentFailedEvent(attemptID string, creatorID int64, gatewayReference string, amountCents int64, failureReason string) *VotePaymentFailedEvent {
	return &VotePaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeVotePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"attempt_id":        attemptID,
				"creator_id":        creatorID,
				"gateway_reference": gatewayReference,
				"amount_cents":      amountCents,
				"failure_reason":    failureReason,
			},
		},
		AttemptID:        attemptID,
		CreatorID:        creatorID,
		GatewayReference: gatewayReference,
		AmountCents:      amountCents,
		FailureReason:    failureReason,
	}
}
