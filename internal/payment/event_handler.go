package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pulseawards/vote-payments/internal/core/events"
)

// EventHandler consumes reconciliation outcome events for notification-only
// side effects. Crediting already happened inside the ledger transaction
// before these events fire, so handlers here must stay free of tally writes.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandlePaymentSucceeded(ctx context.Context, event events.Event) error {
	succeeded, ok := event.(*events.VotePaymentSucceededEvent)
	if !ok {
		h.logger.Error("invalid event type for payment succeeded handler", "event_type", event.EventType())
		return fmt.Errorf("expected VotePaymentSucceededEvent, got %T", event)
	}

	h.logger.Info("vote payment settled",
		"attempt_id", succeeded.AttemptID,
		"creator_id", succeeded.CreatorID,
		"gateway_reference", succeeded.GatewayReference,
		"amount_cents", succeeded.AmountCents,
		"votes_credited", succeeded.VotesCredited,
		"event_id", succeeded.EventID())

	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.VotePaymentFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected VotePaymentFailedEvent, got %T", event)
	}

	h.logger.Info("vote payment failed",
		"attempt_id", failed.AttemptID,
		"creator_id", failed.CreatorID,
		"gateway_reference", failed.GatewayReference,
		"failure_reason", failed.FailureReason,
		"event_id", failed.EventID())

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeVotePaymentSucceeded, h.HandlePaymentSucceeded)
	eventBus.Subscribe(events.EventTypeVotePaymentFailed, h.HandlePaymentFailed)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{events.EventTypeVotePaymentSucceeded, events.EventTypeVotePaymentFailed})
}
