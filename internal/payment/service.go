package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	internal "github.com/pulseawards/vote-payments/internal"
	"github.com/pulseawards/vote-payments/internal/core/events"
	paymentmodel "github.com/pulseawards/vote-payments/internal/core/datamodel/payment"
	"github.com/pulseawards/vote-payments/internal/gateway"
)

// Service is both the payment initiator and the reconciliation engine: it
// creates ledger entries, hands them to the owning gateway adapter, and
// advances them to a terminal state from webhooks, verify calls and the
// staleness rule. The ledger store is the only synchronization point; this
// type holds no per-attempt state.
type Service struct {
	repository RepositoryAPI
	creators   CreatorAPI
	gateways   *gateway.Registry
	eventBus   *events.EventBus
	logger     *slog.Logger

	pricePerVote int64
	currency     string
	pendingTTL   time.Duration
}

func NewService(
	repository RepositoryAPI,
	creators CreatorAPI,
	gateways *gateway.Registry,
	eventBus *events.EventBus,
	pricing internal.PricingConfig,
	reconcile internal.ReconcileConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		repository:   repository,
		creators:     creators,
		gateways:     gateways,
		eventBus:     eventBus,
		logger:       logger,
		pricePerVote: pricing.PricePerVote,
		currency:     pricing.Currency,
		pendingTTL:   reconcile.PendingTTL,
	}
}

// Initiate validates a vote purchase, creates the pending ledger entry, then
// submits to the gateway. The entry is created before the gateway call so a
// tracking handle exists even if the submission or the process dies; an
// orphaned pending row is expired later by the staleness rule.
func (s *Service) Initiate(ctx context.Context, req *InitiateVoteRequest) (*InitiateVoteResponse, error) {
	if err := req.Validate(s.pricePerVote); err != nil {
		s.logger.Warn("vote purchase validation failed", "creator_id", req.CreatorID, "error", err)
		return nil, err
	}

	creator, err := s.creators.GetVotable(req.CreatorID)
	if err != nil {
		return nil, err
	}

	attempt := &paymentmodel.PaymentAttempt{
		ID:            uuid.New().String(),
		CreatorID:     creator.ID,
		PayerContact:  req.PayerContact(),
		AmountCents:   req.Amount,
		Currency:      s.currency,
		VotesExpected: req.Votes,
		Gateway:       req.Gateway,
		Status:        paymentmodel.StatusPending,
	}

	if err := s.repository.Create(attempt); err != nil {
		s.logger.Error("failed to create payment attempt", "error", err, "creator_id", creator.ID)
		return nil, internal.NewInternalError("could not create payment attempt", err)
	}

	s.logger.Info("payment attempt created",
		"tracking_id", attempt.ID,
		"creator_id", creator.ID,
		"gateway", attempt.Gateway,
		"amount_cents", attempt.AmountCents,
		"votes", attempt.VotesExpected)

	adapter, err := s.gateways.ForKind(attempt.Gateway)
	if err != nil {
		s.logger.Error("no adapter for gateway", "gateway", attempt.Gateway, "error", err)
		return nil, internal.NewInternalError("gateway not configured", err)
	}

	result, err := adapter.Submit(ctx, &gateway.SubmitRequest{
		AttemptID:    attempt.ID,
		PayerContact: attempt.PayerContact,
		AmountCents:  attempt.AmountCents,
		Currency:     attempt.Currency,
		Description:  fmt.Sprintf("%d vote(s) for %s", attempt.VotesExpected, creator.Name),
	})
	if err != nil {
		// The attempt is terminal for this submission; gateways here cannot
		// resume a half-submitted charge, so the caller must re-initiate.
		rawErr, _ := json.Marshal(map[string]string{"error": err.Error()})
		if _, markErr := s.repository.MarkFailed(attempt.ID, paymentmodel.FailureReasonGateway, rawErr); markErr != nil {
			s.logger.Error("failed to mark attempt failed after gateway error",
				"error", markErr, "tracking_id", attempt.ID)
		}

		s.logger.Error("gateway submission failed",
			"tracking_id", attempt.ID,
			"gateway", adapter.Name(),
			"error", err)

		if appErr, ok := internal.IsAppError(err); ok {
			return nil, appErr.WithDetails(map[string]string{"tracking_id": attempt.ID})
		}
		return nil, internal.NewGatewayError("payment could not be started", internal.ErrCodeGatewayUnavailable, err).
			WithDetails(map[string]string{"tracking_id": attempt.ID})
	}

	if err := s.repository.SetGatewayReference(attempt.ID, result.Reference, result.Raw); err != nil {
		s.logger.Error("failed to record gateway reference",
			"error", err, "tracking_id", attempt.ID, "reference", result.Reference)
		return nil, internal.NewInternalError("could not record gateway reference", err)
	}

	s.logger.Info("gateway accepted submission",
		"tracking_id", attempt.ID,
		"gateway", adapter.Name(),
		"reference", result.Reference)

	return &InitiateVoteResponse{
		TrackingID:      attempt.ID,
		Gateway:         attempt.Gateway,
		Status:          paymentmodel.StatusPending,
		CheckoutURL:     result.CheckoutURL,
		CustomerMessage: result.CustomerMessage,
	}, nil
}

// HandleCallback processes one webhook delivery for the named gateway kind.
// Unknown references return NotFound so the gateway's retry policy
// re-delivers; signals for terminal attempts acknowledge without writing.
func (s *Service) HandleCallback(ctx context.Context, gatewayKind string, payload []byte) error {
	adapter, err := s.gateways.ForKind(gatewayKind)
	if err != nil {
		return internal.NewInternalError("gateway not configured", err)
	}

	result, err := adapter.NormalizeCallback(payload)
	if err != nil {
		s.logger.Warn("unparseable gateway callback", "gateway", adapter.Name(), "error", err)
		return internal.NewValidationError("unparseable callback payload", internal.ErrCodeValidationFailed).WithCause(err)
	}

	attempt, err := s.repository.GetByGatewayReference(result.Reference)
	if err != nil {
		s.logger.Warn("callback for unknown gateway reference",
			"gateway", adapter.Name(), "reference", result.Reference)
		return internal.ErrUnknownReference
	}

	return s.reconcile(ctx, attempt, result)
}

// VerifyByReference is the client-driven confirmation path for redirect
// gateways: pull the charge status and run the same transition a webhook
// would. A gateway-side pending leaves the attempt pending; callers retry
// with their own backoff.
func (s *Service) VerifyByReference(ctx context.Context, reference string) (*StatusResponse, error) {
	attempt, err := s.repository.GetByGatewayReference(reference)
	if err != nil {
		return nil, internal.ErrUnknownReference
	}

	if attempt.Terminal() {
		return s.statusOf(attempt), nil
	}

	adapter, err := s.gateways.ForKind(attempt.Gateway)
	if err != nil {
		return nil, internal.NewInternalError("gateway not configured", err)
	}

	verifier, ok := adapter.(gateway.Verifier)
	if !ok {
		return nil, internal.NewValidationError(
			"this gateway does not support verification; poll the status endpoint",
			internal.ErrCodeInvalidGateway)
	}

	result, err := verifier.Verify(ctx, reference)
	if err != nil {
		s.logger.Error("gateway verification failed",
			"reference", reference, "gateway", adapter.Name(), "error", err)
		return nil, err
	}

	if err := s.reconcile(ctx, attempt, result); err != nil {
		return nil, err
	}

	refreshed, err := s.repository.GetByID(attempt.ID)
	if err != nil {
		return nil, internal.NewInternalError("could not reload payment attempt", err)
	}
	return s.statusOf(refreshed), nil
}

// GetStatus is the polling projection. Querying a stale pending attempt
// expires it to failed(timeout) first, so a dropped webhook cannot hold a
// row pending forever.
func (s *Service) GetStatus(ctx context.Context, trackingID string) (*StatusResponse, error) {
	attempt, err := s.repository.GetByID(trackingID)
	if err != nil {
		return nil, internal.ErrAttemptNotFound
	}

	if attempt.StalePending(s.pendingTTL, time.Now().UTC()) {
		claimed, markErr := s.repository.MarkFailed(attempt.ID, paymentmodel.FailureReasonTimeout, nil)
		if markErr != nil {
			s.logger.Error("failed to expire stale attempt", "error", markErr, "tracking_id", attempt.ID)
			return nil, internal.NewInternalError("could not expire payment attempt", markErr)
		}
		if claimed {
			s.logger.Info("expired stale pending attempt",
				"tracking_id", attempt.ID,
				"pending_ttl", s.pendingTTL.String())
			s.publishFailed(ctx, attempt, paymentmodel.FailureReasonTimeout)
		}
		// Reload either way: a racing webhook may have won the transition.
		attempt, err = s.repository.GetByID(trackingID)
		if err != nil {
			return nil, internal.ErrAttemptNotFound
		}
	}

	return s.statusOf(attempt), nil
}

// ExpireStale is the sweep variant of the staleness rule, used by the sweep
// command. Returns how many attempts this pass expired.
func (s *Service) ExpireStale(ctx context.Context, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-s.pendingTTL)
	stale, err := s.repository.ListStalePending(cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("listing stale attempts: %w", err)
	}

	expired := 0
	for _, attempt := range stale {
		claimed, err := s.repository.MarkFailed(attempt.ID, paymentmodel.FailureReasonTimeout, nil)
		if err != nil {
			s.logger.Error("sweep failed to expire attempt", "error", err, "tracking_id", attempt.ID)
			continue
		}
		if claimed {
			expired++
			s.publishFailed(ctx, attempt, paymentmodel.FailureReasonTimeout)
		}
	}

	if expired > 0 {
		s.logger.Info("sweep expired stale attempts", "expired", expired, "scanned", len(stale))
	}
	return expired, nil
}

func (s *Service) ListAttempts(status string, offset, limit int) ([]*paymentmodel.PaymentAttempt, error) {
	return s.repository.ListByStatus(status, offset, limit)
}

func (s *Service) Stats() (map[string]int64, error) {
	return s.repository.CountByStatus()
}

// reconcile applies one normalized gateway signal to one attempt. The store
// CAS decides every race: whoever claims the pending row wins, every other
// signal is acknowledged as a no-op.
func (s *Service) reconcile(ctx context.Context, attempt *paymentmodel.PaymentAttempt, result *gateway.CallbackResult) error {
	switch result.Outcome {
	case gateway.OutcomePending:
		s.logger.Info("gateway still pending",
			"tracking_id", attempt.ID, "reference", result.Reference)
		return nil

	case gateway.OutcomeSuccess:
		claimed, err := s.repository.MarkSucceeded(attempt.ID, attempt.CreatorID, attempt.VotesExpected, result.Raw)
		if err != nil {
			s.logger.Error("success transition failed",
				"error", err, "tracking_id", attempt.ID, "reference", result.Reference)
			return internal.NewInternalError("could not record payment success", err)
		}
		if !claimed {
			s.logger.Info("duplicate success signal ignored",
				"tracking_id", attempt.ID,
				"reference", result.Reference,
				"recorded_status", attempt.Status)
			return nil
		}

		s.logger.Info("payment succeeded, votes credited",
			"tracking_id", attempt.ID,
			"creator_id", attempt.CreatorID,
			"votes", attempt.VotesExpected,
			"gateway_txn_id", result.GatewayTransactionID)

		event := events.NewVotePaymentSucceededEvent(
			attempt.ID, attempt.CreatorID, result.Reference, attempt.AmountCents, attempt.VotesExpected)
		s.eventBus.Publish(ctx, event)
		return nil

	case gateway.OutcomeFailed:
		reason := result.FailureReason
		if reason == "" {
			reason = paymentmodel.FailureReasonGateway
		}
		claimed, err := s.repository.MarkFailed(attempt.ID, reason, result.Raw)
		if err != nil {
			s.logger.Error("failure transition failed",
				"error", err, "tracking_id", attempt.ID, "reference", result.Reference)
			return internal.NewInternalError("could not record payment failure", err)
		}
		if !claimed {
			s.logger.Info("late failure signal ignored",
				"tracking_id", attempt.ID,
				"reference", result.Reference,
				"recorded_status", attempt.Status)
			return nil
		}

		s.logger.Info("payment failed",
			"tracking_id", attempt.ID, "reason", reason)
		s.publishFailed(ctx, attempt, reason)
		return nil

	default:
		return internal.NewInternalError(fmt.Sprintf("unknown gateway outcome %q", result.Outcome), nil)
	}
}

func (s *Service) publishFailed(ctx context.Context, attempt *paymentmodel.PaymentAttempt, reason string) {
	reference := ""
	if attempt.GatewayReference != nil {
		reference = *attempt.GatewayReference
	}
	event := events.NewVotePaymentFailedEvent(attempt.ID, attempt.CreatorID, reference, attempt.AmountCents, reason)
	s.eventBus.Publish(ctx, event)
}

func (s *Service) statusOf(attempt *paymentmodel.PaymentAttempt) *StatusResponse {
	resp := &StatusResponse{
		TrackingID: attempt.ID,
		Status:     attempt.Status,
	}
	if attempt.Status == paymentmodel.StatusFailed && attempt.FailureReason != nil {
		resp.Reason = *attempt.FailureReason
	}
	if attempt.Status == paymentmodel.StatusSuccess {
		resp.Votes = attempt.VotesExpected
	}
	return resp
}
