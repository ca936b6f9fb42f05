package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/pulseawards/vote-payments/internal"
	paymentmodel "github.com/pulseawards/vote-payments/internal/core/datamodel/payment"
	"github.com/pulseawards/vote-payments/internal/transport"
	"github.com/pulseawards/vote-payments/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

// InitiateVote starts a vote purchase and returns the tracking handle.
func (h *Handler) InitiateVote(w http.ResponseWriter, r *http.Request) {
	var req InitiateVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("InitiateVote: invalid request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.Initiate(r.Context(), &req)
	if err != nil {
		h.Logger.Error("InitiateVote: service error", "error", err, "creator_id", req.CreatorID, "gateway", req.Gateway)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("InitiateVote: attempt accepted",
		"tracking_id", resp.TrackingID,
		"creator_id", req.CreatorID,
		"gateway", resp.Gateway)

	h.WriteJSON(w, http.StatusAccepted, resp)
}

// GetStatus is the polling endpoint for one payment attempt.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "id")
	if trackingID == "" {
		h.HandleError(w, errors.NewValidationError("missing tracking id", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.GetStatus(r.Context(), trackingID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// VerifyPayment confirms a redirect-gateway charge by reference. Browsers land
// here after the hosted checkout page redirects back.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		h.HandleError(w, errors.NewValidationError("missing reference query parameter", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.VerifyByReference(r.Context(), reference)
	if err != nil {
		h.Logger.Error("VerifyPayment: service error", "error", err, "reference", reference)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// ListPayments returns a page of payment attempts for admin review.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	status := r.URL.Query().Get("status")
	switch status {
	case "", paymentmodel.StatusPending, paymentmodel.StatusSuccess, paymentmodel.StatusFailed:
	default:
		h.HandleError(w, errors.NewValidationError("unknown status filter", errors.ErrCodeValidationFailed))
		return
	}

	attempts, err := h.Service.ListAttempts(status, offset, limit)
	if err != nil {
		h.Logger.Error("ListPayments: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payments": attempts,
		"limit":    limit,
		"offset":   offset,
	})
}

// PaymentStats returns per-status attempt counts.
func (h *Handler) PaymentStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Service.Stats()
	if err != nil {
		h.Logger.Error("PaymentStats: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, StatsResponse{
		Pending: counts[paymentmodel.StatusPending],
		Success: counts[paymentmodel.StatusSuccess],
		Failed:  counts[paymentmodel.StatusFailed],
	})
}
