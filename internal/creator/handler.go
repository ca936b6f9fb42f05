package creator

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/pulseawards/vote-payments/internal"
	"github.com/pulseawards/vote-payments/internal/transport"
	"github.com/pulseawards/vote-payments/pkg/logger"
)

type ServiceAPI interface {
	GetTally(id int64) (*TallyResponse, error)
}

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

// GetTally returns the public vote tally for one creator.
func (h *Handler) GetTally(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.Logger.Error("GetTally: invalid creator ID", "id", idStr)
		h.HandleError(w, errors.NewValidationError("invalid creator ID", errors.ErrCodeValidationFailed))
		return
	}

	tally, err := h.Service.GetTally(id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, tally)
}
