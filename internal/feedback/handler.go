package feedback

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	errors "github.com/frahmantamala/ngo-accountability/internal"
	"github.com/frahmantamala/ngo-accountability/internal/transport"
	"github.com/frahmantamala/ngo-accountability/pkg/logger"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(service *Service) *Handler {
	lg := logger.L()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	user, ok := errors.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required"))
		return
	}

	var dto SubmitFeedbackDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("SubmitFeedback: invalid request body", "error", err, "transaction_id", transactionID)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stats, err := h.Service.AddFeedback(r.Context(), transactionID, user, &dto, clientIP(r))
	if err != nil {
		h.Logger.Error("SubmitFeedback: service error", "error", err, "transaction_id", transactionID, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"transaction_id": transactionID,
		"stats":          stats,
	})
}

func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	views, stats, err := h.Service.ListFeedback(transactionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_id": transactionID,
		"feedback":       views,
		"stats":          stats,
	})
}

// CheckFeedback tells the caller whether they already rated this withdrawal,
// so the UI can disable the vote buttons.
func (h *Handler) CheckFeedback(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	user, ok := errors.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required"))
		return
	}

	has, err := h.Service.HasFeedback(transactionID, user.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_id": transactionID,
		"has_feedback":   has,
	})
}

func (h *Handler) GetReputation(w http.ResponseWriter, r *http.Request) {
	ngoID, err := strconv.ParseInt(chi.URLParam(r, "ngoID"), 10, 64)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid ngo id", errors.ErrCodeValidationFailed))
		return
	}

	rep, err := h.Service.GetReputation(ngoID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, rep)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
