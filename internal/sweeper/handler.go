package sweeper

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/ngo-accountability/internal/transport"
	"github.com/frahmantamala/ngo-accountability/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Sweeper *Sweeper
}

func NewHandler(sw *Sweeper) *Handler {
	lg := logger.L()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Sweeper:     sw,
	}
}

// TriggerSweep runs one full sweep cycle synchronously. Operators use this
// to drain the backlog without waiting for the next tick.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("TriggerSweep: manual sweep requested")
	h.Sweeper.RunSweep(r.Context())
	h.WriteJSON(w, http.StatusOK, h.Sweeper.Stats())
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.Sweeper.Stats())
}
