package stats

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers holds HTTP handlers for the stats module
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates stats module handlers
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("handlers", "stats").Logger(),
	}
}

// Routes registers stats routes on the given router
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/", h.HandleDecisionStats)
}

// HandleDecisionStats returns aggregated decision statistics
// GET /api/stats
func (h *Handlers) HandleDecisionStats(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.DecisionStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute decision stats")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "failed to compute statistics"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}
