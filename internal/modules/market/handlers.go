package market

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers holds HTTP handlers for the market module
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates market module handlers
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("handlers", "market").Logger(),
	}
}

// Routes registers market routes on the given router
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/{ticker}", h.HandleGetContext)
}

// HandleGetContext returns the market context for a ticker
// GET /api/market/{ticker}
func (h *Handlers) HandleGetContext(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	ctx, err := h.service.GetContext(ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to build market context")
		writeError(w, http.StatusBadGateway, "failed to fetch market data")
		return
	}

	writeJSON(w, http.StatusOK, ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}
