package handler

import (
	"encoding/json"
	"net/http"

	"webui-accounts/internal/api/v1/dto"
	"webui-accounts/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// UsageEventHandler ingests Pub/Sub push deliveries of metered-usage events
// and records each one as an account bill.
type UsageEventHandler struct {
	billService service.BillService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewUsageEventHandler(billService service.BillService, v *validator.Validate, logger zerolog.Logger) *UsageEventHandler {
	return &UsageEventHandler{
		billService: billService,
		validate:    v,
		logger:      logger,
	}
}

// RegisterRoutes mounts the push endpoint. The route is expected to be
// wrapped by the Pub/Sub OIDC middleware by the router.
func (h *UsageEventHandler) RegisterRoutes(mux *http.ServeMux, pushAuthMw func(http.Handler) http.Handler) {
	mux.Handle("/internal/usage-events", pushAuthMw(http.HandlerFunc(h.recordUsageEvent)))
}

// recordUsageEvent godoc
// @Summary Record a pushed usage event as a billing line
// @Description Pub/Sub push target. A malformed or unprocessable event is acknowledged anyway so the subscription does not redeliver it forever; the failure is logged for offline analysis.
// @Tags bills
// @Accept json
// @Success 204
// @Failure 400 {string} string "Invalid Pub/Sub message format"
// @Router /internal/usage-events [post]
func (h *UsageEventHandler) recordUsageEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var envelope dto.PubSubPushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		http.Error(w, "Invalid Pub/Sub message format: "+err.Error(), http.StatusBadRequest)
		return
	}
	if envelope.Message.MessageID == "" {
		http.Error(w, "Invalid Pub/Sub message format: missing message ID", http.StatusBadRequest)
		return
	}

	var event dto.UsageEvent
	if err := json.Unmarshal(envelope.Message.Data, &event); err != nil {
		h.logger.Error().
			Err(err).
			Str("messageId", envelope.Message.MessageID).
			Msg("Failed to decode usage event payload")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.validate.Struct(&event); err != nil {
		h.logger.Error().
			Err(err).
			Str("messageId", envelope.Message.MessageID).
			Msg("Usage event failed validation")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if _, err := h.billService.Add(r.Context(), service.BillInput{
		UserID:       event.UserID,
		InputTokens:  event.InputTokens,
		OutputTokens: event.OutputTokens,
		InputCost:    event.InputCost,
		OutputCost:   event.OutputCost,
		Amount:       event.Amount,
		Year:         event.Year,
		Month:        event.Month,
	}); err != nil {
		h.logger.Error().
			Err(err).
			Str("messageId", envelope.Message.MessageID).
			Str("userId", event.UserID).
			Msg("Failed to record usage event as account bill")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.logger.Info().
		Str("messageId", envelope.Message.MessageID).
		Str("userId", event.UserID).
		Msg("Recorded usage event")
	w.WriteHeader(http.StatusNoContent)
}
