package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/coopa/backend/internal/moniepoint"
	"github.com/coopa/backend/internal/services"
)

type WebhookHandler struct {
	service *services.WebhookService
}

func NewWebhookHandler(service *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// Moniepoint ingests gateway callbacks
// @Summary Moniepoint webhook
// @Description Signed with HMAC-SHA256 of the raw body in the x-moniepoint-signature header. Replayed payments answer 200 with duplicate=true.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param x-moniepoint-signature header string true "hex HMAC-SHA256 of the body"
// @Success 200 {object} object{received=bool,result=services.WebhookResult}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /webhooks/moniepoint [post]
func (h *WebhookHandler) Moniepoint(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		services.WriteError(w, errBackendUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	result, err := h.service.Handle(r.Context(), payload, r.Header.Get(moniepoint.SignatureHeader))
	if err != nil {
		log.Printf("[WEBHOOK] Rejected callback: %v", err)
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"result":   result,
	})
}
