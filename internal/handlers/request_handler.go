package handlers

import (
	"net/http"

	"github.com/coopa/backend/internal/models"
	"github.com/coopa/backend/internal/services"
)

type RequestHandler struct {
	service   *services.RequestService
	validator *services.ValidationHelper
}

func NewRequestHandler(service *services.RequestService) *RequestHandler {
	return &RequestHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Single creates an individual purchase request
// @Summary Create purchase request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.PurchaseRequestInput true "Request"
// @Success 201 {object} object{success=bool,request=models.PurchaseRequest}
// @Failure 400 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /requests [post]
func (h *RequestHandler) Single(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, models.RequestKindSingle)
}

// Bulk creates a cooperative bulk purchase request
// @Summary Create bulk purchase request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.PurchaseRequestInput true "Request"
// @Success 201 {object} object{success=bool,request=models.PurchaseRequest}
// @Failure 400 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /bulk-requests [post]
func (h *RequestHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, models.RequestKindBulk)
}

func (h *RequestHandler) create(w http.ResponseWriter, r *http.Request, kind string) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	if h.service == nil {
		services.WriteError(w, errBackendUnavailable)
		return
	}

	var req services.PurchaseRequestInput
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), userID, kind, req)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"request": created,
	})
}
