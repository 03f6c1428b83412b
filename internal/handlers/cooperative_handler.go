package handlers

import (
	"net/http"

	"github.com/coopa/backend/internal/repository"
	"github.com/coopa/backend/internal/services"
)

type CooperativeHandler struct {
	service   *services.CooperativeService
	users     repository.UserRepository
	validator *services.ValidationHelper
}

func NewCooperativeHandler(service *services.CooperativeService, users repository.UserRepository) *CooperativeHandler {
	return &CooperativeHandler{
		service:   service,
		users:     users,
		validator: services.NewValidationHelper(),
	}
}

// Register creates a pending cooperative
// @Summary Register cooperative
// @Description Register a cooperative for review; the caller becomes its admin
// @Tags Cooperatives
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.RegisterCooperativeInput true "Cooperative"
// @Success 201 {object} object{success=bool,cooperative=models.Cooperative}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /cooperatives/register [post]
func (h *CooperativeHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	if h.service == nil {
		services.WriteError(w, errBackendUnavailable)
		return
	}

	var req services.RegisterCooperativeInput
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	coop, err := h.service.Register(r.Context(), userID, req)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"cooperative": coop,
	})
}

// Pending lists cooperatives awaiting review
// @Summary Pending cooperatives
// @Tags Cooperatives
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{cooperatives=[]models.Cooperative}
// @Failure 403 {object} services.ErrorResponse
// @Router /cooperatives/pending [get]
func (h *CooperativeHandler) Pending(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		services.WriteError(w, errBackendUnavailable)
		return
	}
	actor, ok := currentUser(w, r, h.users)
	if !ok {
		return
	}

	coops, err := h.service.ListPending(r.Context(), actor)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cooperatives": coops})
}

// Approve reviews a cooperative registration
// @Summary Approve or reject cooperative
// @Tags Cooperatives
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.ReviewCooperativeInput true "Decision"
// @Success 200 {object} object{success=bool,cooperative=models.Cooperative}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /cooperatives/approve [post]
func (h *CooperativeHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		services.WriteError(w, errBackendUnavailable)
		return
	}
	actor, ok := currentUser(w, r, h.users)
	if !ok {
		return
	}

	var req services.ReviewCooperativeInput
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	coop, err := h.service.Review(r.Context(), actor, req)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"cooperative": coop,
	})
}
