package handlers

import (
	"net/http"

	"github.com/coopa/backend/internal/services"
)

type MoniepointHandler struct {
	service   *services.MoniepointService
	validator *services.ValidationHelper
}

func NewMoniepointHandler(service *services.MoniepointService) *MoniepointHandler {
	return &MoniepointHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// CreateVirtualAccount provisions a Moniepoint virtual account
// @Summary Create virtual account
// @Tags Moniepoint
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.VirtualAccountInput true "Account request"
// @Success 200 {object} moniepoint.VirtualAccount
// @Failure 400 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /moniepoint/create-virtual-account [post]
func (h *MoniepointHandler) CreateVirtualAccount(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUserID(w, r); !ok {
		return
	}

	var req services.VirtualAccountInput
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	acct, err := h.service.CreateVirtualAccount(r.Context(), req)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, acct)
}

// CheckBalance reads a virtual account balance
// @Summary Check virtual account balance
// @Tags Moniepoint
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.BalanceInput true "Account"
// @Success 200 {object} moniepoint.Balance
// @Failure 400 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /moniepoint/check-balance [post]
func (h *MoniepointHandler) CheckBalance(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUserID(w, r); !ok {
		return
	}

	var req services.BalanceInput
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	balance, err := h.service.CheckBalance(r.Context(), req)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}
