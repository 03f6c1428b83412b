package handlers

import (
	"net/http"

	"github.com/coopa/backend/internal/models"
	"github.com/coopa/backend/internal/repository"
	"github.com/coopa/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type EscrowHandler struct {
	escrows   *services.EscrowService
	users     repository.UserRepository
	qr        *services.PaymentQRService
	advice    *services.SettlementAdviceService
	validator *services.ValidationHelper
}

func NewEscrowHandler(escrows *services.EscrowService, users repository.UserRepository, qr *services.PaymentQRService, advice *services.SettlementAdviceService) *EscrowHandler {
	return &EscrowHandler{
		escrows:   escrows,
		users:     users,
		qr:        qr,
		advice:    advice,
		validator: services.NewValidationHelper(),
	}
}

type groupApprovalRequest struct {
	EscrowID string                `json:"escrowId" validate:"required"`
	Action   models.ApprovalAction `json:"action" validate:"omitempty,oneof=approved rejected"`
	Reason   string                `json:"reason" validate:"max=500"`
}

type refundRequest struct {
	EscrowID string `json:"escrowId" validate:"required"`
	Reason   string `json:"reason" validate:"max=500"`
}

func (h *EscrowHandler) actor(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	if h.escrows == nil {
		services.WriteError(w, errBackendUnavailable)
		return nil, false
	}
	return currentUser(w, r, h.users)
}

// Create opens an escrow for a purchase request
// @Summary Create payment escrow
// @Description Open an escrow and provision its Moniepoint virtual account. Repeating the call for a request returns the existing escrow.
// @Tags Escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateEscrowInput true "Escrow request"
// @Success 201 {object} object{success=bool,escrow=models.Escrow}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /payment-escrow/create [post]
func (h *EscrowHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req services.CreateEscrowInput
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	escrow, err := h.escrows.CreateEscrow(r.Context(), actor, req)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"escrow":  escrow,
	})
}

// ApproveGroup records the cooperative admin decision
// @Summary Group approval
// @Description Approve (fully funded escrows only) or reject an escrow as the cooperative admin
// @Tags Escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body groupApprovalRequest true "Approval"
// @Success 200 {object} object{success=bool,escrow=models.Escrow}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /payment-escrow/approve-group [post]
func (h *EscrowHandler) ApproveGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req groupApprovalRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	escrow, err := h.escrows.ApproveGroup(r.Context(), actor, req.EscrowID, req.Action, req.Reason)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"escrow":  escrow,
	})
}

// ApprovePlatform releases or flags an escrow
// @Summary Platform approval
// @Description Verify the virtual account balance and settle to the supplier, or flag the escrow back to collecting
// @Tags Escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.PlatformApprovalInput true "Approval"
// @Success 200 {object} object{success=bool,escrow=models.Escrow}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payment-escrow/approve-platform [post]
func (h *EscrowHandler) ApprovePlatform(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req services.PlatformApprovalInput
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	escrow, err := h.escrows.ApprovePlatform(r.Context(), actor, req)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"escrow":  escrow,
	})
}

// Refund cancels an escrow and returns deposits to members
// @Summary Refund escrow
// @Description Refund every deposit not yet refunded. Partial failures leave the escrow refunding; call again to retry the remainder.
// @Tags Escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body refundRequest true "Refund"
// @Success 200 {object} object{success=bool,refund=services.RefundOutcome}
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payment-escrow/refund [post]
func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req refundRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	outcome, err := h.escrows.RefundEscrow(r.Context(), actor, req.EscrowID, req.Reason)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"refund":  outcome,
	})
}

// Get returns an escrow with its history
// @Summary Get escrow
// @Tags Escrow
// @Produce json
// @Security BearerAuth
// @Param id path string true "Escrow ID"
// @Success 200 {object} models.EscrowDetails
// @Failure 404 {object} services.ErrorResponse
// @Router /payment-escrow/{id} [get]
func (h *EscrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}

	details, err := h.escrows.GetEscrow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

// PaymentQR returns deposit instructions as a QR code
// @Summary Escrow payment QR
// @Description QR code (base64 PNG) holding the virtual account details and per-member share
// @Tags Escrow
// @Produce json
// @Security BearerAuth
// @Param id path string true "Escrow ID"
// @Success 200 {object} object{success=bool,instruction=services.PaymentInstruction,qrImage=string}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /payment-escrow/{id}/qr [get]
func (h *EscrowHandler) PaymentQR(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}

	details, err := h.escrows.GetEscrow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		services.WriteError(w, err)
		return
	}

	instruction, image, err := h.qr.Generate(details.Escrow)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"instruction": instruction,
		"qrImage":     image,
	})
}

// SettlementAdvice renders the escrow settlement as ISO 20022 XML
// @Summary Settlement advice
// @Description pacs.008 credit transfer for a released escrow, or pacs.002 status with message=pacs.002
// @Tags Escrow
// @Produce xml
// @Security BearerAuth
// @Param id path string true "Escrow ID"
// @Param message query string false "pacs.008 (default) or pacs.002"
// @Success 200 {string} string "ISO 20022 XML"
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /payment-escrow/{id}/settlement-advice [get]
func (h *EscrowHandler) SettlementAdvice(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}

	details, err := h.escrows.GetEscrow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		services.WriteError(w, err)
		return
	}

	var doc any
	switch r.URL.Query().Get("message") {
	case "", "pacs.008":
		doc, err = h.advice.CreatePacs008(details.Escrow)
	case "pacs.002":
		doc, err = h.advice.CreatePacs002(details.Escrow)
	default:
		services.SendErrorResponse(w, "message must be pacs.008 or pacs.002", http.StatusBadRequest, nil)
		return
	}
	if err != nil {
		services.WriteError(w, err)
		return
	}

	xmlStr, err := h.advice.ConvertToXML(doc)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xmlStr))
}
