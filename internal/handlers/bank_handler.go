package handlers

import (
	"net/http"

	"github.com/coopa/backend/internal/services"
)

type BankHandler struct {
	banks *services.BankDirectory
}

func NewBankHandler(banks *services.BankDirectory) *BankHandler {
	return &BankHandler{banks: banks}
}

// List returns the banks a supplier can be paid into
// @Summary List supplier banks
// @Tags Banks
// @Produce json
// @Success 200 {object} object{success=bool,banks=[]services.Bank}
// @Router /banks [get]
func (h *BankHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=86400")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"banks":   h.banks.List(),
	})
}
