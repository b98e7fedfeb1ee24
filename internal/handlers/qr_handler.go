package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/itemlink/backend/internal/models"
	"github.com/itemlink/backend/internal/services"
)

type QRHandler struct {
	service *services.QRService
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{service: service}
}

// DepositQR returns transfer instructions for a claim as a QR image
// @Summary Deposit instructions QR
// @Description Render the platform bank account and expected amount for a deposit claim as a QR PNG
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param depositId path int true "Deposit request ID"
// @Success 200 {object} object{instructions=services.DepositInstructions,qrImage=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet/deposits/{depositId}/qr [get]
func (h *QRHandler) DepositQR(w http.ResponseWriter, r *http.Request) {
	rawUserID, _ := r.Context().Value("userID").(string)
	callerID, err := strconv.Atoi(rawUserID)
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	role, _ := r.Context().Value("userRole").(string)

	id, err := strconv.Atoi(chi.URLParam(r, "depositId"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid deposit id", http.StatusBadRequest, nil)
		return
	}

	instructions, qrImage, err := h.service.GenerateDepositQR(r.Context(), id, callerID, role == models.RoleAdmin)
	if err != nil {
		services.SendErrorResponse(w, "Deposit request not found", services.HTTPStatus(err), nil)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"instructions": instructions,
		"qrImage":      qrImage,
	})
}
