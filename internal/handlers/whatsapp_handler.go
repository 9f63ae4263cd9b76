package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/odontoclin/backend/internal/services"
	"github.com/odontoclin/backend/internal/whatsapp"
)

// WhatsAppHandler exposes the messaging session over HTTP: pairing status
// for the settings screen and direct sends for the front desk.
type WhatsAppHandler struct {
	client    *whatsapp.Client
	validator *services.ValidationHelper
}

func NewWhatsAppHandler(client *whatsapp.Client) *WhatsAppHandler {
	return &WhatsAppHandler{
		client:    client,
		validator: services.NewValidationHelper(),
	}
}

// QRStatus handles GET /whatsapp/qr: refreshes the bridge session and
// returns either readiness or the current pairing code.
func (h *WhatsAppHandler) QRStatus(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Refresh(r.Context()); err != nil {
		log.Printf("[WHATSAPP] Failed to refresh session: %v", err)
	}

	status := h.client.Status()
	if status.Ready {
		services.WriteJSON(w, http.StatusOK, map[string]any{"ready": true})
		return
	}
	services.WriteJSON(w, http.StatusOK, map[string]any{
		"ready":  false,
		"state":  status.State,
		"qrCode": status.QRCode,
	})
}

type sendMessageRequest struct {
	Phone   string `json:"phone" validate:"required,min=8"`
	Message string `json:"message" validate:"required"`
}

// SendMessage handles POST /whatsapp/send
func (h *WhatsAppHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	err := h.client.Send(r.Context(), req.Phone, req.Message)
	switch {
	case err == nil:
		services.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
	case errors.Is(err, whatsapp.ErrNotReady):
		services.SendErrorResponse(w, err.Error(), http.StatusServiceUnavailable, nil)
	case errors.Is(err, whatsapp.ErrNotRegistered):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	default:
		log.Printf("[WHATSAPP] Failed to send message: %v", err)
		services.SendErrorResponse(w, "Failed to send message", http.StatusInternalServerError, nil)
	}
}

// Disconnect handles POST /whatsapp/disconnect, logging the session out so a
// new device can pair.
func (h *WhatsAppHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Disconnect(r.Context()); err != nil {
		log.Printf("[WHATSAPP] Failed to disconnect: %v", err)
		services.SendErrorResponse(w, "Failed to disconnect", http.StatusInternalServerError, nil)
		return
	}
	services.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
