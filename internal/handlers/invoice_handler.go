package handlers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odontoclin/backend/internal/asaas"
	"github.com/odontoclin/backend/internal/models"
	"github.com/odontoclin/backend/internal/services"
	"github.com/odontoclin/backend/internal/whatsapp"
)

// Template used when the clinic has not configured its own charge message.
const defaultChargeMessage = "Olá {nome}! Segue o boleto no valor de R$ {valor} com vencimento em {data}."

// InvoiceHandler issues boleto charges through the payments provider and
// delivers them to patients over WhatsApp.
type InvoiceHandler struct {
	payments  *asaas.Client
	patients  *services.PatientService
	messenger *whatsapp.Client
	settings  *services.SettingsService
	validator *services.ValidationHelper
}

func NewInvoiceHandler(payments *asaas.Client, patients *services.PatientService,
	messenger *whatsapp.Client, settings *services.SettingsService) *InvoiceHandler {
	return &InvoiceHandler{
		payments:  payments,
		patients:  patients,
		messenger: messenger,
		settings:  settings,
		validator: services.NewValidationHelper(),
	}
}

// invoice is a charge as presented to the front desk: the provider payment
// plus the patient it belongs to and the local status vocabulary.
type invoice struct {
	asaas.Payment
	PatientID   int    `json:"patientId,omitempty"`
	PatientName string `json:"patientName,omitempty"`
	LocalStatus string `json:"localStatus"`
}

type generateInvoiceRequest struct {
	PatientID   int    `json:"patientId" validate:"required,gt=0"`
	Value       string `json:"value" validate:"required"`
	DueDate     string `json:"dueDate" validate:"required,datetime=2006-01-02"`
	Description string `json:"description"`
}

// Generate handles POST /invoices: issues a boleto for a patient.
func (h *InvoiceHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateInvoiceRequest
	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	value, err := decimal.NewFromString(req.Value)
	if err != nil || !value.IsPositive() {
		services.SendErrorResponse(w, "Invalid value", http.StatusBadRequest, nil)
		return
	}

	patient, err := h.patients.FindByID(req.PatientID)
	if err == services.ErrPatientNotFound {
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch patient", http.StatusInternalServerError, nil)
		return
	}

	payment, err := h.payments.CreatePayment(r.Context(), asaas.PaymentRequest{
		Customer:          patient.AsaasID,
		BillingType:       asaas.BillingBoleto,
		Value:             value,
		DueDate:           req.DueDate,
		Description:       req.Description,
		ExternalReference: uuid.NewString(),
	})
	if err != nil {
		log.Printf("[INVOICE] Failed to create payment: %v", err)
		services.SendErrorResponse(w, err.Error(), http.StatusBadGateway, nil)
		return
	}

	services.WriteJSON(w, http.StatusCreated, invoice{
		Payment:     *payment,
		PatientID:   patient.ID,
		PatientName: patient.Name,
		LocalStatus: asaas.MapStatus(payment.Status),
	})
}

// List handles GET /invoices: all boleto charges, newest data straight from
// the provider so statuses are current.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListPayments(r.Context())
	if err != nil {
		log.Printf("[INVOICE] Failed to list payments: %v", err)
		services.SendErrorResponse(w, err.Error(), http.StatusBadGateway, nil)
		return
	}

	invoices := []invoice{}
	for _, payment := range payments {
		if payment.BillingType != asaas.BillingBoleto {
			continue
		}
		inv := invoice{Payment: payment, LocalStatus: asaas.MapStatus(payment.Status)}
		if patient, err := h.patients.FindByAsaasID(payment.Customer); err == nil {
			inv.PatientID = patient.ID
			inv.PatientName = patient.Name
		}
		invoices = append(invoices, inv)
	}

	services.WriteJSON(w, http.StatusOK, invoices)
}

// Delete handles DELETE /invoices/{id}
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		services.SendErrorResponse(w, "Invalid invoice id", http.StatusBadRequest, nil)
		return
	}

	if err := h.payments.DeletePayment(r.Context(), id); err != nil {
		log.Printf("[INVOICE] Failed to delete payment %s: %v", id, err)
		services.SendErrorResponse(w, err.Error(), http.StatusBadGateway, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendCharge handles POST /invoices/{id}/send: delivers the boleto to the
// patient over WhatsApp using the configured message template. If the send
// fails the response carries a wa.me link so the operator can deliver the
// message by hand.
func (h *InvoiceHandler) SendCharge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		services.SendErrorResponse(w, "Invalid invoice id", http.StatusBadRequest, nil)
		return
	}

	payment, err := h.payments.GetPayment(r.Context(), id)
	if err != nil {
		log.Printf("[INVOICE] Failed to fetch payment %s: %v", id, err)
		services.SendErrorResponse(w, err.Error(), http.StatusBadGateway, nil)
		return
	}

	patient, err := h.patients.FindByAsaasID(payment.Customer)
	if err == services.ErrPatientNotFound {
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch patient", http.StatusInternalServerError, nil)
		return
	}

	message := h.chargeMessage(patient, payment)

	resp := map[string]any{"sent": true}
	if err := h.messenger.Send(r.Context(), patient.Phone, message); err != nil {
		log.Printf("[INVOICE] Failed to send charge message: %v", err)
		resp["sent"] = false
		resp["fallback_url"] = whatsapp.ManualLink(patient.Phone, message)
	}

	services.WriteJSON(w, http.StatusOK, resp)
}

func (h *InvoiceHandler) chargeMessage(patient *models.Patient, payment *asaas.Payment) string {
	template, err := h.settings.Value(models.SettingInvoiceMessage)
	if err != nil || template == "" {
		template = defaultChargeMessage
	}

	dueDate := payment.DueDate
	if parsed, err := time.Parse("2006-01-02", payment.DueDate); err == nil {
		dueDate = parsed.Format("02/01/2006")
	}

	message := template
	message = strings.ReplaceAll(message, "{nome}", patient.Name)
	message = strings.ReplaceAll(message, "{valor}", payment.Value.StringFixed(2))
	message = strings.ReplaceAll(message, "{data}", dueDate)

	link := payment.BankSlipURL
	if link == "" {
		link = payment.InvoiceURL
	}
	if link != "" {
		message += "\n\n" + link
	}
	return message
}
