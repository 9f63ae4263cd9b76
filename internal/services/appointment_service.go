package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odontoclin/backend/internal/models"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// AppointmentService manages scheduled visits and exposes the bookable
// half-hour slots derived from each professional's working hours.
type AppointmentService struct {
	db            *sql.DB
	professionals *ProfessionalService
	validator     *ValidationHelper
	now           func() time.Time
}

func NewAppointmentService(db *sql.DB, professionals *ProfessionalService) *AppointmentService {
	return &AppointmentService{
		db:            db,
		professionals: professionals,
		validator:     NewValidationHelper(),
		now:           time.Now,
	}
}

const appointmentColumns = "id, patient_id, professional_id, date, time, service, amount, payment_method, status, created_at, updated_at"

func scanAppointment(row interface{ Scan(...any) error }) (*models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.ProfessionalID, &a.Date, &a.Time,
		&a.Service, &a.Amount, &a.PaymentMethod, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type createAppointmentRequest struct {
	PatientID      int    `json:"patientId" validate:"required,gt=0"`
	ProfessionalID int    `json:"professionalId" validate:"required,gt=0"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	Time           string `json:"time" validate:"required,datetime=15:04"`
	Service        string `json:"service" validate:"required"`
	Amount         string `json:"amount" validate:"required"`
	PaymentMethod  string `json:"paymentMethod" validate:"required"`
}

// Create handles POST /appointments
func (s *AppointmentService) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	now := s.now()
	row := s.db.QueryRow(`
		INSERT INTO appointments (patient_id, professional_id, date, time, service, amount, payment_method, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+appointmentColumns,
		req.PatientID, req.ProfessionalID, req.Date, req.Time, req.Service,
		amount, req.PaymentMethod, models.AppointmentStatusPending, now, now)

	appointment, err := scanAppointment(row)
	if err != nil {
		log.Printf("[APPOINTMENT] Failed to insert appointment: %v", err)
		SendErrorResponse(w, "Failed to create appointment", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "appointment": appointment})
}

// List handles GET /appointments with optional ?date= and ?professionalId=
func (s *AppointmentService) List(w http.ResponseWriter, r *http.Request) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	args := []any{}
	where := ""

	if dateParam := r.URL.Query().Get("date"); dateParam != "" {
		if _, err := time.Parse("2006-01-02", dateParam); err != nil {
			SendErrorResponse(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		where = " WHERE date = $1"
		args = append(args, dateParam)
	}

	if profParam := r.URL.Query().Get("professionalId"); profParam != "" {
		profID, err := strconv.Atoi(profParam)
		if err != nil || profID <= 0 {
			SendErrorResponse(w, "Invalid professional id", http.StatusBadRequest, nil)
			return
		}
		if where == "" {
			where = fmt.Sprintf(" WHERE professional_id = $%d", len(args)+1)
		} else {
			where += fmt.Sprintf(" AND professional_id = $%d", len(args)+1)
		}
		args = append(args, profID)
	}

	rows, err := s.db.Query(query+where+" ORDER BY date, time", args...)
	if err != nil {
		SendErrorResponse(w, "Failed to list appointments", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	appointments := []models.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			SendErrorResponse(w, "Failed to scan appointment", http.StatusInternalServerError, nil)
			return
		}
		appointments = append(appointments, *a)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to list appointments", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, appointments)
}

// ListUpcoming handles GET /appointments/upcoming?limit=N: appointments from
// now on, soonest first.
func (s *AppointmentService) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n <= 0 || n > 100 {
			SendErrorResponse(w, "Invalid limit", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}

	now := s.now()
	today := now.Format("2006-01-02")
	currentTime := now.Format("15:04")

	rows, err := s.db.Query(`
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE date > $1 OR (date = $1 AND time >= $2)
		ORDER BY date, time
		LIMIT $3`, today, currentTime, limit)
	if err != nil {
		SendErrorResponse(w, "Failed to list appointments", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	appointments := []models.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			SendErrorResponse(w, "Failed to scan appointment", http.StatusInternalServerError, nil)
			return
		}
		appointments = append(appointments, *a)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to list appointments", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, appointments)
}

// Slots handles GET /professionals/{id}/slots: the professional's bookable
// half-hour slots derived from their work-hours text.
func (s *AppointmentService) Slots(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid professional id", http.StatusBadRequest, nil)
		return
	}

	professional, err := s.professionals.FindByID(id)
	if err == ErrProfessionalNotFound {
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch professional", http.StatusInternalServerError, nil)
		return
	}

	slots := GenerateSlots(ParseWorkHours(professional.WorkHours))
	WriteJSON(w, http.StatusOK, map[string]any{"professionalId": id, "slots": slots})
}

// Get handles GET /appointments/{id}
func (s *AppointmentService) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid appointment id", http.StatusBadRequest, nil)
		return
	}

	row := s.db.QueryRow(`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appointment, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, ErrAppointmentNotFound.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch appointment", http.StatusInternalServerError, nil)
		return
	}
	WriteJSON(w, http.StatusOK, appointment)
}

type updateAppointmentRequest struct {
	Date          *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time          *string `json:"time" validate:"omitempty,datetime=15:04"`
	Service       *string `json:"service" validate:"omitempty,min=1"`
	Amount        *string `json:"amount"`
	PaymentMethod *string `json:"paymentMethod" validate:"omitempty,min=1"`
	Status        *string `json:"status" validate:"omitempty,oneof=pending confirmed done canceled"`
}

// Update handles PUT /appointments/{id}
func (s *AppointmentService) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid appointment id", http.StatusBadRequest, nil)
		return
	}

	var req updateAppointmentRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	row := s.db.QueryRow(`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appointment, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, ErrAppointmentNotFound.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch appointment", http.StatusInternalServerError, nil)
		return
	}

	if req.Date != nil {
		appointment.Date = *req.Date
	}
	if req.Time != nil {
		appointment.Time = *req.Time
	}
	if req.Service != nil {
		appointment.Service = *req.Service
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil || amount.IsNegative() {
			SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
			return
		}
		appointment.Amount = amount
	}
	if req.PaymentMethod != nil {
		appointment.PaymentMethod = *req.PaymentMethod
	}
	if req.Status != nil {
		appointment.Status = *req.Status
	}

	row = s.db.QueryRow(`
		UPDATE appointments
		SET date = $1, time = $2, service = $3, amount = $4, payment_method = $5, status = $6, updated_at = $7
		WHERE id = $8
		RETURNING `+appointmentColumns,
		appointment.Date, appointment.Time, appointment.Service, appointment.Amount,
		appointment.PaymentMethod, appointment.Status, s.now(), id)

	updated, err := scanAppointment(row)
	if err != nil {
		log.Printf("[APPOINTMENT] Failed to update appointment %d: %v", id, err)
		SendErrorResponse(w, "Failed to update appointment", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /appointments/{id}
func (s *AppointmentService) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid appointment id", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.Exec(`DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		SendErrorResponse(w, "Failed to delete appointment", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		SendErrorResponse(w, ErrAppointmentNotFound.Error(), http.StatusNotFound, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
