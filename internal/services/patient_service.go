package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odontoclin/backend/internal/models"
)

var ErrPatientNotFound = errors.New("patient not found")

// CustomerRegistrar registers a patient with the payments provider and
// returns the provider's customer id.
type CustomerRegistrar interface {
	CreateCustomer(ctx context.Context, name, cpf string) (string, error)
}

// PatientService manages patient records. Registration first creates the
// customer at the payments provider so charges can be issued later.
type PatientService struct {
	db        *sql.DB
	payments  CustomerRegistrar
	validator *ValidationHelper
	now       func() time.Time
}

func NewPatientService(db *sql.DB, payments CustomerRegistrar) *PatientService {
	return &PatientService{
		db:        db,
		payments:  payments,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

const patientColumns = "id, asaas_id, name, cpf, phone, email, birth_date, postal_code, COALESCE(address, ''), status, created_at, updated_at"

func scanPatient(row interface{ Scan(...any) error }) (*models.Patient, error) {
	var p models.Patient
	err := row.Scan(&p.ID, &p.AsaasID, &p.Name, &p.CPF, &p.Phone, &p.Email,
		&p.BirthDate, &p.PostalCode, &p.Address, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type registerPatientRequest struct {
	Name       string `json:"name" validate:"required,min=2"`
	CPF        string `json:"cpf" validate:"required,min=11,max=14"`
	Phone      string `json:"phone" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	BirthDate  string `json:"birthDate" validate:"required,datetime=2006-01-02"`
	PostalCode string `json:"postalCode" validate:"required"`
	Address    string `json:"address"`
}

// Register handles POST /patients: creates the payments-provider customer,
// then stores the patient with the returned id.
func (s *PatientService) Register(w http.ResponseWriter, r *http.Request) {
	var req registerPatientRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	asaasID, err := s.payments.CreateCustomer(r.Context(), req.Name, req.CPF)
	if err != nil {
		log.Printf("[PATIENT] Failed to create payments customer: %v", err)
		SendErrorResponse(w, err.Error(), http.StatusBadGateway, nil)
		return
	}

	now := s.now()
	row := s.db.QueryRow(`
		INSERT INTO patients (asaas_id, name, cpf, phone, email, birth_date, postal_code, address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+patientColumns,
		asaasID, req.Name, req.CPF, req.Phone, req.Email, req.BirthDate,
		req.PostalCode, req.Address, models.PatientStatusActive, now, now)

	patient, err := scanPatient(row)
	if err != nil {
		log.Printf("[PATIENT] Failed to insert patient: %v", err)
		SendErrorResponse(w, "Failed to register patient", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "patient": patient})
}

// List handles GET /patients
func (s *PatientService) List(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`SELECT ` + patientColumns + ` FROM patients ORDER BY name`)
	if err != nil {
		SendErrorResponse(w, "Failed to list patients", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	patients := []models.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			SendErrorResponse(w, "Failed to scan patient", http.StatusInternalServerError, nil)
			return
		}
		patients = append(patients, *p)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to list patients", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, patients)
}

// Get handles GET /patients/{id}
func (s *PatientService) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid patient id", http.StatusBadRequest, nil)
		return
	}

	patient, err := s.FindByID(id)
	if err == ErrPatientNotFound {
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch patient", http.StatusInternalServerError, nil)
		return
	}
	WriteJSON(w, http.StatusOK, patient)
}

// FindByID fetches one patient.
func (s *PatientService) FindByID(id int) (*models.Patient, error) {
	row := s.db.QueryRow(`SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	patient, err := scanPatient(row)
	if err == sql.ErrNoRows {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch patient: %w", err)
	}
	return patient, nil
}

// FindByAsaasID fetches the patient owning a payments-provider customer id.
func (s *PatientService) FindByAsaasID(asaasID string) (*models.Patient, error) {
	row := s.db.QueryRow(`SELECT `+patientColumns+` FROM patients WHERE asaas_id = $1`, asaasID)
	patient, err := scanPatient(row)
	if err == sql.ErrNoRows {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch patient: %w", err)
	}
	return patient, nil
}

type updatePatientRequest struct {
	Name       *string `json:"name" validate:"omitempty,min=2"`
	Phone      *string `json:"phone" validate:"omitempty,min=8"`
	Email      *string `json:"email" validate:"omitempty,email"`
	PostalCode *string `json:"postalCode"`
	Address    *string `json:"address"`
	Status     *string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// Update handles PUT /patients/{id}
func (s *PatientService) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid patient id", http.StatusBadRequest, nil)
		return
	}

	var req updatePatientRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	patient, err := s.FindByID(id)
	if err == ErrPatientNotFound {
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch patient", http.StatusInternalServerError, nil)
		return
	}

	if req.Name != nil {
		patient.Name = *req.Name
	}
	if req.Phone != nil {
		patient.Phone = *req.Phone
	}
	if req.Email != nil {
		patient.Email = *req.Email
	}
	if req.PostalCode != nil {
		patient.PostalCode = *req.PostalCode
	}
	if req.Address != nil {
		patient.Address = *req.Address
	}
	if req.Status != nil {
		patient.Status = *req.Status
	}

	row := s.db.QueryRow(`
		UPDATE patients
		SET name = $1, phone = $2, email = $3, postal_code = $4, address = $5, status = $6, updated_at = $7
		WHERE id = $8
		RETURNING `+patientColumns,
		patient.Name, patient.Phone, patient.Email, patient.PostalCode,
		patient.Address, patient.Status, s.now(), id)

	updated, err := scanPatient(row)
	if err != nil {
		log.Printf("[PATIENT] Failed to update patient %d: %v", id, err)
		SendErrorResponse(w, "Failed to update patient", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /patients/{id}
func (s *PatientService) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid patient id", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.Exec(`DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		SendErrorResponse(w, "Failed to delete patient", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		SendErrorResponse(w, ErrPatientNotFound.Error(), http.StatusNotFound, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
