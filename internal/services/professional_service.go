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

	"github.com/odontoclin/backend/internal/models"
)

var ErrProfessionalNotFound = errors.New("professional not found")

// ProfessionalService manages the clinic's service providers.
type ProfessionalService struct {
	db        *sql.DB
	validator *ValidationHelper
	now       func() time.Time
}

func NewProfessionalService(db *sql.DB) *ProfessionalService {
	return &ProfessionalService{
		db:        db,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

const professionalColumns = "id, name, specialty, license, phone, email, COALESCE(work_hours, ''), created_at, updated_at"

func scanProfessional(row interface{ Scan(...any) error }) (*models.Professional, error) {
	var p models.Professional
	err := row.Scan(&p.ID, &p.Name, &p.Specialty, &p.License, &p.Phone,
		&p.Email, &p.WorkHours, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type createProfessionalRequest struct {
	Name      string `json:"name" validate:"required,min=2"`
	Specialty string `json:"specialty" validate:"required"`
	License   string `json:"license" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	WorkHours string `json:"workHours"`
}

// Create handles POST /professionals
func (s *ProfessionalService) Create(w http.ResponseWriter, r *http.Request) {
	var req createProfessionalRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	now := s.now()
	row := s.db.QueryRow(`
		INSERT INTO professionals (name, specialty, license, phone, email, work_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+professionalColumns,
		req.Name, req.Specialty, req.License, req.Phone, req.Email, req.WorkHours, now, now)

	professional, err := scanProfessional(row)
	if err != nil {
		log.Printf("[PROFESSIONAL] Failed to insert professional: %v", err)
		SendErrorResponse(w, "Failed to create professional", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "professional": professional})
}

// List handles GET /professionals
func (s *ProfessionalService) List(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`SELECT ` + professionalColumns + ` FROM professionals ORDER BY name`)
	if err != nil {
		SendErrorResponse(w, "Failed to list professionals", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	professionals := []models.Professional{}
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			SendErrorResponse(w, "Failed to scan professional", http.StatusInternalServerError, nil)
			return
		}
		professionals = append(professionals, *p)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to list professionals", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, professionals)
}

// Get handles GET /professionals/{id}
func (s *ProfessionalService) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid professional id", http.StatusBadRequest, nil)
		return
	}

	professional, err := s.FindByID(id)
	if err == ErrProfessionalNotFound {
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch professional", http.StatusInternalServerError, nil)
		return
	}
	WriteJSON(w, http.StatusOK, professional)
}

// FindByID fetches one professional.
func (s *ProfessionalService) FindByID(id int) (*models.Professional, error) {
	row := s.db.QueryRow(`SELECT `+professionalColumns+` FROM professionals WHERE id = $1`, id)
	professional, err := scanProfessional(row)
	if err == sql.ErrNoRows {
		return nil, ErrProfessionalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch professional: %w", err)
	}
	return professional, nil
}

type updateProfessionalRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=2"`
	Specialty *string `json:"specialty" validate:"omitempty,min=1"`
	License   *string `json:"license" validate:"omitempty,min=1"`
	Phone     *string `json:"phone" validate:"omitempty,min=8"`
	Email     *string `json:"email" validate:"omitempty,email"`
	WorkHours *string `json:"workHours"`
}

// Update handles PUT /professionals/{id}
func (s *ProfessionalService) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid professional id", http.StatusBadRequest, nil)
		return
	}

	var req updateProfessionalRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	professional, err := s.FindByID(id)
	if err == ErrProfessionalNotFound {
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch professional", http.StatusInternalServerError, nil)
		return
	}

	if req.Name != nil {
		professional.Name = *req.Name
	}
	if req.Specialty != nil {
		professional.Specialty = *req.Specialty
	}
	if req.License != nil {
		professional.License = *req.License
	}
	if req.Phone != nil {
		professional.Phone = *req.Phone
	}
	if req.Email != nil {
		professional.Email = *req.Email
	}
	if req.WorkHours != nil {
		professional.WorkHours = *req.WorkHours
	}

	row := s.db.QueryRow(`
		UPDATE professionals
		SET name = $1, specialty = $2, license = $3, phone = $4, email = $5, work_hours = $6, updated_at = $7
		WHERE id = $8
		RETURNING `+professionalColumns,
		professional.Name, professional.Specialty, professional.License,
		professional.Phone, professional.Email, professional.WorkHours, s.now(), id)

	updated, err := scanProfessional(row)
	if err != nil {
		log.Printf("[PROFESSIONAL] Failed to update professional %d: %v", id, err)
		SendErrorResponse(w, "Failed to update professional", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /professionals/{id}
func (s *ProfessionalService) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid professional id", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.Exec(`DELETE FROM professionals WHERE id = $1`, id)
	if err != nil {
		SendErrorResponse(w, "Failed to delete professional", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		SendErrorResponse(w, ErrProfessionalNotFound.Error(), http.StatusNotFound, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
