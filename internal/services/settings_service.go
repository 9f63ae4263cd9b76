package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odontoclin/backend/internal/models"
)

var ErrSettingNotFound = errors.New("setting not found")

// SettingsService reads and writes named configuration values (WhatsApp
// number, payments API key, message templates) stored in the database.
type SettingsService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewSettingsService(db *sql.DB) *SettingsService {
	return &SettingsService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// Value returns the raw value for a setting name.
func (s *SettingsService) Value(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("invalid setting name")
	}

	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE name = $1`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch setting %q: %w", name, err)
	}
	return value, nil
}

// Set upserts a setting value.
func (s *SettingsService) Set(name, value string) (*models.Setting, error) {
	if name == "" {
		return nil, fmt.Errorf("invalid setting name")
	}

	var setting models.Setting
	err := s.db.QueryRow(`
		INSERT INTO settings (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
		RETURNING name, value`, name, value).Scan(&setting.Name, &setting.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to update setting %q: %w", name, err)
	}
	return &setting, nil
}

// Get handles GET /settings/{name}
func (s *SettingsService) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	value, err := s.Value(name)
	if err == ErrSettingNotFound {
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch setting", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, models.Setting{Name: name, Value: value})
}

type updateSettingRequest struct {
	Value string `json:"value" validate:"required"`
}

// Update handles PUT /settings/{name}
func (s *SettingsService) Update(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req updateSettingRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	setting, err := s.Set(name, req.Value)
	if err != nil {
		log.Printf("[SETTINGS] Failed to update %q: %v", name, err)
		SendErrorResponse(w, "Failed to update setting", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, setting)
}
