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
	"github.com/shopspring/decimal"

	"github.com/odontoclin/backend/internal/models"
	"github.com/odontoclin/backend/internal/whatsapp"
)

// ReportSender dispatches the closing report to a phone number.
type ReportSender interface {
	Send(ctx context.Context, phone, message string) error
}

var (
	ErrRegisterExists   = errors.New("a cash register already exists for this date")
	ErrRegisterNotFound = errors.New("cash register not found")
)

// CashRegisterService owns the daily register lifecycle:
// (none) -> open -> closed. There is no reopen, and the legacy "pending"
// status is never produced here.
type CashRegisterService struct {
	db        *sql.DB
	sender    ReportSender
	settings  *SettingsService
	validator *ValidationHelper
	now       func() time.Time
}

func NewCashRegisterService(db *sql.DB, sender ReportSender, settings *SettingsService) *CashRegisterService {
	return &CashRegisterService{
		db:        db,
		sender:    sender,
		settings:  settings,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

// dayWindow returns the calendar-day window [00:00:00.000, 23:59:59.999] for
// date at a fixed UTC-3 offset, computed by shifting UTC boundaries by three
// hours. Not a real timezone conversion; wrong outside UTC-3 and across DST.
func dayWindow(date time.Time) (time.Time, time.Time) {
	y, m, d := date.UTC().Date()
	start := time.Date(y, m, d, 3, 0, 0, 0, time.UTC)
	end := time.Date(y, m, d, 26, 59, 59, 999_000_000, time.UTC)
	return start, end
}

const registerColumns = "id, opening, inflow, outflow, closing, status, created_at, updated_at"

func scanRegister(row interface{ Scan(...any) error }) (*models.CashRegister, error) {
	var reg models.CashRegister
	err := row.Scan(&reg.ID, &reg.Opening, &reg.Inflow, &reg.Outflow,
		&reg.Closing, &reg.Status, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// OpenRegister inserts a new register for the given date with zeroed totals.
// The "no register yet" check and the insert are two separate statements, so
// two concurrent opens can both pass the check; callers get whatever the
// first read of the day returns afterwards.
func (s *CashRegisterService) OpenRegister(opening decimal.Decimal, date time.Time) (*models.CashRegister, error) {
	existing, err := s.FindByDate(date)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrRegisterExists
	}

	now := s.now()
	row := s.db.QueryRow(`
		INSERT INTO cash_registers (opening, inflow, outflow, closing, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+registerColumns,
		opening, decimal.Zero, decimal.Zero, decimal.Zero, models.RegisterStatusOpen, now, now)

	reg, err := scanRegister(row)
	if err != nil {
		return nil, fmt.Errorf("failed to open cash register: %w", err)
	}
	return reg, nil
}

// FindByDate returns every register whose created_at falls inside the UTC-3
// day window for date, oldest first. Zero rows is a normal result.
func (s *CashRegisterService) FindByDate(date time.Time) ([]models.CashRegister, error) {
	start, end := dayWindow(date)

	rows, err := s.db.Query(`
		SELECT `+registerColumns+`
		FROM cash_registers
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query cash registers: %w", err)
	}
	defer rows.Close()

	registers := []models.CashRegister{}
	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cash register: %w", err)
		}
		registers = append(registers, *reg)
	}
	return registers, rows.Err()
}

func (s *CashRegisterService) FindByID(id int) (*models.CashRegister, error) {
	row := s.db.QueryRow(`SELECT `+registerColumns+` FROM cash_registers WHERE id = $1`, id)
	reg, err := scanRegister(row)
	if err == sql.ErrNoRows {
		return nil, ErrRegisterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cash register: %w", err)
	}
	return reg, nil
}

func (s *CashRegisterService) FindByStatus(status string) ([]models.CashRegister, error) {
	rows, err := s.db.Query(`
		SELECT `+registerColumns+`
		FROM cash_registers
		WHERE status = $1
		ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query cash registers: %w", err)
	}
	defer rows.Close()

	registers := []models.CashRegister{}
	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cash register: %w", err)
		}
		registers = append(registers, *reg)
	}
	return registers, rows.Err()
}

// FindLastOpened returns the oldest still-open register, or nil.
func (s *CashRegisterService) FindLastOpened() (*models.CashRegister, error) {
	row := s.db.QueryRow(`
		SELECT `+registerColumns+`
		FROM cash_registers
		WHERE status = $1
		ORDER BY created_at
		LIMIT 1`, models.RegisterStatusOpen)

	reg, err := scanRegister(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open cash register: %w", err)
	}
	return reg, nil
}

// CloseRegister fixes the closing amount and flips the status to closed. The
// closing amount is supplied by the caller as opening + inflow - outflow and
// is not recomputed here. Closed is advisory: nothing below the HTTP surface
// rejects later total updates.
func (s *CashRegisterService) CloseRegister(id int, closing decimal.Decimal) (*models.CashRegister, error) {
	row := s.db.QueryRow(`
		UPDATE cash_registers
		SET closing = $1, status = $2, updated_at = $3
		WHERE id = $4
		RETURNING `+registerColumns,
		closing, models.RegisterStatusClosed, s.now(), id)

	reg, err := scanRegister(row)
	if err == sql.ErrNoRows {
		return nil, ErrRegisterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to close cash register: %w", err)
	}
	return reg, nil
}

func (s *CashRegisterService) DeleteRegister(id int) error {
	result, err := s.db.Exec(`DELETE FROM cash_registers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cash register: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRegisterNotFound
	}
	return nil
}

// applyTransactionTx folds a movement into the day's open register inside the
// caller's database transaction. It locks the register row, adds the amount
// to the matching total and returns the register id for the transaction row.
// When no open register exists for the day it returns (nil, nil) and the
// movement is recorded unlinked.
func (s *CashRegisterService) applyTransactionTx(tx *sql.Tx, kind string, amount decimal.Decimal, at time.Time) (*int, error) {
	start, end := dayWindow(at)

	var (
		id              int
		inflow, outflow decimal.Decimal
	)
	err := tx.QueryRow(`
		SELECT id, inflow, outflow
		FROM cash_registers
		WHERE status = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE`, models.RegisterStatusOpen, start, end).Scan(&id, &inflow, &outflow)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock cash register: %w", err)
	}

	column := "inflow"
	total := inflow.Add(amount)
	if kind == models.KindOutflow {
		column = "outflow"
		total = outflow.Add(amount)
	}

	_, err = tx.Exec(`UPDATE cash_registers SET `+column+` = $1, updated_at = $2 WHERE id = $3`,
		total, s.now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update cash register total: %w", err)
	}
	return &id, nil
}

// revertTransactionTx undoes a movement's contribution to its register when
// the transaction is deleted. Closed registers are left untouched.
func (s *CashRegisterService) revertTransactionTx(tx *sql.Tx, registerID int, kind string, amount decimal.Decimal) error {
	var (
		status          string
		inflow, outflow decimal.Decimal
	)
	err := tx.QueryRow(`
		SELECT status, inflow, outflow
		FROM cash_registers
		WHERE id = $1
		FOR UPDATE`, registerID).Scan(&status, &inflow, &outflow)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to lock cash register: %w", err)
	}
	if status != models.RegisterStatusOpen {
		return nil
	}

	column := "inflow"
	total := inflow.Sub(amount)
	if kind == models.KindOutflow {
		column = "outflow"
		total = outflow.Sub(amount)
	}

	_, err = tx.Exec(`UPDATE cash_registers SET `+column+` = $1, updated_at = $2 WHERE id = $3`,
		total, s.now(), registerID)
	if err != nil {
		return fmt.Errorf("failed to update cash register total: %w", err)
	}
	return nil
}

// ProfessionalShares aggregates the day's inflow per professional and splits
// it 70/30 between professional and clinic.
func (s *CashRegisterService) ProfessionalShares(date time.Time) ([]models.ProfessionalShare, error) {
	start, end := dayWindow(date)

	rows, err := s.db.Query(`
		SELECT p.id, p.name, SUM(t.amount) AS revenue
		FROM transactions t
		JOIN professionals p ON p.id = t.professional_id
		WHERE t.kind = $1 AND t.created_at >= $2 AND t.created_at <= $3
		GROUP BY p.id, p.name
		HAVING SUM(t.amount) > 0
		ORDER BY revenue DESC`, models.KindInflow, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query professional revenue: %w", err)
	}
	defer rows.Close()

	shares := []models.ProfessionalShare{}
	for rows.Next() {
		var share models.ProfessionalShare
		if err := rows.Scan(&share.ProfessionalID, &share.Name, &share.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan professional revenue: %w", err)
		}
		share.Professional = share.Revenue.Mul(professionalCut)
		share.Clinic = share.Revenue.Mul(clinicCut)
		shares = append(shares, share)
	}
	return shares, rows.Err()
}

// ---- HTTP surface ----

type openRegisterRequest struct {
	Opening string `json:"opening" validate:"required"`
}

// Open handles POST /registers
func (s *CashRegisterService) Open(w http.ResponseWriter, r *http.Request) {
	var req openRegisterRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	opening, err := decimal.NewFromString(req.Opening)
	if err != nil || opening.IsNegative() {
		SendErrorResponse(w, "Invalid opening amount", http.StatusBadRequest, nil)
		return
	}

	reg, err := s.OpenRegister(opening, s.now())
	if err == ErrRegisterExists {
		SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
		return
	}
	if err != nil {
		log.Printf("[REGISTER] Failed to open register: %v", err)
		SendErrorResponse(w, "Failed to open cash register", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "register": reg})
}

// List handles GET /registers with optional ?date=2006-01-02 or ?status=open
func (s *CashRegisterService) List(w http.ResponseWriter, r *http.Request) {
	if dateParam := r.URL.Query().Get("date"); dateParam != "" {
		date, err := time.Parse("2006-01-02", dateParam)
		if err != nil {
			SendErrorResponse(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		registers, err := s.FindByDate(date)
		if err != nil {
			log.Printf("[REGISTER] Failed to list registers: %v", err)
			SendErrorResponse(w, "Failed to list cash registers", http.StatusInternalServerError, nil)
			return
		}
		WriteJSON(w, http.StatusOK, registers)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		registers, err := s.FindByStatus(status)
		if err != nil {
			log.Printf("[REGISTER] Failed to list registers: %v", err)
			SendErrorResponse(w, "Failed to list cash registers", http.StatusInternalServerError, nil)
			return
		}
		WriteJSON(w, http.StatusOK, registers)
		return
	}

	registers, err := s.FindByStatus(models.RegisterStatusOpen)
	if err != nil {
		log.Printf("[REGISTER] Failed to list registers: %v", err)
		SendErrorResponse(w, "Failed to list cash registers", http.StatusInternalServerError, nil)
		return
	}
	WriteJSON(w, http.StatusOK, registers)
}

// Get handles GET /registers/{id}
func (s *CashRegisterService) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid register id", http.StatusBadRequest, nil)
		return
	}

	reg, err := s.FindByID(id)
	if err == ErrRegisterNotFound {
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch cash register", http.StatusInternalServerError, nil)
		return
	}
	WriteJSON(w, http.StatusOK, reg)
}

// GetLastOpen handles GET /registers/last-open
func (s *CashRegisterService) GetLastOpen(w http.ResponseWriter, r *http.Request) {
	reg, err := s.FindLastOpened()
	if err != nil {
		SendErrorResponse(w, "Failed to fetch open cash register", http.StatusInternalServerError, nil)
		return
	}
	if reg == nil {
		SendErrorResponse(w, "No open cash register", http.StatusNotFound, nil)
		return
	}
	WriteJSON(w, http.StatusOK, reg)
}

type updateRegisterRequest struct {
	Opening *string `json:"opening"`
	Inflow  *string `json:"inflow"`
	Outflow *string `json:"outflow"`
	Closing *string `json:"closing"`
	Status  *string `json:"status" validate:"omitempty,oneof=open closed"`
}

// Update handles PUT /registers/{id}: partial-field corrections to a
// register row. The lifecycle endpoints stay the normal path; this exists
// for back-office fixes.
func (s *CashRegisterService) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid register id", http.StatusBadRequest, nil)
		return
	}

	var req updateRegisterRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	reg, err := s.FindByID(id)
	if err == ErrRegisterNotFound {
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch cash register", http.StatusInternalServerError, nil)
		return
	}

	applyAmount := func(dst *decimal.Decimal, src *string) bool {
		if src == nil {
			return true
		}
		v, err := decimal.NewFromString(*src)
		if err != nil || v.IsNegative() {
			return false
		}
		*dst = v
		return true
	}

	if !applyAmount(&reg.Opening, req.Opening) ||
		!applyAmount(&reg.Inflow, req.Inflow) ||
		!applyAmount(&reg.Outflow, req.Outflow) ||
		!applyAmount(&reg.Closing, req.Closing) {
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}
	if req.Status != nil {
		reg.Status = *req.Status
	}

	row := s.db.QueryRow(`
		UPDATE cash_registers
		SET opening = $1, inflow = $2, outflow = $3, closing = $4, status = $5, updated_at = $6
		WHERE id = $7
		RETURNING `+registerColumns,
		reg.Opening, reg.Inflow, reg.Outflow, reg.Closing, reg.Status, s.now(), id)

	updated, err := scanRegister(row)
	if err != nil {
		log.Printf("[REGISTER] Failed to update register %d: %v", id, err)
		SendErrorResponse(w, "Failed to update cash register", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, updated)
}

type closeRegisterRequest struct {
	Closing string `json:"closing" validate:"required"`
}

// Close handles POST /registers/{id}/close. Closing the register also
// composes the day's report and sends it to the configured WhatsApp number;
// when the send fails the response carries a wa.me link the operator can
// open manually instead.
func (s *CashRegisterService) Close(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid register id", http.StatusBadRequest, nil)
		return
	}

	var req closeRegisterRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	closing, err := decimal.NewFromString(req.Closing)
	if err != nil || !closing.IsPositive() {
		SendErrorResponse(w, "Invalid closing amount", http.StatusBadRequest, nil)
		return
	}

	reg, err := s.CloseRegister(id, closing)
	if err == ErrRegisterNotFound {
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[REGISTER] Failed to close register %d: %v", id, err)
		SendErrorResponse(w, "Failed to close cash register", http.StatusInternalServerError, nil)
		return
	}

	resp := map[string]any{"success": true, "register": reg}

	shares, err := s.ProfessionalShares(reg.CreatedAt)
	if err != nil {
		log.Printf("[REGISTER] Failed to compute professional shares: %v", err)
		shares = nil
	}
	report := ComposeClosingReport(reg, shares)

	phone, err := s.settings.Value(models.SettingWhatsAppNumber)
	if err != nil || phone == "" {
		log.Printf("[REGISTER] No WhatsApp number configured, skipping report dispatch")
		resp["report_sent"] = false
	} else if err := s.sender.Send(r.Context(), phone, report); err != nil {
		log.Printf("[REGISTER] Failed to send closing report: %v", err)
		resp["report_sent"] = false
		resp["fallback_url"] = whatsapp.ManualLink(phone, report)
	} else {
		resp["report_sent"] = true
	}

	WriteJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /registers/{id}. Transactions linked to the register
// are left in place; there is no cascade.
func (s *CashRegisterService) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid register id", http.StatusBadRequest, nil)
		return
	}

	if err := s.DeleteRegister(id); err == ErrRegisterNotFound {
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	} else if err != nil {
		SendErrorResponse(w, "Failed to delete cash register", http.StatusInternalServerError, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
