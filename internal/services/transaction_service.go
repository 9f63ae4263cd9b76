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

var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionService records financial movements. Creating or deleting a
// movement and adjusting the day's register total happen inside one database
// transaction, so the register can never reflect a movement that was not
// stored (or vice versa).
type TransactionService struct {
	db        *sql.DB
	register  *CashRegisterService
	validator *ValidationHelper
	now       func() time.Time
}

func NewTransactionService(db *sql.DB, register *CashRegisterService) *TransactionService {
	return &TransactionService{
		db:        db,
		register:  register,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

const transactionColumns = "id, professional_id, register_id, kind, description, amount, payment_method, created_at, updated_at"

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	var (
		txn            models.Transaction
		professionalID sql.NullInt64
		registerID     sql.NullInt64
	)
	err := row.Scan(&txn.ID, &professionalID, &registerID, &txn.Kind, &txn.Description,
		&txn.Amount, &txn.PaymentMethod, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if professionalID.Valid {
		id := int(professionalID.Int64)
		txn.ProfessionalID = &id
	}
	if registerID.Valid {
		id := int(registerID.Int64)
		txn.RegisterID = &id
	}
	return &txn, nil
}

type createTransactionRequest struct {
	Kind           string `json:"kind" validate:"required,oneof=inflow outflow"`
	Description    string `json:"description" validate:"required"`
	Amount         string `json:"amount" validate:"required"`
	PaymentMethod  string `json:"paymentMethod" validate:"required"`
	ProfessionalID *int   `json:"professionalId" validate:"omitempty,gt=0"`
}

// Create handles POST /transactions. The movement row and the register total
// update commit or roll back together.
func (ts *TransactionService) Create(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		SendErrorResponse(w, "Amount must be a positive decimal", http.StatusBadRequest, nil)
		return
	}

	now := ts.now()

	dbTx, err := ts.db.Begin()
	if err != nil {
		log.Printf("[TRANSACTION] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to record transaction", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	registerID, err := ts.register.applyTransactionTx(dbTx, req.Kind, amount, now)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to update register total: %v", err)
		SendErrorResponse(w, "Failed to record transaction", http.StatusInternalServerError, nil)
		return
	}

	row := dbTx.QueryRow(`
		INSERT INTO transactions (professional_id, register_id, kind, description, amount, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+transactionColumns,
		nullableInt(req.ProfessionalID), nullableInt(registerID),
		req.Kind, req.Description, amount, req.PaymentMethod, now, now)

	txn, err := scanTransaction(row)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to insert transaction: %v", err)
		SendErrorResponse(w, "Failed to record transaction", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[TRANSACTION] Failed to commit transaction: %v", err)
		SendErrorResponse(w, "Failed to record transaction", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "transaction": txn})
}

// List handles GET /transactions with optional ?date= and ?professionalId=
func (ts *TransactionService) List(w http.ResponseWriter, r *http.Request) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	args := []any{}
	where := ""

	if dateParam := r.URL.Query().Get("date"); dateParam != "" {
		date, err := time.Parse("2006-01-02", dateParam)
		if err != nil {
			SendErrorResponse(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		start, end := dayWindow(date)
		where = " WHERE created_at >= $1 AND created_at <= $2"
		args = append(args, start, end)
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

	rows, err := ts.db.Query(query+where+" ORDER BY created_at", args...)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to list transactions: %v", err)
		SendErrorResponse(w, "Failed to list transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			SendErrorResponse(w, "Failed to scan transaction", http.StatusInternalServerError, nil)
			return
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to list transactions", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, transactions)
}

// Get handles GET /transactions/{id}
func (ts *TransactionService) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid transaction id", http.StatusBadRequest, nil)
		return
	}

	txn, err := ts.fetchTransaction(id)
	if err == ErrTransactionNotFound {
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		return
	}
	WriteJSON(w, http.StatusOK, txn)
}

type updateTransactionRequest struct {
	Description    *string `json:"description" validate:"omitempty,min=1"`
	PaymentMethod  *string `json:"paymentMethod" validate:"omitempty,min=1"`
	ProfessionalID *int    `json:"professionalId" validate:"omitempty,gt=0"`
}

// Update handles PUT /transactions/{id}. Amount and kind are immutable once
// recorded; correcting a value means deleting and re-recording so the
// register totals stay in step.
func (ts *TransactionService) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid transaction id", http.StatusBadRequest, nil)
		return
	}

	var req updateTransactionRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	txn, err := ts.fetchTransaction(id)
	if err == ErrTransactionNotFound {
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		return
	}

	if req.Description != nil {
		txn.Description = *req.Description
	}
	if req.PaymentMethod != nil {
		txn.PaymentMethod = *req.PaymentMethod
	}
	if req.ProfessionalID != nil {
		txn.ProfessionalID = req.ProfessionalID
	}

	row := ts.db.QueryRow(`
		UPDATE transactions
		SET description = $1, payment_method = $2, professional_id = $3, updated_at = $4
		WHERE id = $5
		RETURNING `+transactionColumns,
		txn.Description, txn.PaymentMethod, nullableInt(txn.ProfessionalID), ts.now(), id)

	updated, err := scanTransaction(row)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to update transaction %d: %v", id, err)
		SendErrorResponse(w, "Failed to update transaction", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /transactions/{id}. Removing a movement also backs
// its amount out of the linked register, unless that register has already
// been closed.
func (ts *TransactionService) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid transaction id", http.StatusBadRequest, nil)
		return
	}

	dbTx, err := ts.db.Begin()
	if err != nil {
		log.Printf("[TRANSACTION] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to delete transaction", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	var (
		kind       string
		amount     decimal.Decimal
		registerID sql.NullInt64
	)
	err = dbTx.QueryRow(`SELECT kind, amount, register_id FROM transactions WHERE id = $1 FOR UPDATE`, id).
		Scan(&kind, &amount, &registerID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, ErrTransactionNotFound.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[TRANSACTION] Failed to fetch transaction %d: %v", id, err)
		SendErrorResponse(w, "Failed to delete transaction", http.StatusInternalServerError, nil)
		return
	}

	if registerID.Valid {
		if err := ts.register.revertTransactionTx(dbTx, int(registerID.Int64), kind, amount); err != nil {
			log.Printf("[TRANSACTION] Failed to revert register total: %v", err)
			SendErrorResponse(w, "Failed to delete transaction", http.StatusInternalServerError, nil)
			return
		}
	}

	if _, err := dbTx.Exec(`DELETE FROM transactions WHERE id = $1`, id); err != nil {
		log.Printf("[TRANSACTION] Failed to delete transaction %d: %v", id, err)
		SendErrorResponse(w, "Failed to delete transaction", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[TRANSACTION] Failed to commit delete: %v", err)
		SendErrorResponse(w, "Failed to delete transaction", http.StatusInternalServerError, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListByProfessional handles GET /professionals/{id}/transactions
func (ts *TransactionService) ListByProfessional(w http.ResponseWriter, r *http.Request) {
	profID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || profID <= 0 {
		SendErrorResponse(w, "Invalid professional id", http.StatusBadRequest, nil)
		return
	}

	rows, err := ts.db.Query(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE professional_id = $1
		ORDER BY created_at`, profID)
	if err != nil {
		SendErrorResponse(w, "Failed to list transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			SendErrorResponse(w, "Failed to scan transaction", http.StatusInternalServerError, nil)
			return
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to list transactions", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, transactions)
}

// TotalByProfessional handles GET /professionals/{id}/transactions/total
func (ts *TransactionService) TotalByProfessional(w http.ResponseWriter, r *http.Request) {
	profID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || profID <= 0 {
		SendErrorResponse(w, "Invalid professional id", http.StatusBadRequest, nil)
		return
	}

	var total decimal.NullDecimal
	err = ts.db.QueryRow(`SELECT SUM(amount) FROM transactions WHERE professional_id = $1`, profID).Scan(&total)
	if err != nil {
		SendErrorResponse(w, "Failed to compute total", http.StatusInternalServerError, nil)
		return
	}

	result := decimal.Zero
	if total.Valid {
		result = total.Decimal
	}

	WriteJSON(w, http.StatusOK, map[string]any{"professionalId": profID, "total": result})
}

func (ts *TransactionService) fetchTransaction(id int) (*models.Transaction, error) {
	row := ts.db.QueryRow(`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	txn, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	return txn, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
