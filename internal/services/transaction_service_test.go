package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/odontoclin/backend/internal/models"
)

var transactionCols = []string{"id", "professional_id", "register_id", "kind", "description", "amount", "payment_method", "created_at", "updated_at"}

func TestTransactionService_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	registerService := NewCashRegisterService(db, nil, nil)
	service := NewTransactionService(db, registerService)
	now := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)

	t.Run("records movement and register total atomically", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT id, inflow, outflow FROM cash_registers WHERE status = ").
			WillReturnRows(sqlmock.NewRows([]string{"id", "inflow", "outflow"}).
				AddRow(5, "10.00", "0"))

		// The written total must be the prior inflow plus the new amount.
		mock.ExpectExec("UPDATE cash_registers SET inflow = ").
			WithArgs("40", sqlmock.AnyArg(), 5).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectQuery("INSERT INTO transactions").
			WillReturnRows(sqlmock.NewRows(transactionCols).
				AddRow(1, nil, 5, models.KindInflow, "Limpeza", "30.00", "pix", now, now))

		mock.ExpectCommit()

		body := `{"kind":"inflow","description":"Limpeza","amount":"30.00","paymentMethod":"pix"}`
		req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
		rec := httptest.NewRecorder()

		service.Create(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"register_id":5`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no open register records the movement unlinked", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT id, inflow, outflow FROM cash_registers WHERE status = ").
			WillReturnRows(sqlmock.NewRows([]string{"id", "inflow", "outflow"}))

		mock.ExpectQuery("INSERT INTO transactions").
			WillReturnRows(sqlmock.NewRows(transactionCols).
				AddRow(2, nil, nil, models.KindOutflow, "Material", "15.00", "dinheiro", now, now))

		mock.ExpectCommit()

		body := `{"kind":"outflow","description":"Material","amount":"15.00","paymentMethod":"dinheiro"}`
		req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
		rec := httptest.NewRecorder()

		service.Create(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls the total update back", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT id, inflow, outflow FROM cash_registers WHERE status = ").
			WillReturnRows(sqlmock.NewRows([]string{"id", "inflow", "outflow"}).
				AddRow(5, "10.00", "0"))

		mock.ExpectExec("UPDATE cash_registers SET inflow = ").
			WithArgs("40", sqlmock.AnyArg(), 5).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectQuery("INSERT INTO transactions").
			WillReturnError(assert.AnError)

		mock.ExpectRollback()

		body := `{"kind":"inflow","description":"Limpeza","amount":"30.00","paymentMethod":"pix"}`
		req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
		rec := httptest.NewRecorder()

		service.Create(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non positive amounts", func(t *testing.T) {
		body := `{"kind":"inflow","description":"Limpeza","amount":"-5","paymentMethod":"pix"}`
		req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
		rec := httptest.NewRecorder()

		service.Create(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		body := `{"kind":"transfer","description":"x","amount":"5","paymentMethod":"pix"}`
		req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
		rec := httptest.NewRecorder()

		service.Create(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTransactionService_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	registerService := NewCashRegisterService(db, nil, nil)
	service := NewTransactionService(db, registerService)

	withURLParam := func(req *http.Request, key, value string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add(key, value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	t.Run("reverts the linked register total", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT kind, amount, register_id FROM transactions WHERE id = ").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"kind", "amount", "register_id"}).
				AddRow(models.KindInflow, "30.00", 5))

		mock.ExpectQuery("SELECT status, inflow, outflow FROM cash_registers WHERE id = ").
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"status", "inflow", "outflow"}).
				AddRow(models.RegisterStatusOpen, "50.00", "0"))

		// Backing the movement out must write prior inflow minus the amount.
		mock.ExpectExec("UPDATE cash_registers SET inflow = ").
			WithArgs("20", sqlmock.AnyArg(), 5).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec("DELETE FROM transactions WHERE id = ").
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectCommit()

		req := withURLParam(httptest.NewRequest(http.MethodDelete, "/transactions/1", nil), "id", "1")
		rec := httptest.NewRecorder()

		service.Delete(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("closed register totals are left untouched", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT kind, amount, register_id FROM transactions WHERE id = ").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"kind", "amount", "register_id"}).
				AddRow(models.KindInflow, "30.00", 5))

		mock.ExpectQuery("SELECT status, inflow, outflow FROM cash_registers WHERE id = ").
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"status", "inflow", "outflow"}).
				AddRow(models.RegisterStatusClosed, "50.00", "0"))

		mock.ExpectExec("DELETE FROM transactions WHERE id = ").
			WithArgs(2).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectCommit()

		req := withURLParam(httptest.NewRequest(http.MethodDelete, "/transactions/2", nil), "id", "2")
		rec := httptest.NewRecorder()

		service.Delete(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown transaction", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT kind, amount, register_id FROM transactions WHERE id = ").
			WithArgs(99).
			WillReturnRows(sqlmock.NewRows([]string{"kind", "amount", "register_id"}))

		mock.ExpectRollback()

		req := withURLParam(httptest.NewRequest(http.MethodDelete, "/transactions/99", nil), "id", "99")
		rec := httptest.NewRecorder()

		service.Delete(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
