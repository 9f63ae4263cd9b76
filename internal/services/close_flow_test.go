package services

import (
	"context"
	"encoding/json"
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

type fakeSender struct {
	phone   string
	message string
	err     error
}

func (f *fakeSender) Send(ctx context.Context, phone, message string) error {
	f.phone = phone
	f.message = message
	return f.err
}

func closeRequest(id, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/registers/"+id+"/close", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCashRegisterService_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	date := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)

	expectClosedRegister := func() {
		mock.ExpectQuery("UPDATE cash_registers SET closing = ").
			WillReturnRows(sqlmock.NewRows(registerCols).
				AddRow(1, "100.00", "50.00", "20.00", "130.00", models.RegisterStatusClosed, date, date))
	}

	expectShares := func() {
		mock.ExpectQuery("SELECT p.id, p.name, SUM\\(t.amount\\) AS revenue").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "revenue"}).
				AddRow(7, "Dra. Helena", "50.00"))
	}

	t.Run("closing dispatches the report", func(t *testing.T) {
		sender := &fakeSender{}
		service := NewCashRegisterService(db, sender, NewSettingsService(db))

		expectClosedRegister()
		expectShares()
		mock.ExpectQuery("SELECT value FROM settings WHERE name = ").
			WithArgs(models.SettingWhatsAppNumber).
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("31998765432"))

		rec := httptest.NewRecorder()
		service.Close(rec, closeRequest("1", `{"closing":"130.00"}`))

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["report_sent"])

		assert.Equal(t, "31998765432", sender.phone)
		assert.Contains(t, sender.message, "*Relatório de Fechamento de Caixa* - 07/03/2025")
		assert.Contains(t, sender.message, "Valor Final do Fechamento: R$ 130.00")
		assert.Contains(t, sender.message, "*Dra. Helena*")
		assert.Contains(t, sender.message, "Profissional: R$ 35.00")
		assert.Contains(t, sender.message, "Clínica: R$ 15.00")

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("send failure still closes and returns a manual link", func(t *testing.T) {
		sender := &fakeSender{err: assert.AnError}
		service := NewCashRegisterService(db, sender, NewSettingsService(db))

		expectClosedRegister()
		expectShares()
		mock.ExpectQuery("SELECT value FROM settings WHERE name = ").
			WithArgs(models.SettingWhatsAppNumber).
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("31998765432"))

		rec := httptest.NewRecorder()
		service.Close(rec, closeRequest("1", `{"closing":"130.00"}`))

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["report_sent"])
		assert.Contains(t, resp["fallback_url"], "https://wa.me/5531998765432?text=")

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no configured number skips dispatch", func(t *testing.T) {
		sender := &fakeSender{}
		service := NewCashRegisterService(db, sender, NewSettingsService(db))

		expectClosedRegister()
		expectShares()
		mock.ExpectQuery("SELECT value FROM settings WHERE name = ").
			WithArgs(models.SettingWhatsAppNumber).
			WillReturnRows(sqlmock.NewRows([]string{"value"}))

		rec := httptest.NewRecorder()
		service.Close(rec, closeRequest("1", `{"closing":"130.00"}`))

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["report_sent"])
		assert.Empty(t, sender.phone)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown register", func(t *testing.T) {
		service := NewCashRegisterService(db, &fakeSender{}, NewSettingsService(db))

		mock.ExpectQuery("UPDATE cash_registers SET closing = ").
			WillReturnRows(sqlmock.NewRows(registerCols))

		rec := httptest.NewRecorder()
		service.Close(rec, closeRequest("99", `{"closing":"130.00"}`))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects zero and negative closing amounts", func(t *testing.T) {
		service := NewCashRegisterService(db, &fakeSender{}, NewSettingsService(db))

		for _, closing := range []string{"0", "0.00", "-10.00"} {
			rec := httptest.NewRecorder()
			service.Close(rec, closeRequest("1", `{"closing":"`+closing+`"}`))
			assert.Equal(t, http.StatusBadRequest, rec.Code, "closing=%s", closing)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
