package asaas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func staticKey(key string) KeyFunc {
	return func() (string, error) { return key, nil }
}

func TestClient_CreateCustomer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/customers", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("access_token"))

		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		assert.Equal(t, "Maria Souza", payload["name"])
		assert.Equal(t, "12345678900", payload["cpfCnpj"])

		json.NewEncoder(w).Encode(map[string]string{"id": "cus_000001"})
	}))
	defer server.Close()

	client := NewClient(server.URL, staticKey("test-key"))
	id, err := client.CreateCustomer(context.Background(), "Maria Souza", "12345678900")
	assert.NoError(t, err)
	assert.Equal(t, "cus_000001", id)
}

func TestClient_CreatePayment(t *testing.T) {
	t.Run("issues a boleto", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/payments", r.URL.Path)

			var req PaymentRequest
			json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, BillingBoleto, req.BillingType)

			json.NewEncoder(w).Encode(Payment{
				ID:          "pay_123",
				Customer:    req.Customer,
				BillingType: req.BillingType,
				Value:       req.Value,
				DueDate:     req.DueDate,
				Status:      "PENDING",
				BankSlipURL: "https://asaas.com/b/pdf/pay_123",
			})
		}))
		defer server.Close()

		client := NewClient(server.URL, staticKey("test-key"))
		payment, err := client.CreatePayment(context.Background(), PaymentRequest{
			Customer:    "cus_000001",
			BillingType: BillingBoleto,
			Value:       decimal.RequireFromString("150.00"),
			DueDate:     "2025-04-10",
		})
		assert.NoError(t, err)
		assert.Equal(t, "pay_123", payment.ID)
		assert.Equal(t, "150.00", payment.Value.StringFixed(2))
		assert.Equal(t, "pendente", MapStatus(payment.Status))
	})

	t.Run("surfaces the provider error description", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"errors": []map[string]string{{
					"code":        "invalid_value",
					"description": "O valor informado é inválido",
				}},
			})
		}))
		defer server.Close()

		client := NewClient(server.URL, staticKey("test-key"))
		_, err := client.CreatePayment(context.Background(), PaymentRequest{})
		assert.Error(t, err)
		assert.EqualError(t, err, "asaas: O valor informado é inválido")
	})

	t.Run("missing API key", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", func() (string, error) {
			return "", assert.AnError
		})
		_, err := client.CreatePayment(context.Background(), PaymentRequest{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "missing API key")
	})
}

func TestClient_ListPayments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []Payment{
				{ID: "pay_1", BillingType: BillingBoleto, Status: "OVERDUE"},
				{ID: "pay_2", BillingType: BillingPix, Status: "RECEIVED"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, staticKey("test-key"))
	payments, err := client.ListPayments(context.Background())
	assert.NoError(t, err)
	assert.Len(t, payments, 2)
	assert.Equal(t, "pay_1", payments[0].ID)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, "pago", MapStatus("CONFIRMED"))
	assert.Equal(t, "pago", MapStatus("RECEIVED"))
	assert.Equal(t, "vencido", MapStatus("OVERDUE"))
	assert.Equal(t, "pendente", MapStatus("PENDING"))
	assert.Equal(t, "pendente", MapStatus("SOMETHING_NEW"))
}

func TestClient_DeletePayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/payments/pay_123", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
	}))
	defer server.Close()

	client := NewClient(server.URL, staticKey("test-key"))
	assert.NoError(t, client.DeletePayment(context.Background(), "pay_123"))
	assert.Error(t, client.DeletePayment(context.Background(), ""))
}
