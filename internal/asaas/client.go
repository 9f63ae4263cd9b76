// Package asaas is a minimal client for the Asaas v3 payments API, covering
// the customer and boleto operations the clinic uses.
package asaas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://api.asaas.com/v3"

// Billing types accepted by the payments endpoint.
const (
	BillingBoleto     = "BOLETO"
	BillingCreditCard = "CREDIT_CARD"
	BillingPix        = "PIX"
)

// KeyFunc supplies the API key per request, so rotating the stored key takes
// effect without restarting.
type KeyFunc func() (string, error)

// Client calls the Asaas REST API.
type Client struct {
	baseURL string
	key     KeyFunc
	http    *http.Client
}

func NewClient(baseURL string, key KeyFunc) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		key:     key,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Payment is a charge as returned by the API.
type Payment struct {
	ID                string          `json:"id"`
	Customer          string          `json:"customer"`
	BillingType       string          `json:"billingType"`
	Value             decimal.Decimal `json:"value"`
	NetValue          decimal.Decimal `json:"netValue"`
	DueDate           string          `json:"dueDate"`
	PaymentDate       string          `json:"paymentDate,omitempty"`
	InvoiceURL        string          `json:"invoiceUrl"`
	BankSlipURL       string          `json:"bankSlipUrl"`
	Status            string          `json:"status"`
	Description       string          `json:"description,omitempty"`
	ExternalReference string          `json:"externalReference,omitempty"`
}

// PaymentRequest creates a charge.
type PaymentRequest struct {
	Customer          string          `json:"customer"`
	BillingType       string          `json:"billingType"`
	Value             decimal.Decimal `json:"value"`
	DueDate           string          `json:"dueDate"`
	Description       string          `json:"description,omitempty"`
	ExternalReference string          `json:"externalReference,omitempty"`
}

type apiError struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

// MapStatus translates the provider's payment status to the vocabulary the
// front desk uses. Anything unrecognized is treated as still pending.
func MapStatus(status string) string {
	switch status {
	case "CONFIRMED", "RECEIVED":
		return "pago"
	case "OVERDUE":
		return "vencido"
	default:
		return "pendente"
	}
}

// CreateCustomer registers a customer and returns the provider id.
func (c *Client) CreateCustomer(ctx context.Context, name, cpf string) (string, error) {
	payload := map[string]string{"name": name, "cpfCnpj": cpf}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/customers", payload, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// CreatePayment issues a charge (a boleto, for the clinic's flow).
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	var payment Payment
	if err := c.do(ctx, http.MethodPost, "/payments", req, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPayment fetches one charge.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if id == "" {
		return nil, fmt.Errorf("invalid payment id")
	}
	var payment Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+id, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListPayments returns all charges on the account.
func (c *Client) ListPayments(ctx context.Context) ([]Payment, error) {
	var list struct {
		Data []Payment `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments", nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// DeletePayment removes a charge.
func (c *Client) DeletePayment(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("invalid payment id")
	}
	return c.do(ctx, http.MethodDelete, "/payments/"+id, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	key, err := c.key()
	if err != nil {
		return fmt.Errorf("asaas: missing API key: %w", err)
	}

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access_token", key)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("asaas: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && len(apiErr.Errors) > 0 {
			return fmt.Errorf("asaas: %s", apiErr.Errors[0].Description)
		}
		return fmt.Errorf("asaas: %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("asaas: failed to decode response: %w", err)
	}
	return nil
}
